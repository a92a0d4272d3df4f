package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/wippyai/addon-bridge/gojahost"
)

func main() {
	var (
		expr        = flag.String("expr", "", "JavaScript expression to evaluate")
		list        = flag.Bool("list", false, "List the demo addon exports and exit")
		interactive = flag.Bool("i", false, "Interactive REPL with TUI")
	)
	flag.Parse()

	if flag.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "Usage: run [script.js]")
		fmt.Fprintln(os.Stderr, "       run -expr <code>")
		fmt.Fprintln(os.Stderr, "       run -i  (interactive REPL)")
		fmt.Fprintln(os.Stderr, "       echo <code> | run")
		os.Exit(1)
	}

	if err := run(*expr, flag.Arg(0), *list, *interactive); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(expr, scriptFile string, listOnly, interactive bool) error {
	host := gojahost.New()
	defer host.Close()

	// The demo addon resolves as require('demo') and exercises every way
	// across the boundary: plain exports, background work with an on-thread
	// completion, and a threadsafe queue fed by a ticker goroutine.
	demo, err := newDemoAddon()
	if err != nil {
		return fmt.Errorf("demo addon: %w", err)
	}
	host.Install("demo", demo.registry)

	if listOnly {
		fmt.Println("require('demo') exports:")
		for _, name := range demo.registry.Names() {
			fmt.Printf("  %s\n", name)
		}
		return nil
	}

	switch {
	case interactive:
		return runInteractive(host, demo.registry.Names())

	case expr != "":
		return evalAndPrint(host, expr)

	case scriptFile != "":
		src, err := os.ReadFile(scriptFile)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		return evalAndPrint(host, string(src))

	case !term.IsTerminal(int(os.Stdin.Fd())):
		// Piped input runs as a script, node-style.
		src, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		return evalAndPrint(host, string(src))

	default:
		return runInteractive(host, demo.registry.Names())
	}
}

func evalAndPrint(host *gojahost.Host, src string) error {
	out, err := host.RunScript(src)
	if err != nil {
		return err
	}
	if out != nil {
		fmt.Println(out)
	}
	return nil
}
