package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/addon"
	"github.com/wippyai/addon-bridge/asyncwork"
	"github.com/wippyai/addon-bridge/callqueue"
	"github.com/wippyai/addon-bridge/convert"
	"github.com/wippyai/addon-bridge/env"
	"github.com/wippyai/addon-bridge/ref"
	"github.com/wippyai/addon-bridge/status"
)

const demoVersion = "1.0.0"

// demoAddon backs require('demo'). Besides plain synchronous exports it
// carries two moving parts: countPrimes runs on the worker pool and
// delivers its result through a pinned script callback, and a ticker
// goroutine feeds a threadsafe queue that advances the ticks counter.
type demoAddon struct {
	registry *addon.Registry

	// host is captured by the load hook, which runs before any script can
	// reach the exports.
	host abi.Host

	// ticks is written by the queue callback and read by the ticks export.
	// Both run on the environment thread, so no lock.
	ticks int64

	queue  *callqueue.Queue[int64]
	stop   chan struct{}
	ticker sync.WaitGroup
}

func newDemoAddon() (*demoAddon, error) {
	d := &demoAddon{
		registry: addon.NewRegistry(),
		stop:     make(chan struct{}),
	}
	reg := d.registry

	if err := reg.RegisterValue("version", demoVersion); err != nil {
		return nil, err
	}
	if err := reg.RegisterFunc("add", func(e *env.Env, a, b float64) (float64, error) {
		return a + b, nil
	}); err != nil {
		return nil, err
	}
	if err := reg.RegisterFunc("greet", func(e *env.Env, name string) (string, error) {
		if name == "" {
			return "", status.InvalidInput(status.PhaseCall, "greet wants a name")
		}
		return "hello, " + name, nil
	}); err != nil {
		return nil, err
	}
	if err := reg.RegisterFunc("ticks", func(e *env.Env) (int64, error) {
		return d.ticks, nil
	}); err != nil {
		return nil, err
	}
	if err := reg.RegisterCallback("countPrimes", d.countPrimes, 2); err != nil {
		return nil, err
	}

	reg.OnLoad(d.start)
	reg.OnUnload(d.stopTicker)
	return d, nil
}

// start runs on the environment thread when the module is first required.
func (d *demoAddon) start(e *env.Env) error {
	d.host = e.Host()
	q, err := callqueue.New(e, d.applyTick,
		callqueue.WithName("demo.ticks"),
		callqueue.WithCapacity(16))
	if err != nil {
		return err
	}
	d.queue = q
	d.ticker.Add(1)
	go d.runTicker()
	return nil
}

func (d *demoAddon) applyTick(e *env.Env, n int64) {
	d.ticks += n
}

func (d *demoAddon) runTicker() {
	defer d.ticker.Done()
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-t.C:
			// Nonblocking: a saturated queue skips the tick instead of
			// stalling the ticker.
			err := d.queue.Call(1, false)
			switch status.CodeOf(err) {
			case status.OK, status.QueueFull:
			default:
				return
			}
		}
	}
}

func (d *demoAddon) stopTicker() {
	close(d.stop)
	d.ticker.Wait()
	_ = d.queue.Release()
}

// countPrimes is the raw callback shape: countPrimes(limit, cb) returns
// undefined immediately and later invokes cb(err, count) on the
// environment thread.
func (d *demoAddon) countPrimes(rawEnv abi.EnvHandle, info *abi.CallInfo) abi.ValueHandle {
	out, err := env.EnterCallback(d.host, rawEnv, func(e *env.Env) (env.Value, error) {
		return d.spawnCount(e, info)
	})
	if err != nil {
		d.host.ThrowError(rawEnv, status.CodeOf(err).String(), err.Error())
		return abi.None
	}
	return out
}

func (d *demoAddon) spawnCount(e *env.Env, info *abi.CallInfo) (env.Value, error) {
	if len(info.Args) < 2 {
		return env.Value{}, status.InvalidInput(status.PhaseCall, "countPrimes wants (limit, callback)")
	}
	s := e.Scope()
	limitV, err := s.Adopt(info.Args[0])
	if err != nil {
		return env.Value{}, err
	}
	limit, err := convert.AsInt64(e, limitV)
	if err != nil {
		return env.Value{}, err
	}
	cbV, err := s.Adopt(info.Args[1])
	if err != nil {
		return env.Value{}, err
	}
	kind, err := cbV.Kind()
	if err != nil {
		return env.Value{}, err
	}
	if kind != abi.KindFunction {
		return env.Value{}, status.InvalidInput(status.PhaseCall, "countPrimes callback must be a function")
	}

	// Pin the callback so it survives this call's scope until delivery.
	cb, err := ref.New(e, cbV)
	if err != nil {
		return env.Value{}, err
	}
	work := func() (int64, error) {
		if limit < 0 {
			return 0, fmt.Errorf("negative limit %d", limit)
		}
		return countPrimesUpTo(limit), nil
	}
	_, err = asyncwork.Spawn(e, work, func(e *env.Env, count int64, workErr error) {
		defer cb.Release(e)
		if err := deliverCount(e, cb, count, workErr); err != nil {
			fmt.Fprintf(os.Stderr, "countPrimes callback failed: %v\n", err)
		}
	}, asyncwork.WithName("demo.countPrimes"))
	if err != nil {
		_ = cb.Release(e)
		return env.Value{}, err
	}
	return e.Undefined(s)
}

// deliverCount calls the pinned script callback node-style: cb(err) on
// failure, cb(null, count) on success.
func deliverCount(e *env.Env, cb *ref.Ref, count int64, workErr error) error {
	return e.InScope(func(s *env.Scope) error {
		fn, err := cb.Value(e, s)
		if err != nil {
			return err
		}
		if workErr != nil {
			errV, err := e.CreateError(s, status.CodeOf(workErr).String(), workErr.Error())
			if err != nil {
				return err
			}
			_, err = e.CallFunction(s, env.Value{}, fn, errV)
			return err
		}
		nullV, err := e.Null(s)
		if err != nil {
			return err
		}
		countV, err := convert.Int64(e, s, count)
		if err != nil {
			return err
		}
		_, err = e.CallFunction(s, env.Value{}, fn, nullV, countV)
		return err
	})
}

func countPrimesUpTo(n int64) int64 {
	var count int64
	for i := int64(2); i <= n; i++ {
		prime := true
		for f := int64(2); f*f <= i; f++ {
			if i%f == 0 {
				prime = false
				break
			}
		}
		if prime {
			count++
		}
	}
	return count
}
