package goroutineid

import (
	"sync"
	"testing"
)

func TestCurrent(t *testing.T) {
	id := Current()
	if id == 0 {
		t.Fatal("Current() = 0, want nonzero")
	}
	if again := Current(); again != id {
		t.Errorf("Current() not stable on one goroutine: %d then %d", id, again)
	}
}

func TestCurrent_DistinctAcrossGoroutines(t *testing.T) {
	main := Current()

	var wg sync.WaitGroup
	ids := make(chan int64, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- Current()
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{main: true}
	for id := range ids {
		if id == 0 {
			t.Fatal("goroutine reported ID 0")
		}
		if seen[id] {
			t.Fatalf("duplicate goroutine ID %d", id)
		}
		seen[id] = true
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		stack string
		want  int64
	}{
		{"typical", "goroutine 42 [running]:\nmain.main()", 42},
		{"large id", "goroutine 123456789 [select]:", 123456789},
		{"truncated digits", "goroutine 7", 7},
		{"no prefix", "panic: boom", 0},
		{"empty", "", 0},
		{"prefix only", "goroutine ", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parse([]byte(tt.stack)); got != tt.want {
				t.Errorf("parse(%q) = %d, want %d", tt.stack, got, tt.want)
			}
		})
	}
}
