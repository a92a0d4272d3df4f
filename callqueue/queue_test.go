package callqueue_test

import (
	"sync"
	"testing"
	"time"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/callqueue"
	"github.com/wippyai/addon-bridge/env"
	"github.com/wippyai/addon-bridge/fakehost"
	"github.com/wippyai/addon-bridge/status"
)

// newQueue builds a queue on the environment thread and hands it back for
// off-thread use.
func newQueue[T any](t *testing.T, h *fakehost.Host, cb callqueue.Callback[T], opts ...callqueue.Option) *callqueue.Queue[T] {
	t.Helper()
	var q *callqueue.Queue[T]
	err := h.WithEnv(func(e *env.Env) error {
		var err error
		q, err = callqueue.New(e, cb, opts...)
		return err
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return q
}

// blockLoop parks the environment loop until the returned release function
// is called. Everything dispatched meanwhile queues up behind it.
func blockLoop(t *testing.T, h *fakehost.Host) func() {
	t.Helper()
	gate := make(chan struct{})
	if code := h.Dispatch(func(abi.EnvHandle) { <-gate }); code != status.OK {
		t.Fatalf("Dispatch gate: %v", code)
	}
	return func() { close(gate) }
}

func recvN[T any](t *testing.T, ch <-chan T, n int) []T {
	t.Helper()
	out := make([]T, 0, n)
	for len(out) < n {
		select {
		case v := <-ch:
			out = append(out, v)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d deliveries", len(out), n)
		}
	}
	return out
}

func waitClosed(t *testing.T, q interface{ State() callqueue.State }) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for q.State() != callqueue.StateClosed {
		if time.Now().After(deadline) {
			t.Fatalf("queue never closed, state %v", q.State())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestQueue_DeliversInOrder(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	got := make(chan int, 100)
	q := newQueue(t, h, func(e *env.Env, payload int) { got <- payload })

	for i := 0; i < 100; i++ {
		if err := q.Call(i, true); err != nil {
			t.Fatalf("Call(%d): %v", i, err)
		}
	}
	for i, v := range recvN(t, got, 100) {
		if v != i {
			t.Fatalf("delivery %d: got payload %d", i, v)
		}
	}
}

func TestQueue_PerProducerOrder(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	type msg struct{ producer, seq int }
	const producers, each = 4, 50

	got := make(chan msg, producers*each)
	q := newQueue(t, h, func(e *env.Env, payload msg) { got <- payload })

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				if err := q.Call(msg{producer: p, seq: i}, true); err != nil {
					t.Errorf("producer %d call %d: %v", p, i, err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	next := make([]int, producers)
	for _, m := range recvN(t, got, producers*each) {
		if m.seq != next[m.producer] {
			t.Fatalf("producer %d: got seq %d, want %d", m.producer, m.seq, next[m.producer])
		}
		next[m.producer]++
	}
}

func TestQueue_NonBlockingFullFails(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	got := make(chan int, 8)
	q := newQueue(t, h, func(e *env.Env, payload int) { got <- payload },
		callqueue.WithName("bounded"), callqueue.WithCapacity(2))

	release := blockLoop(t, h)

	if err := q.Call(1, false); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := q.Call(2, false); err != nil {
		t.Fatalf("second call: %v", err)
	}
	err := q.Call(3, false)
	if err == nil {
		t.Fatal("third call accepted past capacity")
	}
	if status.CodeOf(err) != status.QueueFull {
		t.Fatalf("full queue: got %v, want QueueFull", err)
	}

	release()
	if got := recvN(t, got, 2); got[0] != 1 || got[1] != 2 {
		t.Fatalf("drained payloads: %v", got)
	}
	if err := q.Call(3, false); err != nil {
		t.Fatalf("call after drain: %v", err)
	}
}

func TestQueue_BlockingCallWaitsForSlot(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	got := make(chan int, 2)
	q := newQueue(t, h, func(e *env.Env, payload int) { got <- payload },
		callqueue.WithCapacity(1))

	release := blockLoop(t, h)
	if err := q.Call(1, false); err != nil {
		t.Fatalf("first call: %v", err)
	}

	second := make(chan error, 1)
	go func() { second <- q.Call(2, true) }()

	release()
	select {
	case err := <-second:
		if err != nil {
			t.Fatalf("blocking call: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocking call never returned")
	}
	if got := recvN(t, got, 2); got[0] != 1 || got[1] != 2 {
		t.Fatalf("delivery order: %v", got)
	}
}

func TestQueue_ReleaseDrainsThenFinalizes(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	got := make(chan int, 3)
	finalized := make(chan struct{})
	q := newQueue(t, h, func(e *env.Env, payload int) { got <- payload },
		callqueue.WithName("draining"),
		callqueue.WithFinalizer(func() { close(finalized) }))

	release := blockLoop(t, h)
	for i := 1; i <= 3; i++ {
		if err := q.Call(i, false); err != nil {
			t.Fatalf("Call(%d): %v", i, err)
		}
	}

	if err := q.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if st := q.State(); st != callqueue.StateClosing {
		t.Fatalf("state after release: %v", st)
	}
	err := q.Call(4, false)
	if err == nil {
		t.Fatal("call accepted after release")
	}
	if status.CodeOf(err) != status.Closing {
		t.Fatalf("closing queue: got %v, want Closing", err)
	}

	release()
	if got := recvN(t, got, 3); got[0] != 1 || got[2] != 3 {
		t.Fatalf("drained payloads: %v", got)
	}
	select {
	case <-finalized:
	case <-time.After(2 * time.Second):
		t.Fatal("finalizer never ran")
	}
	waitClosed(t, q)

	if err := q.Release(); err == nil {
		t.Fatal("release of a closed queue succeeded")
	}
}

func TestQueue_AbortDropsPending(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	delivered := 0
	finalized := make(chan struct{})
	q := newQueue(t, h, func(e *env.Env, payload int) { delivered++ },
		callqueue.WithName("aborted"),
		callqueue.WithFinalizer(func() { close(finalized) }))

	release := blockLoop(t, h)
	for i := 1; i <= 3; i++ {
		if err := q.Call(i, false); err != nil {
			t.Fatalf("Call(%d): %v", i, err)
		}
	}

	if err := q.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	release()

	select {
	case <-finalized:
	case <-time.After(2 * time.Second):
		t.Fatal("finalizer never ran after abort")
	}
	waitClosed(t, q)

	if delivered != 0 {
		t.Fatalf("aborted queue delivered %d payloads", delivered)
	}
	if q.Dropped() != 3 {
		t.Fatalf("dropped count: got %d, want 3", q.Dropped())
	}
}

func TestQueue_AbortWakesBlockedCaller(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	q := newQueue(t, h, func(e *env.Env, payload int) {},
		callqueue.WithCapacity(1))

	release := blockLoop(t, h)
	defer release()
	if err := q.Call(1, false); err != nil {
		t.Fatalf("first call: %v", err)
	}

	blocked := make(chan error, 1)
	go func() { blocked <- q.Call(2, true) }()
	time.Sleep(10 * time.Millisecond)

	if err := q.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	select {
	case err := <-blocked:
		if status.CodeOf(err) != status.Closing {
			t.Fatalf("woken caller: got %v, want Closing", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked caller never woke")
	}
}

func TestQueue_AcquireKeepsOpen(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	got := make(chan int, 2)
	q := newQueue(t, h, func(e *env.Env, payload int) { got <- payload })

	guard, err := q.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := q.Release(); err != nil {
		t.Fatalf("creator release: %v", err)
	}
	if st := q.State(); st != callqueue.StateOpen {
		t.Fatalf("state with live guard: %v", st)
	}
	if err := q.Call(1, false); err != nil {
		t.Fatalf("call with live guard: %v", err)
	}
	recvN(t, got, 1)

	guard.Release()
	guard.Release() // idempotent
	waitClosed(t, q)

	if _, err := q.Acquire(); err == nil {
		t.Fatal("acquire on a closed queue succeeded")
	}
}
