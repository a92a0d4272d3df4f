package asyncwork_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wippyai/addon-bridge/asyncwork"
	"github.com/wippyai/addon-bridge/env"
	"github.com/wippyai/addon-bridge/fakehost"
	"github.com/wippyai/addon-bridge/status"
)

type outcome[R any] struct {
	result R
	err    error
}

// spawn schedules work from the environment thread and streams the
// completion into a channel the test can wait on.
func spawn[R any](t *testing.T, h *fakehost.Host, work func() (R, error), opts ...asyncwork.Option) (*asyncwork.Task[R], <-chan outcome[R]) {
	t.Helper()
	done := make(chan outcome[R], 1)
	var task *asyncwork.Task[R]
	err := h.WithEnv(func(e *env.Env) error {
		var err error
		task, err = asyncwork.Spawn(e, work, func(e *env.Env, result R, err error) {
			done <- outcome[R]{result: result, err: err}
		}, opts...)
		return err
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	return task, done
}

func recvOutcome[R any](t *testing.T, ch <-chan outcome[R]) outcome[R] {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("completion never delivered")
		panic("unreachable")
	}
}

func waitState[R any](t *testing.T, task *asyncwork.Task[R], want asyncwork.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for task.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("task state %v, want %v", task.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTask_DeliversResult(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	task, done := spawn(t, h, func() (int, error) { return 42, nil })

	o := recvOutcome(t, done)
	if o.err != nil {
		t.Fatalf("completion error: %v", o.err)
	}
	if o.result != 42 {
		t.Fatalf("completion result: got %d", o.result)
	}
	waitState(t, task, asyncwork.StateDone)
}

func TestTask_DeliversWorkError(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	boom := errors.New("backend unavailable")
	task, done := spawn(t, h, func() (string, error) { return "", boom })

	o := recvOutcome(t, done)
	if o.err != boom {
		t.Fatalf("completion error: got %v, want %v", o.err, boom)
	}
	if o.result != "" {
		t.Fatalf("failed work left a result: %q", o.result)
	}
	waitState(t, task, asyncwork.StateDone)
}

func TestTask_PanicBecomesError(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	_, done := spawn(t, h, func() (int, error) { panic("corrupt state") },
		asyncwork.WithName("panicky"))

	o := recvOutcome(t, done)
	if o.err == nil {
		t.Fatal("panicking work delivered no error")
	}
	if status.CodeOf(o.err) != status.GenericFailure {
		t.Fatalf("panic error code: got %v", o.err)
	}
	if !strings.Contains(o.err.Error(), "panicked") {
		t.Fatalf("panic detail missing: %v", o.err)
	}
}

func TestTask_CancelBeforeExecution(t *testing.T) {
	h := fakehost.New(fakehost.WithWorkers(1))
	defer h.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	_, blockerDone := spawn(t, h, func() (int, error) {
		close(started)
		<-release
		return 0, nil
	})
	<-started

	ran := false
	victim, victimDone := spawn(t, h, func() (int, error) {
		ran = true
		return 1, nil
	})

	if err := victim.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	o := recvOutcome(t, victimDone)
	if status.CodeOf(o.err) != status.Cancelled {
		t.Fatalf("cancelled completion: got %v, want Cancelled", o.err)
	}
	if victim.State() != asyncwork.StateCancelled {
		t.Fatalf("victim state: %v", victim.State())
	}

	close(release)
	recvOutcome(t, blockerDone)
	if ran {
		t.Fatal("cancelled work still executed")
	}

	if err := victim.Cancel(); err == nil {
		t.Fatal("second cancel succeeded")
	}
}

func TestTask_CancelAfterStartFails(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	task, done := spawn(t, h, func() (int, error) {
		close(started)
		<-release
		return 7, nil
	})
	<-started

	if task.State() != asyncwork.StateExecuting {
		t.Fatalf("running task state: %v", task.State())
	}
	err := task.Cancel()
	if err == nil {
		t.Fatal("cancel of running work succeeded")
	}
	if status.CodeOf(err) != status.GenericFailure {
		t.Fatalf("running cancel: got %v", err)
	}
	if !strings.Contains(err.Error(), "already executing") {
		t.Fatalf("running cancel detail: %v", err)
	}

	close(release)
	o := recvOutcome(t, done)
	if o.err != nil || o.result != 7 {
		t.Fatalf("completion after failed cancel: %d, %v", o.result, o.err)
	}
}

func TestSpawn_RejectsNilFunctions(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	err := h.WithEnv(func(e *env.Env) error {
		if _, err := asyncwork.Spawn[int](e, nil, func(*env.Env, int, error) {}); err == nil {
			t.Fatal("nil work accepted")
		}
		if _, err := asyncwork.Spawn(e, func() (int, error) { return 0, nil }, nil); err == nil {
			t.Fatal("nil completion accepted")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithEnv: %v", err)
	}
}
