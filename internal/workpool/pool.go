// Package workpool runs queued background work for a host and routes every
// completion back to the environment thread through the host's dispatcher.
// Both host backends share it; neither touches host value state from the
// workers.
package workpool

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/status"
)

const (
	itemQueued int32 = iota
	itemRunning
	itemDone
	itemCancelled
)

type item struct {
	id       abi.WorkHandle
	execute  func()
	complete abi.WorkCompleteCallback
	state    atomic.Int32
}

// Completion carries a work completion that must still run on the
// environment thread.
type Completion struct {
	fn   abi.WorkCompleteCallback
	code status.Code
}

// Run invokes the completion callback under envH.
func (c Completion) Run(envH abi.EnvHandle) {
	if c.fn != nil {
		c.fn(envH, c.code)
	}
}

// Pool owns a fixed set of worker goroutines. Work executes off-thread;
// completions dispatch back to the loop, or collect for inline delivery at
// shutdown when the loop no longer accepts jobs.
type Pool struct {
	d abi.Dispatcher

	mu    sync.Mutex
	cond  *sync.Cond
	queue []*item
	items map[abi.WorkHandle]*item
	next  uint64
	shut  bool
	lost  []Completion

	wg sync.WaitGroup
}

// New starts a pool with the given number of workers.
func New(d abi.Dispatcher, workers int) *Pool {
	p := &Pool{d: d, items: make(map[abi.WorkHandle]*item)}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.shut {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		it := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()
		p.run(it)
	}
}

func (p *Pool) run(it *item) {
	if !it.state.CompareAndSwap(itemQueued, itemRunning) {
		// Cancelled between dequeue and start; the canceller delivers.
		return
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				Logger().Error("background work panicked", zap.Any("panic", r))
			}
		}()
		it.execute()
	}()
	it.state.Store(itemDone)
	p.deliver(it, status.OK)
}

// deliver routes the completion to the loop, stashing it when the loop is
// already closing so shutdown can run it inline.
func (p *Pool) deliver(it *item, code status.Code) {
	c := Completion{fn: it.complete, code: code}
	if p.d.Dispatch(func(envH abi.EnvHandle) { c.Run(envH) }) != status.OK {
		p.mu.Lock()
		p.lost = append(p.lost, c)
		p.mu.Unlock()
	}
	p.mu.Lock()
	delete(p.items, it.id)
	p.mu.Unlock()
}

// Submit enqueues execute for a worker and complete for the loop afterwards.
func (p *Pool) Submit(execute func(), complete abi.WorkCompleteCallback) (abi.WorkHandle, status.Code) {
	p.mu.Lock()
	if p.shut {
		p.mu.Unlock()
		return abi.None, status.Closing
	}
	p.next++
	it := &item{id: abi.WorkHandle(p.next), execute: execute, complete: complete}
	p.items[it.id] = it
	p.queue = append(p.queue, it)
	p.cond.Signal()
	p.mu.Unlock()
	return it.id, status.OK
}

// Cancel succeeds only while the work is still queued; the cancelled
// completion is delivered by the canceller.
func (p *Pool) Cancel(w abi.WorkHandle) status.Code {
	p.mu.Lock()
	it, ok := p.items[w]
	if !ok {
		p.mu.Unlock()
		return status.InvalidArg
	}
	if !it.state.CompareAndSwap(itemQueued, itemCancelled) {
		p.mu.Unlock()
		return status.GenericFailure
	}
	for i, queued := range p.queue {
		if queued == it {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	p.deliver(it, status.Cancelled)
	return status.OK
}

// Shutdown runs on the loop during teardown. Queued items are cancelled,
// running items are waited for, and every completion that could no longer
// dispatch is returned for inline delivery.
func (p *Pool) Shutdown() []Completion {
	p.mu.Lock()
	p.shut = true
	queued := p.queue
	p.queue = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	var pending []Completion
	for _, it := range queued {
		if it.state.CompareAndSwap(itemQueued, itemCancelled) {
			pending = append(pending, Completion{fn: it.complete, code: status.Cancelled})
		}
	}

	p.wg.Wait()

	p.mu.Lock()
	pending = append(pending, p.lost...)
	p.lost = nil
	p.items = make(map[abi.WorkHandle]*item)
	p.mu.Unlock()
	return pending
}
