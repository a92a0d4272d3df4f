// Package callqueue provides thread-safe call queues that let arbitrary
// goroutines schedule callback invocations on an environment's thread.
//
// A Queue is created on the environment thread and bound to a callback.
// Any goroutine may then submit payloads with Call; the queue delivers
// them to the callback strictly in submission order, one at a time, on
// the environment thread. Each delivery runs inside a fresh environment
// entry with its own root handle scope.
//
// Queues are reference counted. New returns a queue holding one
// acquisition on behalf of the creator; additional producers take their
// own with Acquire and drop them with Guard.Release. When the last
// acquisition is released the queue stops accepting payloads, drains
// what was already submitted, runs the finalizer on the environment
// thread, and closes. Abort skips the drain: pending payloads are
// dropped and only the finalizer runs.
//
// Bounded queues (WithCapacity) apply backpressure. A blocking Call
// waits for a free slot; a non-blocking Call fails immediately with a
// queue-full error.
//
// A callback that panics does not take down the environment thread; the
// panic is recovered and logged.
package callqueue
