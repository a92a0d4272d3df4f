// Package asyncwork bridges background work onto the environment thread.
//
// Spawn hands a work function to the host's background worker pool and a
// completion function to the environment thread. The work function runs
// off-thread and must not touch environment state; its result and error
// travel to the completion function, which runs on the environment
// thread inside a fresh environment entry and may create values, throw,
// and call back into the host.
//
// A task moves through queued, executing, completion-pending, delivered,
// and done. Cancel succeeds only while the task is still queued; once a
// worker has picked it up the task always runs to completion delivery.
// A task cancelled in time skips the work function entirely and delivers
// a cancelled error to the completion function instead.
//
// A panic in the work function is captured and surfaces as the task's
// error; it never takes down the worker.
package asyncwork
