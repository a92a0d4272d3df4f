// Package gojahost runs addons against a real JavaScript engine. It
// implements the complete boundary function table over a goja runtime driven
// by a goja_nodejs event loop, so the same native code that tests exercise
// against fakehost serves scripts unchanged.
//
// The event loop goroutine is the environment thread: every dispatched
// callback, work completion, and lifecycle hook runs there, and value
// operations from any other goroutine panic immediately. Handles live in a
// slot table over goja values and die when their owning scope closes; the
// values themselves stay alive as long as the engine reaches them.
//
// Addons install as require()-able native modules. Install registers a
// loader that defines the addon's exports the first time a script requires
// it; native throws surface as JavaScript exceptions and script throws come
// back to native code as pending exceptions, so error flow works the same in
// both directions.
package gojahost
