// Package addon assembles native exports into a module the host can load.
//
// A Registry collects named exports in registration order: raw callbacks
// for code that wants handle-level control, reflect-typed Go functions
// that get argument decoding, result encoding, and error-to-exception
// conversion for free, and plain values marshaled once at definition
// time. RegisterAddon sweeps the exported methods of a receiver into the
// registry under lowerCamel names.
//
// Define builds the exports object on the environment thread. Load hooks
// run right after the object is populated and may fail the whole
// definition; unload hooks are handed to the host as cleanup callbacks.
//
// Errors returned by exported functions surface to the host as thrown
// exceptions carrying the status code and message. An error that reports
// a pending exception propagates the existing exception instead of
// replacing it.
package addon
