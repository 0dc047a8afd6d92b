// Package realtime implements the connection and room fan-out engine.
//
// A Registry tracks every authenticated connection and the rooms it joined, an
// Index maps rooms back to their subscribed connections, and a Dispatcher
// delivers encoded events to a snapshot of those subscribers. The Controller
// is the only component that mutates both structures, which keeps them
// consistent across join, leave and disconnect, including disconnects caused
// by failed deliveries and drained by the Reaper.
//
// Nothing in this package is persisted: the state is rebuilt from live
// connections after a restart.
package realtime
