// Package stream implements the live fan-out subsystem using the actor pattern.
//
// The Broadcaster owns the registry of open live-update connections and fans
// newly persisted messages out to all of them. Uses single goroutine + command
// channel (no mutexes on the registry). Per-connection writer goroutines own
// the transport exclusively and double as heartbeat keepers, so silently dead
// connections are reaped within one heartbeat interval.
package stream
