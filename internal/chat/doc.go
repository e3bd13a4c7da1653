// Package chat implements the room registry and event-driven fan-out engine
// behind the room chat relay.
//
// The package owns every piece of shared mutable state: rooms, memberships,
// bounded message history and per-connection sessions. Transport concerns
// (upgrades, pumps, origins) live in the server package, which reaches this
// package only through Router and the Emitter port it implements.
package chat
