// Package server implements the HTTP and WebSocket transport for roomchat.
//
// A Server owns the chat core (registry, sessions, router, reaper) and a Hub
// that holds one Client per WebSocket connection. Inbound frames flow from a
// client's read pump into the router; outbound envelopes flow back through
// Hub.Send into each client's write pump. Configuration, origin checks,
// metrics and routing live in their own files.
package server
