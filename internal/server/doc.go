// Package server is the websocket and HTTP front of chatwave.
//
// A Server owns one realtime engine (registry, room index, dispatcher,
// controller) plus its background workers. Each websocket becomes a
// Connection: the write pump drains frames queued by the dispatcher, the read
// pump decodes client events, persists messages and reactions through the
// Store, then hands them to the controller for fan-out.
package server
