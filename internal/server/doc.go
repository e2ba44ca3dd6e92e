// Package server implements the parlor chat engine: the websocket upgrade
// and hello handshake, the registry of live connections, the per-connection
// read/write pumps, and the broadcast hub that gives all chat events one
// total order and fans them out to every connected client.
package server
