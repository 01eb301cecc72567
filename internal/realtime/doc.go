// Package realtime is the server side of the push channel.
//
// # Overview
//
// A Hub owns every live Connection. Presence counts connections per user so
// a user stays online while any tab or device is connected; the first
// connection announces userOnline and the last one to close announces
// userOffline. The Broadcaster groups connections into conversation rooms.
//
// # Delivery
//
// Each Connection has a bounded outbound queue drained by one writer
// goroutine, so frames for a connection arrive in publish order. Publishing
// never blocks: a connection whose queue is full misses the frame and
// recovers through the HTTP API on its next fetch.
//
// # Usage
//
//	hub := realtime.NewHub(realtime.HubOptions{}, logger)
//	mux.Handle("/ws", authMiddleware(realtime.NewHandler(hub, realtime.HandlerOptions{}, logger)))
//	svc := messaging.New(st, dir, hub, messaging.Options{}, logger)
package realtime
