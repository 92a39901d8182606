// Package timeouts defines shared timeout constants used across the relay,
// so transport and inference boundaries agree on their durations.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing a gRPC peer, health check included.
const GRPCDial = 2 * time.Second

// Inference is the default deadline for a single classifier call,
// including the wait for a free inference slot.
const Inference = 750 * time.Millisecond

// PeerWrite bounds a single websocket write to a connected peer.
const PeerWrite = 2 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
