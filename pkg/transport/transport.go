// Package transport implements the opaque `transport.send` collaborator
// spec.md §6 names: a request/response channel to executor endpoints that
// neither OrderPool, MatchingEngine, nor ExecutorCoordinator need to know
// the wire details of.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownEndpoint is returned by LoopbackTransport.Send when no handler
// has been registered for the given endpoint.
var ErrUnknownEndpoint = errors.New("transport: unknown endpoint")

// Request is the opaque envelope every Transport implementation carries.
// Op names the RPC (spec.md §4.8's "decrypt", "batch_decrypt", "sign");
// Payload is a gob-encoded request body specific to that op.
type Request struct {
	Op      string
	Payload []byte
}

// Response mirrors Request on the way back. Err is non-empty when the
// remote executor rejected or failed the request; Payload is then empty.
type Response struct {
	Payload []byte
	Err     string
}

// Transport is the narrow send contract every collaborator in pkg/core
// depends on, matching spec.md §6's `transport.send(executor_endpoint,
// message) → response | timeout`.
type Transport interface {
	Send(ctx context.Context, endpoint string, req Request) (Response, error)
}

// Handler answers one Request for a single endpoint.
type Handler func(ctx context.Context, req Request) (Response, error)

// LoopbackTransport dispatches directly to in-process handlers keyed by
// endpoint string, with no network traversal — the default transport for
// single-process deployments and the one every package test in the core
// uses, grounded in the teacher's in-process vote delivery branch of
// Libp2pNet.SendVote (the `to == n.self` fast path in
// pkg/p2p/libp2pnet.go).
type LoopbackTransport struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewLoopbackTransport() *LoopbackTransport {
	return &LoopbackTransport{handlers: make(map[string]Handler)}
}

// Register binds an endpoint name to the handler that answers it.
func (l *LoopbackTransport) Register(endpoint string, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[endpoint] = h
}

// Deregister removes a previously registered endpoint, used when an
// executor goes permanently Offline in tests.
func (l *LoopbackTransport) Deregister(endpoint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.handlers, endpoint)
}

// Get returns the handler currently bound to endpoint, if any, letting a
// caller wrap an existing registration (e.g. to inject latency in tests)
// without having to rebuild it from scratch.
func (l *LoopbackTransport) Get(endpoint string) (Handler, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.handlers[endpoint]
	return h, ok
}

func (l *LoopbackTransport) Send(ctx context.Context, endpoint string, req Request) (Response, error) {
	l.mu.RLock()
	h, ok := l.handlers[endpoint]
	l.mu.RUnlock()
	if !ok {
		return Response{}, fmt.Errorf("%w: %s", ErrUnknownEndpoint, endpoint)
	}
	return h(ctx, req)
}
