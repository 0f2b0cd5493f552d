package transport

import (
	"context"
	"testing"
)

func TestLoopbackTransportDispatchesToRegisteredHandler(t *testing.T) {
	lt := NewLoopbackTransport()
	lt.Register("executor-0", func(ctx context.Context, req Request) (Response, error) {
		return Response{Payload: append([]byte("echo:"), req.Payload...)}, nil
	})

	resp, err := lt.Send(context.Background(), "executor-0", Request{Op: "decrypt", Payload: []byte("hi")})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if string(resp.Payload) != "echo:hi" {
		t.Fatalf("unexpected payload: %s", resp.Payload)
	}
}

func TestLoopbackTransportRejectsUnknownEndpoint(t *testing.T) {
	lt := NewLoopbackTransport()
	if _, err := lt.Send(context.Background(), "nope", Request{}); err == nil {
		t.Fatalf("expected error for unknown endpoint")
	}
}

func TestLoopbackTransportDeregisterRemovesEndpoint(t *testing.T) {
	lt := NewLoopbackTransport()
	lt.Register("executor-0", func(ctx context.Context, req Request) (Response, error) {
		return Response{}, nil
	})
	lt.Deregister("executor-0")
	if _, err := lt.Send(context.Background(), "executor-0", Request{}); err == nil {
		t.Fatalf("expected error after deregister")
	}
}
