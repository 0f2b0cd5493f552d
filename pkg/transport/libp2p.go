package transport

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
)

const protocolExecutorRPC = protocol.ID("/phantompool/executor-rpc/1.0.0")

// LibP2PTransport carries executor requests over libp2p unicast streams,
// adapted from the teacher's Libp2pNet.SendVote/handleVoteStream pair in
// pkg/p2p/libp2pnet.go: one stream per request, gob-encoded payload, no
// pubsub (executor RPCs are point-to-point, not broadcast like propose/
// prepare).
type LibP2PTransport struct {
	h   host.Host
	log *zap.SugaredLogger

	mu       sync.RWMutex
	peerAddr map[string]peer.ID // endpoint string -> resolved peer
	handler  Handler
}

type LibP2PConfig struct {
	ListenAddr string
	Logger     *zap.SugaredLogger
}

func NewLibP2PTransport(cfg LibP2PConfig) (*LibP2PTransport, error) {
	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	t := &LibP2PTransport{h: h, log: cfg.Logger, peerAddr: make(map[string]peer.ID)}
	h.SetStreamHandler(protocolExecutorRPC, t.handleStream)
	if cfg.Logger != nil {
		cfg.Logger.Infow("libp2p_transport_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr)
	}
	return t, nil
}

// SetRequestHandler installs the function this node answers inbound
// executor RPCs with, mirroring Libp2pNet.SetHandlers' single-assignment
// shape.
func (t *LibP2PTransport) SetRequestHandler(h Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// Connect resolves an endpoint's multiaddr and dials it, caching the
// resulting peer ID under that endpoint string for future Sends.
func (t *LibP2PTransport) Connect(ctx context.Context, endpoint string) error {
	m, err := ma.NewMultiaddr(endpoint)
	if err != nil {
		return fmt.Errorf("transport: bad endpoint %q: %w", endpoint, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return fmt.Errorf("transport: bad endpoint %q: %w", endpoint, err)
	}
	if err := t.h.Connect(ctx, *info); err != nil {
		return err
	}
	t.mu.Lock()
	t.peerAddr[endpoint] = info.ID
	t.mu.Unlock()
	return nil
}

func (t *LibP2PTransport) Send(ctx context.Context, endpoint string, req Request) (Response, error) {
	t.mu.RLock()
	pid, ok := t.peerAddr[endpoint]
	t.mu.RUnlock()
	if !ok {
		if err := t.Connect(ctx, endpoint); err != nil {
			return Response{}, err
		}
		t.mu.RLock()
		pid = t.peerAddr[endpoint]
		t.mu.RUnlock()
	}

	stream, err := t.h.NewStream(ctx, pid, protocolExecutorRPC)
	if err != nil {
		return Response{}, fmt.Errorf("transport: open stream: %w", err)
	}
	defer stream.Close()

	data, err := gobEncode(req)
	if err != nil {
		return Response{}, fmt.Errorf("transport: encode request: %w", err)
	}
	if _, err := stream.Write(data); err != nil {
		return Response{}, fmt.Errorf("transport: write request: %w", err)
	}
	if err := stream.CloseWrite(); err != nil {
		return Response{}, fmt.Errorf("transport: close write: %w", err)
	}

	raw, err := io.ReadAll(stream)
	if err != nil {
		return Response{}, fmt.Errorf("transport: read response: %w", err)
	}
	var resp Response
	if err := gobDecode(raw, &resp); err != nil {
		return Response{}, fmt.Errorf("transport: decode response: %w", err)
	}
	return resp, nil
}

func (t *LibP2PTransport) handleStream(s network.Stream) {
	defer s.Close()

	raw, err := io.ReadAll(s)
	if err != nil {
		return
	}
	var req Request
	if err := gobDecode(raw, &req); err != nil {
		return
	}

	t.mu.RLock()
	h := t.handler
	t.mu.RUnlock()
	if h == nil {
		return
	}

	resp, err := h(context.Background(), req)
	if err != nil {
		resp = Response{Err: err.Error()}
	}
	out, err := gobEncode(resp)
	if err != nil {
		return
	}
	_, _ = s.Write(out)
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
