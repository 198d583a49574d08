package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httputil"
	"net/url"
)

// Relay forwards MCP and utility requests to a peer instance, so
// clients pointed at this process still reach the one real server. It
// serves on its own address; requesting port 0 picks a free port.
type Relay struct {
	server *Server
	peer   string
	logger *slog.Logger
}

// NewRelay creates a relay on addr forwarding /mcp, /api/ping, and
// /api/indexing-status to peerAddr.
func NewRelay(addr, peerAddr string, logger *slog.Logger) (*Relay, error) {
	if logger == nil {
		logger = slog.Default()
	}

	target, err := url.Parse("http://" + peerAddr)
	if err != nil {
		return nil, fmt.Errorf("parse peer address %s: %w", peerAddr, err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorLog = slog.NewLogLogger(logger.Handler(), slog.LevelError)

	server := NewServer(addr, logger)
	router := server.Router()
	router.Handle("/api/ping", proxy)
	router.Handle("/api/indexing-status", proxy)
	router.Handle("/mcp", proxy)
	router.Handle("/mcp/*", proxy)

	return &Relay{
		server: server,
		peer:   peerAddr,
		logger: logger,
	}, nil
}

// Listen binds the relay's address.
func (r *Relay) Listen() error {
	return r.server.Listen()
}

// Serve forwards requests until Shutdown.
func (r *Relay) Serve() error {
	r.logger.Info("relaying to peer instance",
		slog.String("peer", r.peer),
		slog.String("addr", r.server.BoundAddr()),
	)
	return r.server.Serve()
}

// Shutdown gracefully stops the relay.
func (r *Relay) Shutdown(ctx context.Context) error {
	return r.server.Shutdown(ctx)
}

// BoundAddr returns the address the relay is bound to. Empty before
// Listen.
func (r *Relay) BoundAddr() string {
	return r.server.BoundAddr()
}

// Peer returns the address being forwarded to.
func (r *Relay) Peer() string {
	return r.peer
}
