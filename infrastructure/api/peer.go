package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// pingTimeout bounds peer probes so startup never hangs on a port held
// by an unresponsive process.
const pingTimeout = 500 * time.Millisecond

// maxPeerBody caps how much of a peer response is read.
const maxPeerBody = 1 << 16

// PeerInfo is the identity a conflicting port's /api/ping returned.
type PeerInfo struct {
	Service string `json:"service"`
	Status  string `json:"status"`
	Version string `json:"version"`
}

// IsCodeCompass reports whether the responder is another instance of
// this service.
func (p PeerInfo) IsCodeCompass() bool {
	return p.Service == ServiceName
}

// DetectPeer probes addr's /api/ping. A PeerInfo with
// IsCodeCompass()==false means something answered HTTP but is not this
// service; an error means the port holder did not answer a well-formed
// ping at all.
func DetectPeer(ctx context.Context, addr string) (PeerInfo, error) {
	body, err := peerGet(ctx, addr, "/api/ping")
	if err != nil {
		return PeerInfo{}, err
	}

	var info PeerInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return PeerInfo{}, fmt.Errorf("peer ping returned non-JSON body: %w", err)
	}
	return info, nil
}

// FetchPeerStatus retrieves the peer's indexing status document.
func FetchPeerStatus(ctx context.Context, addr string) (string, error) {
	body, err := peerGet(ctx, addr, "/api/indexing-status")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// peerGet issues a bounded GET against a peer endpoint.
func peerGet(ctx context.Context, addr, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build peer request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("peer did not respond on %s: %w", addr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer %s%s returned %d", addr, path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPeerBody))
	if err != nil {
		return nil, fmt.Errorf("read peer response: %w", err)
	}
	return body, nil
}
