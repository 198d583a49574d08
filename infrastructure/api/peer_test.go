package api

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// peerServer fakes another instance's utility endpoints.
func peerServer(t *testing.T, ping, status string) (*httptest.Server, string) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(ping))
	})
	mux.HandleFunc("/api/indexing-status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(status))
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, strings.TrimPrefix(ts.URL, "http://")
}

func TestDetectPeer(t *testing.T) {
	_, addr := peerServer(t,
		`{"service":"CodeCompass","status":"ok","version":"1.2.3"}`,
		`{"state":"completed"}`,
	)

	info, err := DetectPeer(context.Background(), addr)
	if err != nil {
		t.Fatalf("DetectPeer: %v", err)
	}
	if !info.IsCodeCompass() {
		t.Errorf("expected peer to identify as CodeCompass, got %+v", info)
	}
	if info.Version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", info.Version)
	}
}

func TestDetectPeerForeignService(t *testing.T) {
	_, addr := peerServer(t, `{"service":"other-daemon","status":"ok"}`, `{}`)

	info, err := DetectPeer(context.Background(), addr)
	if err != nil {
		t.Fatalf("DetectPeer: %v", err)
	}
	if info.IsCodeCompass() {
		t.Error("foreign service must not identify as CodeCompass")
	}
}

func TestDetectPeerNonJSON(t *testing.T) {
	_, addr := peerServer(t, "<html>not an api</html>", "")

	if _, err := DetectPeer(context.Background(), addr); err == nil {
		t.Error("expected error for non-JSON ping body")
	}
}

func TestDetectPeerNoListener(t *testing.T) {
	holder, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := holder.Addr().String()
	_ = holder.Close()

	if _, err := DetectPeer(context.Background(), addr); err == nil {
		t.Error("expected error when nothing is listening")
	}
}

func TestDetectPeerHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(ts.Close)

	_, err := DetectPeer(context.Background(), strings.TrimPrefix(ts.URL, "http://"))
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("expected 500 error, got %v", err)
	}
}

func TestFetchPeerStatus(t *testing.T) {
	_, addr := peerServer(t,
		`{"service":"CodeCompass","status":"ok","version":"1.2.3"}`,
		`{"state":"indexing_file_content","progress":40}`,
	)

	status, err := FetchPeerStatus(context.Background(), addr)
	if err != nil {
		t.Fatalf("FetchPeerStatus: %v", err)
	}
	if !strings.Contains(status, "indexing_file_content") {
		t.Errorf("unexpected status document: %s", status)
	}
}

func TestRelayForwardsPeerEndpoints(t *testing.T) {
	_, addr := peerServer(t,
		`{"service":"CodeCompass","status":"ok","version":"1.2.3"}`,
		`{"state":"completed","progress":100}`,
	)

	relay, err := NewRelay("127.0.0.1:0", addr, testLogger())
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}

	for path, want := range map[string]string{
		"/api/ping":            `"version":"1.2.3"`,
		"/api/indexing-status": `"state":"completed"`,
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		relay.server.Router().ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, w.Code)
		}
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("GET %s body = %s, want to contain %s", path, w.Body.String(), want)
		}
	}
}

func TestRelayDoesNotForwardOtherPaths(t *testing.T) {
	_, addr := peerServer(t, `{"service":"CodeCompass"}`, `{}`)

	relay, err := NewRelay("127.0.0.1:0", addr, testLogger())
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/repository/notify-update", nil)
	w := httptest.NewRecorder()
	relay.server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound && w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want not found (relay must not forward triggers)", w.Code)
	}
}
