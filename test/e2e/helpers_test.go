// Package e2e_test exercises the assembled server over real HTTP: a
// client wired to an in-memory vector store and fake providers, the
// utility endpoints, and the MCP transport mounted on the same router.
package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codecompass/codecompass"
	"github.com/codecompass/codecompass/domain/point"
	domainservice "github.com/codecompass/codecompass/domain/service"
	"github.com/codecompass/codecompass/infrastructure/api"
)

// TestServer runs the utility HTTP surface and MCP transport against a
// client built on fakes, listening on a real TCP port.
type TestServer struct {
	t          *testing.T
	client     *codecompass.Client
	httpServer *httptest.Server
	store      *memoryStore
	repoPath   string
}

// NewTestServer creates a git repository from files, builds a client
// against it, and serves the full router over HTTP. Later options
// override the fake defaults.
func NewTestServer(t *testing.T, files map[string]string, extra ...codecompass.Option) *TestServer {
	t.Helper()

	repoPath := createGitRepo(t, files)
	store := newMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	opts := []codecompass.Option{
		codecompass.WithRepoPath(repoPath),
		codecompass.WithDataDir(t.TempDir()),
		codecompass.WithVectorStore(store),
		codecompass.WithEmbedder(&fakeEmbedder{}),
		codecompass.WithTextGeneratorSource(fakeGeneratorSource{}),
		codecompass.WithConnectionChecker(fakeChecker{}),
		codecompass.WithLogger(logger),
	}
	opts = append(opts, extra...)

	client, err := codecompass.New(opts...)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	server := api.NewServer(":0", logger)
	handlers := api.NewHandlers(codecompass.Version, client.Indexer, client.Indexer, logger)
	handlers.Mount(server.Router(), client.MCPHandler())

	ts := &TestServer{
		t:          t,
		client:     client,
		httpServer: httptest.NewServer(server.Router()),
		store:      store,
		repoPath:   repoPath,
	}

	t.Cleanup(func() {
		ts.Close()
	})

	return ts
}

// URL returns the base URL of the test server.
func (ts *TestServer) URL() string {
	return ts.httpServer.URL
}

// Addr returns the host:port the test server listens on.
func (ts *TestServer) Addr() string {
	return strings.TrimPrefix(ts.httpServer.URL, "http://")
}

// Close shuts down the test server.
func (ts *TestServer) Close() {
	ts.httpServer.Close()
	_ = ts.client.Close()
}

// RunIndex runs one full indexing pass synchronously.
func (ts *TestServer) RunIndex() {
	ts.t.Helper()
	if err := ts.client.Indexer.Run(context.Background()); err != nil {
		ts.t.Fatalf("run indexer: %v", err)
	}
}

// GET performs a GET request and returns the response.
func (ts *TestServer) GET(path string) *http.Response {
	ts.t.Helper()
	resp, err := http.Get(ts.URL() + path)
	if err != nil {
		ts.t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// POST performs a POST request with JSON body and returns the response.
func (ts *TestServer) POST(path string, body any) *http.Response {
	ts.t.Helper()
	jsonBody, err := json.Marshal(body)
	if err != nil {
		ts.t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(ts.URL()+path, "application/json", bytes.NewReader(jsonBody))
	if err != nil {
		ts.t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

// DecodeJSON decodes the response body as JSON into v.
func (ts *TestServer) DecodeJSON(resp *http.Response, v any) {
	ts.t.Helper()
	defer func() {
		_ = resp.Body.Close()
	}()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		ts.t.Fatalf("decode response: %v", err)
	}
}

// ReadBody reads and returns the response body as a string.
func (ts *TestServer) ReadBody(resp *http.Response) string {
	ts.t.Helper()
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		ts.t.Fatalf("read body: %v", err)
	}
	return string(body)
}

// WaitForIndexingState polls /api/indexing-status until the state
// matches or the deadline passes.
func (ts *TestServer) WaitForIndexingState(state string, timeout time.Duration) {
	ts.t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		resp := ts.GET("/api/indexing-status")
		var status struct {
			State string `json:"state"`
			Error string `json:"error"`
		}
		ts.DecodeJSON(resp, &status)
		if status.State == state {
			return
		}
		if time.Now().After(deadline) {
			ts.t.Fatalf("indexing state = %q (error: %q), want %q within %s",
				status.State, status.Error, state, timeout)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

// mcpRequest builds a JSON-RPC request body.
func mcpRequest(t *testing.T, method string, id int, params map[string]any) []byte {
	t.Helper()
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
	}
	if params != nil {
		msg["params"] = params
	}
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return b
}

// PostMCP sends a JSON-RPC body to the /mcp endpoint.
func (ts *TestServer) PostMCP(body []byte, sessionID string) *http.Response {
	ts.t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL()+"/mcp", bytes.NewReader(body))
	if err != nil {
		ts.t.Fatalf("create MCP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		ts.t.Fatalf("POST /mcp: %v", err)
	}
	return resp
}

// InitMCPSession sends an initialize request and returns the session ID.
func (ts *TestServer) InitMCPSession() string {
	ts.t.Helper()
	body := mcpRequest(ts.t, "initialize", 1, map[string]any{
		"protocolVersion": "2025-06-18",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "e2e", "version": "0.0.1"},
	})
	resp := ts.PostMCP(body, "")
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		ts.t.Fatalf("initialize: status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	sessionID := resp.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		ts.t.Fatal("initialize did not return a session ID")
	}
	return sessionID
}

// CallTool performs a tools/call and returns the text content and
// whether the tool reported an error.
func (ts *TestServer) CallTool(sessionID string, id int, name string, args map[string]any) (string, bool) {
	ts.t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	body := mcpRequest(ts.t, "tools/call", id, map[string]any{
		"name":      name,
		"arguments": args,
	})
	resp := ts.PostMCP(body, sessionID)
	if resp.StatusCode != http.StatusOK {
		ts.t.Fatalf("tools/call %s: status = %d, want %d", name, resp.StatusCode, http.StatusOK)
	}
	return toolResultText(ts.t, resp)
}

// toolResultText decodes the JSON-RPC response of a tools/call and
// returns the text content and whether the tool reported an error.
func toolResultText(t *testing.T, resp *http.Response) (string, bool) {
	t.Helper()
	defer func() {
		_ = resp.Body.Close()
	}()
	var decoded struct {
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode tool result: %v", err)
	}
	if len(decoded.Result.Content) == 0 {
		return "", decoded.Result.IsError
	}
	return decoded.Result.Content[0].Text, decoded.Result.IsError
}

// runGit runs one git command inside dir and fails the test on error.
func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v: %s", strings.Join(args, " "), err, out)
	}
}

// createGitRepo creates a local git repository containing the given
// files in a single initial commit and returns its path.
func createGitRepo(t *testing.T, files map[string]string) string {
	t.Helper()

	repoDir := filepath.Join(t.TempDir(), "repo")
	if err := os.MkdirAll(repoDir, 0o755); err != nil {
		t.Fatalf("create repo directory: %v", err)
	}

	runGit(t, repoDir, "init")
	runGit(t, repoDir, "config", "user.email", "test@example.com")
	runGit(t, repoDir, "config", "user.name", "Test User")

	for name, content := range files {
		path := filepath.Join(repoDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("create parent of %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	runGit(t, repoDir, "add", "-A")
	runGit(t, repoDir, "commit", "-m", "Initial commit")

	return repoDir
}

// memoryStore is an in-memory vector store. Search returns stored
// points in ID order, so results are deterministic across runs.
type memoryStore struct {
	mu     sync.Mutex
	points map[string]point.Point
}

func newMemoryStore() *memoryStore {
	return &memoryStore{points: make(map[string]point.Point)}
}

func (m *memoryStore) Initialize(_ context.Context) error { return nil }

func (m *memoryStore) HealthCheck(_ context.Context) error { return nil }

func (m *memoryStore) BatchUpsert(_ context.Context, points []point.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.points[p.ID()] = p
	}
	return nil
}

func (m *memoryStore) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.points, id)
	}
	return nil
}

func (m *memoryStore) Search(_ context.Context, _ []float64, limit int, _ point.Filter) ([]point.ScoredPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var hits []point.ScoredPoint
	for _, id := range m.sortedIDs() {
		if len(hits) == limit {
			break
		}
		p := m.points[id]
		hits = append(hits, point.NewScoredPoint(p.ID(), 0.9, p.Payload()))
	}
	return hits, nil
}

func (m *memoryStore) Scroll(_ context.Context, filter point.Filter, limit int, offset string) (domainservice.ScrollPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []point.Point
	for _, id := range m.sortedIDs() {
		if p := m.points[id]; matchesFilter(p, filter) {
			matched = append(matched, p)
		}
	}

	start := 0
	if offset != "" {
		parsed, err := strconv.Atoi(offset)
		if err != nil {
			return domainservice.ScrollPage{}, err
		}
		start = parsed
	}
	if start >= len(matched) {
		return domainservice.NewScrollPage(nil, ""), nil
	}

	end := start + limit
	next := ""
	if end >= len(matched) {
		end = len(matched)
	} else {
		next = strconv.Itoa(end)
	}
	return domainservice.NewScrollPage(matched[start:end], next), nil
}

func (m *memoryStore) Count(_ context.Context, filter point.Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, p := range m.points {
		if matchesFilter(p, filter) {
			count++
		}
	}
	return count, nil
}

func (m *memoryStore) sortedIDs() []string {
	ids := make([]string, 0, len(m.points))
	for id := range m.points {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// size returns how many points the store holds.
func (m *memoryStore) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.points)
}

func matchesFilter(p point.Point, f point.Filter) bool {
	if f.IsZero() {
		return true
	}
	if dt := f.DataType(); dt != "" && p.Payload().DataType() != dt {
		return false
	}
	if paths := f.Filepaths(); len(paths) > 0 {
		path := payloadPath(p.Payload())
		found := false
		for _, candidate := range paths {
			if candidate == path {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if indexes := f.ChunkIndexes(); len(indexes) > 0 {
		fc, ok := p.Payload().(point.FileChunkPayload)
		if !ok {
			return false
		}
		found := false
		for _, idx := range indexes {
			if idx == fc.ChunkIndex() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func payloadPath(p point.Payload) string {
	switch payload := p.(type) {
	case point.FileChunkPayload:
		return payload.Filepath()
	case point.DiffChunkPayload:
		return payload.Filepath()
	default:
		return ""
	}
}

// fakeEmbedder returns a constant vector for every text.
type fakeEmbedder struct{}

func (fakeEmbedder) GenerateEmbedding(_ context.Context, _ string) ([]float64, error) {
	return []float64{0.1, 0.2, 0.3}, nil
}

func (fakeEmbedder) GenerateEmbeddings(_ context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i := range texts {
		vectors[i] = []float64{0.1, 0.2, 0.3}
	}
	return vectors, nil
}

// staticGenerator returns the same text for every prompt.
type staticGenerator struct {
	text string
}

func (g staticGenerator) GenerateText(_ context.Context, _, _ string) (string, error) {
	return g.text, nil
}

// fakeGeneratorSource resolves a fixed generator. The zero value has no
// generator, so model-gated tools report the model as unavailable.
type fakeGeneratorSource struct {
	gen       domainservice.TextGenerator
	available bool
}

func (s fakeGeneratorSource) SuggestionGenerator(_ context.Context) (domainservice.TextGenerator, error) {
	if s.gen == nil {
		return nil, errors.New("no suggestion model configured")
	}
	return s.gen, nil
}

func (s fakeGeneratorSource) SuggestionAvailable(_ context.Context) bool { return s.available }

type fakeChecker struct{}

func (fakeChecker) CheckConnection(_ context.Context) error { return nil }
