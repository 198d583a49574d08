package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/codecompass/codecompass/domain/point"
	"github.com/codecompass/codecompass/domain/repository"
	"github.com/codecompass/codecompass/domain/service"
)

// Payload field names on the wire.
const (
	fieldPointID        = "point_id"
	fieldDataType       = "dataType"
	fieldFilepath       = "filepath"
	fieldFileChunk      = "file_content_chunk"
	fieldLastModified   = "last_modified"
	fieldChunkIndex     = "chunk_index"
	fieldTotalChunks    = "total_chunks"
	fieldRepositoryPath = "repositoryPath"
	fieldCommitOID      = "commit_oid"
	fieldCommitMessage  = "commit_message"
	fieldAuthorName     = "commit_author_name"
	fieldAuthorEmail    = "commit_author_email"
	fieldCommitDate     = "commit_date"
	fieldChangedFiles   = "changed_files_summary"
	fieldParentOIDs     = "parent_oids"
	fieldDiffChunk      = "diff_content_chunk"
	fieldChangeType     = "change_type"
)

// WireID returns the UUID Qdrant stores for a logical point ID. Qdrant
// only accepts integers or UUIDs as point IDs, so logical IDs are mapped
// through a name-based UUID; the logical ID rides along in the payload.
func WireID(logicalID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(logicalID)).String()
}

type wirePoint struct {
	ID      string         `json:"id"`
	Vector  []float64      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

type wireFilter struct {
	Must []wireCondition `json:"must,omitempty"`
}

type wireCondition struct {
	Key   string    `json:"key"`
	Match wireMatch `json:"match"`
}

type wireMatch struct {
	Value any   `json:"value,omitempty"`
	Any   []any `json:"any,omitempty"`
}

// encodeFilter maps a domain filter to Qdrant's must-clause form. A zero
// filter encodes to nil (match everything).
func encodeFilter(f point.Filter) *wireFilter {
	if f.IsZero() {
		return nil
	}
	var conditions []wireCondition
	if dt := f.DataType(); dt != "" {
		conditions = append(conditions, wireCondition{
			Key:   fieldDataType,
			Match: wireMatch{Value: string(dt)},
		})
	}
	if paths := f.Filepaths(); len(paths) > 0 {
		values := make([]any, len(paths))
		for i, p := range paths {
			values[i] = p
		}
		conditions = append(conditions, wireCondition{
			Key:   fieldFilepath,
			Match: wireMatch{Any: values},
		})
	}
	if indexes := f.ChunkIndexes(); len(indexes) > 0 {
		values := make([]any, len(indexes))
		for i, n := range indexes {
			values[i] = n
		}
		conditions = append(conditions, wireCondition{
			Key:   fieldChunkIndex,
			Match: wireMatch{Any: values},
		})
	}
	return &wireFilter{Must: conditions}
}

// encodePayload renders a payload with its logical point ID.
func encodePayload(id string, p point.Payload) map[string]any {
	m := map[string]any{
		fieldPointID:  id,
		fieldDataType: string(p.DataType()),
	}
	switch v := p.(type) {
	case point.FileChunkPayload:
		m[fieldFilepath] = v.Filepath()
		m[fieldFileChunk] = v.Chunk()
		m[fieldLastModified] = v.LastModified().UTC().Format(time.RFC3339)
		m[fieldChunkIndex] = v.ChunkIndex()
		m[fieldTotalChunks] = v.TotalChunks()
		if v.RepositoryPath() != "" {
			m[fieldRepositoryPath] = v.RepositoryPath()
		}
	case point.CommitInfoPayload:
		m[fieldCommitOID] = v.OID()
		m[fieldCommitMessage] = v.Message()
		m[fieldAuthorName] = v.Author().Name()
		m[fieldAuthorEmail] = v.Author().Email()
		m[fieldCommitDate] = v.Date().UTC().Format(time.RFC3339)
		m[fieldChangedFiles] = v.ChangedFiles()
		m[fieldParentOIDs] = v.Parents()
		if v.RepositoryPath() != "" {
			m[fieldRepositoryPath] = v.RepositoryPath()
		}
	case point.DiffChunkPayload:
		m[fieldCommitOID] = v.OID()
		m[fieldFilepath] = v.Filepath()
		m[fieldDiffChunk] = v.Chunk()
		m[fieldChunkIndex] = v.ChunkIndex()
		m[fieldTotalChunks] = v.TotalChunks()
		m[fieldChangeType] = string(v.ChangeType())
		if v.RepositoryPath() != "" {
			m[fieldRepositoryPath] = v.RepositoryPath()
		}
	}
	return m
}

// decodePayload reconstructs a payload from wire form. The second return
// is the logical point ID.
func decodePayload(m map[string]any) (point.Payload, string, error) {
	id, _ := m[fieldPointID].(string)
	dt, _ := m[fieldDataType].(string)

	switch point.DataType(dt) {
	case point.DataTypeFileChunk:
		return point.NewFileChunkPayload(
			asString(m[fieldFilepath]),
			asString(m[fieldFileChunk]),
			asTime(m[fieldLastModified]),
			asInt(m[fieldChunkIndex]),
			asInt(m[fieldTotalChunks]),
			asString(m[fieldRepositoryPath]),
		), id, nil
	case point.DataTypeCommitInfo:
		return point.NewCommitInfoPayload(
			asString(m[fieldCommitOID]),
			asString(m[fieldCommitMessage]),
			repository.NewAuthor(asString(m[fieldAuthorName]), asString(m[fieldAuthorEmail])),
			asTime(m[fieldCommitDate]),
			asStrings(m[fieldChangedFiles]),
			asStrings(m[fieldParentOIDs]),
			asString(m[fieldRepositoryPath]),
		), id, nil
	case point.DataTypeDiffChunk:
		return point.NewDiffChunkPayload(
			asString(m[fieldCommitOID]),
			asString(m[fieldFilepath]),
			asString(m[fieldDiffChunk]),
			asInt(m[fieldChunkIndex]),
			asInt(m[fieldTotalChunks]),
			repository.ChangeType(asString(m[fieldChangeType])),
			asString(m[fieldRepositoryPath]),
		), id, nil
	default:
		return nil, id, fmt.Errorf("unknown payload dataType %q", dt)
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}

func asTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func asStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			result = append(result, s)
		}
	}
	return result
}

type upsertRequest struct {
	Points []wirePoint `json:"points"`
}

// BatchUpsert writes points in batches of the configured size. Each
// batch retries independently; the first batch that exhausts its
// retries aborts the whole upsert.
func (c *Client) BatchUpsert(ctx context.Context, points []point.Point) error {
	if len(points) == 0 {
		return nil
	}

	wire := make([]wirePoint, len(points))
	for i, p := range points {
		vector := p.Vector()
		if len(vector) != c.dimension {
			return NewStoreError("upsert", 0, fmt.Sprintf(
				"point %q vector has %d dimensions, collection wants %d", p.ID(), len(vector), c.dimension,
			), nil)
		}
		wire[i] = wirePoint{
			ID:      WireID(p.ID()),
			Vector:  vector,
			Payload: encodePayload(p.ID(), p.Payload()),
		}
	}

	for start := 0; start < len(wire); start += c.batchSize {
		end := min(start+c.batchSize, len(wire))
		batch := upsertRequest{Points: wire[start:end]}

		err := c.withRetry(ctx, func() error {
			status, body, err := c.do(ctx, http.MethodPut, "/collections/"+c.collection+"/points?wait=true", batch)
			if err != nil {
				return NewStoreError("upsert", 0, "request failed", err)
			}
			if status != http.StatusOK {
				return NewStoreError("upsert", status, string(body), nil)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("upsert batch %d-%d of %d points: %w", start, end, len(wire), err)
		}
	}
	return nil
}

type searchRequest struct {
	Vector      []float64   `json:"vector"`
	Limit       int         `json:"limit"`
	WithPayload bool        `json:"with_payload"`
	Filter      *wireFilter `json:"filter,omitempty"`
}

type searchResponse struct {
	Result []struct {
		ID      string         `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

// Search returns up to limit points nearest to vector, best first.
// Points whose payload cannot be classified are logged and skipped.
func (c *Client) Search(ctx context.Context, vector []float64, limit int, filter point.Filter) ([]point.ScoredPoint, error) {
	if len(vector) != c.dimension {
		return nil, NewStoreError("search", 0, fmt.Sprintf(
			"query vector has %d dimensions, collection wants %d", len(vector), c.dimension,
		), nil)
	}
	if limit <= 0 {
		limit = 10
	}

	req := searchRequest{
		Vector:      vector,
		Limit:       limit,
		WithPayload: true,
		Filter:      encodeFilter(filter),
	}

	var resp searchResponse
	err := c.withRetry(ctx, func() error {
		status, body, err := c.do(ctx, http.MethodPost, "/collections/"+c.collection+"/points/search", req)
		if err != nil {
			return NewStoreError("search", 0, "request failed", err)
		}
		if status != http.StatusOK {
			return NewStoreError("search", status, string(body), nil)
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return NewStoreError("search", status, "decode response", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]point.ScoredPoint, 0, len(resp.Result))
	for _, hit := range resp.Result {
		payload, logicalID, err := decodePayload(hit.Payload)
		if err != nil {
			slog.Warn("skipping unclassifiable point", "wire_id", hit.ID, "error", err)
			continue
		}
		if logicalID == "" {
			logicalID = hit.ID
		}
		results = append(results, point.NewScoredPoint(logicalID, hit.Score, payload))
	}
	return results, nil
}

type scrollRequest struct {
	Filter      *wireFilter     `json:"filter,omitempty"`
	Limit       int             `json:"limit"`
	Offset      json.RawMessage `json:"offset,omitempty"`
	WithPayload bool            `json:"with_payload"`
	WithVector  bool            `json:"with_vector"`
}

type scrollResponse struct {
	Result struct {
		Points []struct {
			ID      string         `json:"id"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
		NextPageOffset json.RawMessage `json:"next_page_offset"`
	} `json:"result"`
}

// Scroll pages through points matching filter. offset is "" for the
// first page; pass the returned cursor for subsequent pages. Returned
// points carry payloads but no vectors.
func (c *Client) Scroll(ctx context.Context, filter point.Filter, limit int, offset string) (service.ScrollPage, error) {
	if limit <= 0 {
		limit = 100
	}

	req := scrollRequest{
		Filter:      encodeFilter(filter),
		Limit:       limit,
		WithPayload: true,
		WithVector:  false,
	}
	if offset != "" {
		req.Offset = json.RawMessage(offset)
	}

	var resp scrollResponse
	err := c.withRetry(ctx, func() error {
		status, body, err := c.do(ctx, http.MethodPost, "/collections/"+c.collection+"/points/scroll", req)
		if err != nil {
			return NewStoreError("scroll", 0, "request failed", err)
		}
		if status != http.StatusOK {
			return NewStoreError("scroll", status, string(body), nil)
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return NewStoreError("scroll", status, "decode response", err)
		}
		return nil
	})
	if err != nil {
		return service.ScrollPage{}, err
	}

	points := make([]point.Point, 0, len(resp.Result.Points))
	for _, item := range resp.Result.Points {
		payload, logicalID, err := decodePayload(item.Payload)
		if err != nil {
			slog.Warn("skipping unclassifiable point", "wire_id", item.ID, "error", err)
			continue
		}
		if logicalID == "" {
			logicalID = item.ID
		}
		points = append(points, point.NewPoint(logicalID, nil, payload))
	}

	next := ""
	if len(resp.Result.NextPageOffset) > 0 && string(resp.Result.NextPageOffset) != "null" {
		next = string(resp.Result.NextPageOffset)
	}
	return service.NewScrollPage(points, next), nil
}

type deleteRequest struct {
	Points []string `json:"points"`
}

// Delete removes points by their logical IDs.
func (c *Client) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	wire := make([]string, len(ids))
	for i, id := range ids {
		wire[i] = WireID(id)
	}

	return c.withRetry(ctx, func() error {
		status, body, err := c.do(ctx, http.MethodPost, "/collections/"+c.collection+"/points/delete?wait=true", deleteRequest{Points: wire})
		if err != nil {
			return NewStoreError("delete", 0, "request failed", err)
		}
		if status != http.StatusOK {
			return NewStoreError("delete", status, string(body), nil)
		}
		return nil
	})
}

type countRequest struct {
	Filter *wireFilter `json:"filter,omitempty"`
	Exact  bool        `json:"exact"`
}

type countResponse struct {
	Result struct {
		Count int `json:"count"`
	} `json:"result"`
}

// Count returns how many points match filter.
func (c *Client) Count(ctx context.Context, filter point.Filter) (int, error) {
	req := countRequest{Filter: encodeFilter(filter), Exact: true}

	var resp countResponse
	err := c.withRetry(ctx, func() error {
		status, body, err := c.do(ctx, http.MethodPost, "/collections/"+c.collection+"/points/count", req)
		if err != nil {
			return NewStoreError("count", 0, "request failed", err)
		}
		if status != http.StatusOK {
			return NewStoreError("count", status, string(body), nil)
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return NewStoreError("count", status, "decode response", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Ensure Client implements the domain interface.
var _ service.VectorStore = (*Client)(nil)
