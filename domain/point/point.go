package point

import "fmt"

// FileChunkID returns the deterministic point ID for a file content
// chunk. path must already be normalized (the same normalization applied
// before embedding) so one source always maps to one ID.
func FileChunkID(path string, index int) string {
	return fmt.Sprintf("file:%s:chunk:%d", path, index)
}

// CommitID returns the deterministic point ID for a commit.
func CommitID(oid string) string {
	return "commit:" + oid
}

// DiffChunkID returns the deterministic point ID for a diff chunk.
// path must already be normalized, as for FileChunkID.
func DiffChunkID(oid, path string, index int) string {
	return fmt.Sprintf("diff:%s:%s:chunk:%d", oid, path, index)
}

// Point is one vector with its identity and payload.
type Point struct {
	id      string
	vector  []float64
	payload Payload
}

// NewPoint creates a new Point.
func NewPoint(id string, vector []float64, payload Payload) Point {
	v := make([]float64, len(vector))
	copy(v, vector)
	return Point{
		id:      id,
		vector:  v,
		payload: payload,
	}
}

// ID returns the logical point ID.
func (p Point) ID() string { return p.id }

// Vector returns the embedding vector.
func (p Point) Vector() []float64 {
	result := make([]float64, len(p.vector))
	copy(result, p.vector)
	return result
}

// Payload returns the point payload.
func (p Point) Payload() Payload { return p.payload }

// ScoredPoint is a search hit: a stored point plus its similarity score.
type ScoredPoint struct {
	id      string
	score   float64
	payload Payload
}

// NewScoredPoint creates a new ScoredPoint.
func NewScoredPoint(id string, score float64, payload Payload) ScoredPoint {
	return ScoredPoint{
		id:      id,
		score:   score,
		payload: payload,
	}
}

// ID returns the logical point ID.
func (s ScoredPoint) ID() string { return s.id }

// Score returns the similarity score.
func (s ScoredPoint) Score() float64 { return s.score }

// Payload returns the stored payload.
func (s ScoredPoint) Payload() Payload { return s.payload }
