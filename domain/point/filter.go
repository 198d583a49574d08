package point

// Filter narrows searches and scrolls to matching payloads. The zero
// value matches everything. Multiple conditions combine with AND; list
// conditions match any of their values.
type Filter struct {
	dataType     DataType
	filepaths    []string
	chunkIndexes []int
}

// NewFilter creates an empty Filter.
func NewFilter() Filter { return Filter{} }

// WithDataType returns a copy matching only the given payload variant.
func (f Filter) WithDataType(dt DataType) Filter {
	f.dataType = dt
	return f
}

// WithFilepaths returns a copy matching any of the given file paths.
func (f Filter) WithFilepaths(paths ...string) Filter {
	cp := make([]string, len(paths))
	copy(cp, paths)
	f.filepaths = cp
	return f
}

// WithChunkIndexes returns a copy matching any of the given chunk
// indices.
func (f Filter) WithChunkIndexes(indexes ...int) Filter {
	cp := make([]int, len(indexes))
	copy(cp, indexes)
	f.chunkIndexes = cp
	return f
}

// DataType returns the payload variant condition ("" means any).
func (f Filter) DataType() DataType { return f.dataType }

// Filepaths returns the file path conditions (empty means any).
func (f Filter) Filepaths() []string {
	result := make([]string, len(f.filepaths))
	copy(result, f.filepaths)
	return result
}

// ChunkIndexes returns the chunk index conditions (empty means any).
func (f Filter) ChunkIndexes() []int {
	result := make([]int, len(f.chunkIndexes))
	copy(result, f.chunkIndexes)
	return result
}

// IsZero returns true if the filter matches everything.
func (f Filter) IsZero() bool {
	return f.dataType == "" && len(f.filepaths) == 0 && len(f.chunkIndexes) == 0
}
