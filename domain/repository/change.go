package repository

// ChangeType classifies how a commit changed a file.
type ChangeType string

// ChangeType values.
const (
	ChangeTypeAdd        ChangeType = "add"
	ChangeTypeModify     ChangeType = "modify"
	ChangeTypeDelete     ChangeType = "delete"
	ChangeTypeTypeChange ChangeType = "typechange"
)

// HasDiff returns true for change types that carry a textual diff.
func (t ChangeType) HasDiff() bool {
	switch t {
	case ChangeTypeAdd, ChangeTypeModify, ChangeTypeDelete:
		return true
	default:
		return false
	}
}

// ChangedFile describes one path changed by a commit.
type ChangedFile struct {
	path       string
	changeType ChangeType
	oldBlobOID string
	newBlobOID string
	diff       string
}

// NewChangedFile creates a new ChangedFile.
func NewChangedFile(path string, changeType ChangeType, oldBlobOID, newBlobOID, diff string) ChangedFile {
	return ChangedFile{
		path:       path,
		changeType: changeType,
		oldBlobOID: oldBlobOID,
		newBlobOID: newBlobOID,
		diff:       diff,
	}
}

// Path returns the changed file path.
func (f ChangedFile) Path() string { return f.path }

// ChangeType returns how the file changed.
func (f ChangedFile) ChangeType() ChangeType { return f.changeType }

// OldBlobOID returns the pre-change blob ID ("" for additions).
func (f ChangedFile) OldBlobOID() string { return f.oldBlobOID }

// NewBlobOID returns the post-change blob ID ("" for deletions).
func (f ChangedFile) NewBlobOID() string { return f.newBlobOID }

// Diff returns the unified diff text ("" when none was computed).
func (f ChangedFile) Diff() string { return f.diff }

// Summary returns a one-line "type: path" rendering.
func (f ChangedFile) Summary() string {
	return string(f.changeType) + ": " + f.path
}
