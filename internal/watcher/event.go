package watcher

import (
	"fmt"
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified or replaced.
	OpModify
	// OpDelete indicates a file or directory was deleted or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the operation by name.
func (op Operation) MarshalText() ([]byte, error) {
	return []byte(op.String()), nil
}

// UnmarshalText decodes an operation name.
func (op *Operation) UnmarshalText(text []byte) error {
	switch string(text) {
	case "CREATE":
		*op = OpCreate
	case "MODIFY":
		*op = OpModify
	case "DELETE":
		*op = OpDelete
	default:
		return fmt.Errorf("unknown operation %q", text)
	}
	return nil
}

// FileEvent represents a file system event.
type FileEvent struct {
	// Path is the absolute path to the file or directory.
	Path string `json:"path"`

	// Operation is the type of file system operation.
	Operation Operation `json:"op"`

	// IsDir indicates if the event is for a directory.
	IsDir bool `json:"is_dir,omitempty"`

	// Timestamp is when the event was detected.
	Timestamp time.Time `json:"time"`
}
