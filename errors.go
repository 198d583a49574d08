package codecompass

import (
	"errors"

	"github.com/codecompass/codecompass/application/service"
)

// Exported errors for library consumers.
var (
	// ErrNoRepository indicates New was called without a repository path.
	ErrNoRepository = errors.New("codecompass: repository path not configured")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = service.ErrClientClosed
)
