package service

import "errors"

// ErrClientClosed indicates the client has been closed.
var ErrClientClosed = errors.New("codecompass: client is closed")

// ErrSessionNotFound indicates no session exists for the given ID.
var ErrSessionNotFound = errors.New("session not found")

// ErrRepoPathRequired indicates session creation was attempted without a
// repository path.
var ErrRepoPathRequired = errors.New("repository path required to create session")
