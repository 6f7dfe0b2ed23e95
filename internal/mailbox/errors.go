package mailbox

import (
	"errors"
	"fmt"
)

// ConnectionError indicates the transport to the mailbox server could not
// be established within the connect timeout.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthError indicates the server rejected the bearer credential.
type AuthError struct {
	Address string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Address, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FolderError indicates a folder could not be selected.
type FolderError struct {
	Folder string
	Err    error
}

func (e *FolderError) Error() string {
	return fmt.Sprintf("opening folder %q: %v", e.Folder, e.Err)
}

func (e *FolderError) Unwrap() error { return e.Err }

// FetchError indicates a fetch could not be issued or was interrupted.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching messages: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SearchError indicates a server-side search failed.
type SearchError struct {
	Err error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("searching messages: %v", e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// MutationError indicates a flag change or expunge failed.
type MutationError struct {
	Op  string
	Err error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

var (
	errNotConnected  = errors.New("session is not connected")
	errNoFolder      = errors.New("no folder is open")
	errReadOnly      = errors.New("folder is opened read-only")
	errClosed        = errors.New("session is closed")
	errFetchConsumed = errors.New("fetch results already consumed")
)

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsConnectionError reports whether err (or any error in its chain) is a
// ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
