package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/webmail/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert collides with a row that
// already holds the same (user, Message-ID) key.
var ErrDuplicate = errors.New("duplicate message")

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicate reports whether err wraps ErrDuplicate.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// Search scopes accepted by MessageFilter.SearchIn.
const (
	SearchAll     = "all"
	SearchSubject = "subject"
	SearchFrom    = "from"
	SearchBody    = "body"
)

// MessageFilter controls filtering, sorting, and pagination for message
// queries.
type MessageFilter struct {
	UnreadOnly bool
	Query      string // case-insensitive substring, empty for no search
	SearchIn   string // "all", "subject", "from", or "body"
	SortBy     string // "receivedDate", "subject", "fromAddress", "size", "createdAt"
	SortDesc   bool
	Limit      int
	Offset     int
}

// Store defines the persistence interface for users and their synced
// messages.
type Store interface {
	// === Users ===

	EnsureUser(ctx context.Context, email, name string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	TouchLastSync(ctx context.Context, userID string, at time.Time) error

	// === Messages ===

	FindMessageByKey(ctx context.Context, userID, messageID string) (*model.StoredMessage, error)
	FindMessageByID(ctx context.Context, userID, id string) (*model.StoredMessage, error)
	CreateMessage(ctx context.Context, userID string, msg model.ParsedMessage) (*model.StoredMessage, error)
	UpdateMessage(ctx context.Context, id string, msg model.ParsedMessage) (*model.StoredMessage, error)
	UpsertMessage(ctx context.Context, userID string, msg model.ParsedMessage) (*model.StoredMessage, error)
	DeleteMessage(ctx context.Context, id string) error
	ListMessages(ctx context.Context, userID string, filter MessageFilter) ([]model.StoredMessage, int, error)
	SetRead(ctx context.Context, userID, id string, isRead bool) (*model.StoredMessage, error)
	SetStarred(ctx context.Context, userID, id string, isStarred bool) (*model.StoredMessage, error)
	Stats(ctx context.Context, userID string) (model.Stats, error)

	Close() error
}
