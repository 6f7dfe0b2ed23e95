package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/webmail/internal/model"
	"github.com/nhle/webmail/internal/store"
)

// NewTestStore creates an in-memory SQLStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewTestUser creates the user jane@example.com in s.
func NewTestUser(t *testing.T, s store.Store) *model.User {
	t.Helper()

	u, err := s.EnsureUser(context.Background(), "jane@example.com", "Jane Doe")
	if err != nil {
		t.Fatalf("creating test user: %v", err)
	}
	return u
}

// Message returns a parsed message with plausible field values.
func Message(messageID, subject string, received time.Time) model.ParsedMessage {
	return model.ParsedMessage{
		MessageID:    messageID,
		Mailbox:      "INBOX",
		Subject:      subject,
		FromAddress:  "bob@example.com",
		FromName:     "Bob",
		ToAddress:    "jane@example.com",
		ReceivedDate: received.UTC(),
		BodyPreview:  "Preview of " + subject,
		BodyText:     "Body of " + subject,
		Size:         1024,
	}
}
