package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/webmail/internal/model"
)

// listColumns are the message columns returned by list views. The large
// body columns are only loaded for single-message reads.
const listColumns = `id, user_id, message_id, mailbox, subject,
	from_address, from_name, to_address, cc_address, bcc_address,
	received_date, body_preview, has_attachments, attachment_count,
	is_read, is_starred, size, uid, created_at, updated_at`

const fullColumns = listColumns + ", body_text, body_html"

// sortColumns maps accepted sort keys to columns.
var sortColumns = map[string]string{
	"receivedDate": "received_date",
	"subject":      "subject",
	"fromAddress":  "from_address",
	"size":         "size",
	"createdAt":    "created_at",
}

// FindMessageByKey retrieves the message a user stores under messageID.
func (s *SQLStore) FindMessageByKey(ctx context.Context, userID, messageID string) (*model.StoredMessage, error) {
	return s.getMessage(ctx,
		"SELECT "+fullColumns+" FROM messages WHERE user_id = ? AND message_id = ?",
		userID, messageID)
}

// FindMessageByID retrieves a single message owned by userID.
func (s *SQLStore) FindMessageByID(ctx context.Context, userID, id string) (*model.StoredMessage, error) {
	return s.getMessage(ctx,
		"SELECT "+fullColumns+" FROM messages WHERE user_id = ? AND id = ?",
		userID, id)
}

func (s *SQLStore) getMessage(ctx context.Context, query string, args ...interface{}) (*model.StoredMessage, error) {
	var m model.StoredMessage
	err := s.db.GetContext(ctx, &m, s.q(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting message: %w", err)
	}
	return &m, nil
}

// CreateMessage inserts msg for userID. The message starts unstarred. A
// Message-ID the user already stores fails with ErrDuplicate.
func (s *SQLStore) CreateMessage(ctx context.Context, userID string, msg model.ParsedMessage) (*model.StoredMessage, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO messages (
			id, user_id, message_id, mailbox, subject,
			from_address, from_name, to_address, cc_address, bcc_address,
			received_date, body_preview, body_text, body_html,
			has_attachments, attachment_count, is_read, is_starred,
			size, uid, created_at, updated_at
		) VALUES (
			?, ?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?
		)`),
		id, userID, msg.MessageID, mailboxOrDefault(msg.Mailbox), msg.Subject,
		msg.FromAddress, msg.FromName, msg.ToAddress, msg.CcAddress, msg.BccAddress,
		msg.ReceivedDate.UTC(), msg.BodyPreview, msg.BodyText, msg.BodyHTML,
		msg.HasAttachments, msg.AttachmentCount, msg.IsRead, false,
		msg.Size, int64(msg.UID), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("creating message %s: %w: %v", msg.MessageID, ErrDuplicate, err)
		}
		return nil, fmt.Errorf("creating message %s: %w", msg.MessageID, err)
	}

	return s.FindMessageByID(ctx, userID, id)
}

// UpdateMessage overwrites every synced field of the message with id.
// IsStarred and the identity columns are left untouched.
func (s *SQLStore) UpdateMessage(ctx context.Context, id string, msg model.ParsedMessage) (*model.StoredMessage, error) {
	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE messages SET
			message_id = ?, mailbox = ?, subject = ?,
			from_address = ?, from_name = ?, to_address = ?, cc_address = ?, bcc_address = ?,
			received_date = ?, body_preview = ?, body_text = ?, body_html = ?,
			has_attachments = ?, attachment_count = ?, is_read = ?,
			size = ?, uid = ?, updated_at = ?
		WHERE id = ?`),
		msg.MessageID, mailboxOrDefault(msg.Mailbox), msg.Subject,
		msg.FromAddress, msg.FromName, msg.ToAddress, msg.CcAddress, msg.BccAddress,
		msg.ReceivedDate.UTC(), msg.BodyPreview, msg.BodyText, msg.BodyHTML,
		msg.HasAttachments, msg.AttachmentCount, msg.IsRead,
		msg.Size, int64(msg.UID), time.Now().UTC(),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating message %s: %w", id, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}

	return s.getMessage(ctx, "SELECT "+fullColumns+" FROM messages WHERE id = ?", id)
}

// UpsertMessage inserts msg or, when the user already stores its
// Message-ID, overwrites the synced fields in a single statement.
func (s *SQLStore) UpsertMessage(ctx context.Context, userID string, msg model.ParsedMessage) (*model.StoredMessage, error) {
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO messages (
			id, user_id, message_id, mailbox, subject,
			from_address, from_name, to_address, cc_address, bcc_address,
			received_date, body_preview, body_text, body_html,
			has_attachments, attachment_count, is_read, is_starred,
			size, uid, created_at, updated_at
		) VALUES (
			?, ?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?
		)
		ON CONFLICT(user_id, message_id) DO UPDATE SET
			mailbox = excluded.mailbox,
			subject = excluded.subject,
			from_address = excluded.from_address,
			from_name = excluded.from_name,
			to_address = excluded.to_address,
			cc_address = excluded.cc_address,
			bcc_address = excluded.bcc_address,
			received_date = excluded.received_date,
			body_preview = excluded.body_preview,
			body_text = excluded.body_text,
			body_html = excluded.body_html,
			has_attachments = excluded.has_attachments,
			attachment_count = excluded.attachment_count,
			is_read = excluded.is_read,
			size = excluded.size,
			uid = excluded.uid,
			updated_at = excluded.updated_at`),
		uuid.New().String(), userID, msg.MessageID, mailboxOrDefault(msg.Mailbox), msg.Subject,
		msg.FromAddress, msg.FromName, msg.ToAddress, msg.CcAddress, msg.BccAddress,
		msg.ReceivedDate.UTC(), msg.BodyPreview, msg.BodyText, msg.BodyHTML,
		msg.HasAttachments, msg.AttachmentCount, msg.IsRead, false,
		msg.Size, int64(msg.UID), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting message %s: %w", msg.MessageID, err)
	}

	return s.FindMessageByKey(ctx, userID, msg.MessageID)
}

// DeleteMessage removes a message by ID.
func (s *SQLStore) DeleteMessage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.q("DELETE FROM messages WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("deleting message %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListMessages returns one page of a user's messages matching filter along
// with the total number of matches. Body text and HTML are not loaded.
func (s *SQLStore) ListMessages(
	ctx context.Context,
	userID string,
	filter MessageFilter,
) ([]model.StoredMessage, int, error) {
	conditions := []string{"user_id = ?"}
	args := []interface{}{userID}

	if filter.UnreadOnly {
		conditions = append(conditions, "is_read = ?")
		args = append(args, false)
	}

	if q := strings.TrimSpace(filter.Query); q != "" {
		cond, n := searchCondition(filter.SearchIn)
		conditions = append(conditions, cond)
		pattern := "%" + strings.ToLower(q) + "%"
		for i := 0; i < n; i++ {
			args = append(args, pattern)
		}
	}

	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total, s.q("SELECT COUNT(*) FROM messages"+where), args...); err != nil {
		return nil, 0, fmt.Errorf("counting messages: %w", err)
	}

	sortBy := "received_date"
	if col, ok := sortColumns[filter.SortBy]; ok {
		sortBy = col
	}

	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	query := "SELECT " + listColumns + " FROM messages" + where +
		fmt.Sprintf(" ORDER BY %s %s, id %s", sortBy, direction, direction)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 && s.driver == DriverSQLite {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	var messages []model.StoredMessage
	if err := s.db.SelectContext(ctx, &messages, s.q(query), args...); err != nil {
		return nil, 0, fmt.Errorf("querying messages: %w", err)
	}

	return messages, total, nil
}

// searchCondition returns the WHERE fragment for a search scope and the
// number of pattern placeholders it contains.
func searchCondition(searchIn string) (string, int) {
	var columns []string
	switch searchIn {
	case SearchSubject:
		columns = []string{"subject"}
	case SearchFrom:
		columns = []string{"from_address", "from_name"}
	case SearchBody:
		columns = []string{"body_text", "body_preview"}
	default:
		columns = []string{"subject", "from_address", "from_name", "body_preview", "to_address"}
	}

	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = "LOWER(" + col + ") LIKE ?"
	}
	return "(" + strings.Join(parts, " OR ") + ")", len(columns)
}

// SetRead sets the local read flag of a message.
func (s *SQLStore) SetRead(ctx context.Context, userID, id string, isRead bool) (*model.StoredMessage, error) {
	return s.setFlag(ctx, "is_read", userID, id, isRead)
}

// SetStarred sets the local star flag of a message.
func (s *SQLStore) SetStarred(ctx context.Context, userID, id string, isStarred bool) (*model.StoredMessage, error) {
	return s.setFlag(ctx, "is_starred", userID, id, isStarred)
}

func (s *SQLStore) setFlag(ctx context.Context, column, userID, id string, value bool) (*model.StoredMessage, error) {
	result, err := s.db.ExecContext(ctx,
		s.q("UPDATE messages SET "+column+" = ?, updated_at = ? WHERE user_id = ? AND id = ?"),
		value, time.Now().UTC(), userID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("setting %s on message %s: %w", column, id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return s.FindMessageByID(ctx, userID, id)
}

// Stats summarizes a user's stored messages.
func (s *SQLStore) Stats(ctx context.Context, userID string) (model.Stats, error) {
	var stats model.Stats
	err := s.db.GetContext(ctx, &stats, s.q(`
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN is_read THEN 0 ELSE 1 END), 0) AS unread,
			COALESCE(SUM(CASE WHEN has_attachments THEN 1 ELSE 0 END), 0) AS with_attachments
		FROM messages WHERE user_id = ?`), userID)
	if err != nil {
		return model.Stats{}, fmt.Errorf("computing stats for user %s: %w", userID, err)
	}
	stats.Read = stats.Total - stats.Unread
	return stats, nil
}

func mailboxOrDefault(mailbox string) string {
	if mailbox == "" {
		return "INBOX"
	}
	return mailbox
}
