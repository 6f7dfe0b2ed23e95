// Package sync reconciles remote mailbox contents with the local store.
package sync

import (
	"context"
	"fmt"
	"iter"
	"slices"
	gosync "sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nhle/webmail/internal/mailbox"
	"github.com/nhle/webmail/internal/model"
	"github.com/nhle/webmail/internal/parser"
	"github.com/nhle/webmail/internal/store"
)

// Session is the subset of a mailbox protocol session the engine drives.
// *mailbox.Session satisfies it.
type Session interface {
	Connect(ctx context.Context) error
	OpenFolder(ctx context.Context, name string, readOnly bool) (uint32, error)
	FetchRange(ctx context.Context, start, end uint32) iter.Seq2[model.RawMessage, error]
	Search(ctx context.Context, c mailbox.Criteria) ([]uint32, error)
	AddFlag(ctx context.Context, seqs []uint32, flag string) error
	Expunge(ctx context.Context) error
	Disconnect()
}

// SessionFactory creates an unconnected session for an identity.
type SessionFactory func(model.Identity) Session

// MailboxSessions returns a SessionFactory producing IMAP sessions.
func MailboxSessions(cfg mailbox.Config, log logrus.FieldLogger) SessionFactory {
	return func(id model.Identity) Session {
		return mailbox.New(cfg, id, log)
	}
}

// Defaults applied when the corresponding Engine or SyncOptions field is
// zero.
const (
	DefaultMailbox     = "INBOX"
	DefaultLimit       = 50
	DefaultDeleteLimit = 4
	DefaultDeleteRate  = 5
)

// SyncOptions selects the window of messages a sync pulls.
type SyncOptions struct {
	Mailbox string
	Limit   int
	Offset  int
}

func (o SyncOptions) withDefaults() SyncOptions {
	if o.Mailbox == "" {
		o.Mailbox = DefaultMailbox
	}
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// BatchResult reports what SyncBatch did.
type BatchResult struct {
	Created  int
	Updated  int
	Messages []model.StoredMessage
}

// SyncResult reports the outcome of a full sync.
type SyncResult struct {
	Messages []model.StoredMessage `json:"emails"`
	Total    uint32                `json:"total"`
	Synced   int                   `json:"synced"`
	Created  int                   `json:"created"`
	Updated  int                   `json:"updated"`
}

// DeleteResult reports the outcome of a single delete.
type DeleteResult struct {
	DeletedFromRemote bool `json:"deletedFromGmail"`
}

// BatchDeleteResult reports the outcome of DeleteBatch. Deleted counts
// messages removed remotely and locally, LocalOnly those removed only
// locally.
type BatchDeleteResult struct {
	Deleted   int               `json:"deleted"`
	LocalOnly int               `json:"localOnly"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// Engine syncs a user's mailbox into the store and propagates deletes
// back to the server.
type Engine struct {
	Store    store.Store
	Sessions SessionFactory
	Log      logrus.FieldLogger
	Clock    func() time.Time

	// DeleteLimit bounds concurrent deletes in DeleteBatch.
	DeleteLimit int
	// DeleteRate limits remote session opens per second on the delete
	// path.
	DeleteRate float64

	limiterOnce gosync.Once
	limiter     *rate.Limiter
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func (e *Engine) log() logrus.FieldLogger {
	if e.Log != nil {
		return e.Log
	}
	return logrus.StandardLogger()
}

func (e *Engine) deleteLimiter() *rate.Limiter {
	e.limiterOnce.Do(func() {
		r := e.DeleteRate
		if r <= 0 {
			r = DefaultDeleteRate
		}
		e.limiter = rate.NewLimiter(rate.Limit(r), 1)
	})
	return e.limiter
}

// SyncBatch stores msgs for userID. A message whose Message-ID is new is
// created unstarred; an existing one has every synced field overwritten,
// IsRead included, while IsStarred is kept. Each message is stored on its
// own; an error aborts the batch and leaves earlier messages stored. A
// message inserted by a concurrent sync between lookup and create is
// overwritten, so the last writer wins.
func (e *Engine) SyncBatch(ctx context.Context, userID string, msgs []model.ParsedMessage) (BatchResult, error) {
	var result BatchResult

	for _, msg := range msgs {
		existing, err := e.Store.FindMessageByKey(ctx, userID, msg.MessageID)
		switch {
		case err == nil:
			stored, err := e.Store.UpdateMessage(ctx, existing.ID, msg)
			if err != nil {
				return result, fmt.Errorf("updating message %s: %w", msg.MessageID, err)
			}
			result.Updated++
			result.Messages = append(result.Messages, *stored)

		case store.IsNotFound(err):
			stored, err := e.Store.CreateMessage(ctx, userID, msg)
			if store.IsDuplicate(err) {
				e.log().WithField("message_id", msg.MessageID).Debug("message stored concurrently, overwriting")
				stored, err = e.Store.UpsertMessage(ctx, userID, msg)
				if err != nil {
					return result, fmt.Errorf("overwriting message %s: %w", msg.MessageID, err)
				}
				result.Updated++
				result.Messages = append(result.Messages, *stored)
				continue
			}
			if err != nil {
				return result, fmt.Errorf("creating message %s: %w", msg.MessageID, err)
			}
			result.Created++
			result.Messages = append(result.Messages, *stored)

		default:
			return result, fmt.Errorf("looking up message %s: %w", msg.MessageID, err)
		}
	}

	return result, nil
}

// Sync pulls the newest window of opts.Mailbox for identity and stores it
// for userID. The session is always disconnected before returning.
func (e *Engine) Sync(ctx context.Context, userID string, identity model.Identity, opts SyncOptions) (*SyncResult, error) {
	opts = opts.withDefaults()
	log := e.log().WithFields(logrus.Fields{
		"user":    userID,
		"mailbox": opts.Mailbox,
	})

	sess := e.Sessions(identity)
	defer sess.Disconnect()

	if err := sess.Connect(ctx); err != nil {
		return nil, &SyncError{Err: err}
	}

	total, err := sess.OpenFolder(ctx, opts.Mailbox, true)
	if err != nil {
		return nil, &SyncError{Err: err}
	}

	var parsed []model.ParsedMessage
	if start, end, ok := mailbox.Range(total, opts.Limit, opts.Offset); ok {
		parsed, err = parser.ParseAll(sess.FetchRange(ctx, start, end), e.now(), log)
		if err != nil {
			return nil, &SyncError{Err: err}
		}
	}

	for i := range parsed {
		parsed[i].Mailbox = opts.Mailbox
	}

	batch, err := e.SyncBatch(ctx, userID, parsed)
	if err != nil {
		return nil, &SyncError{Err: err}
	}

	if err := e.Store.TouchLastSync(ctx, userID, e.now()); err != nil {
		log.WithError(err).Warn("recording last sync time")
	}

	messages := batch.Messages
	slices.SortStableFunc(messages, func(a, b model.StoredMessage) int {
		return b.ReceivedDate.Compare(a.ReceivedDate)
	})

	log.WithFields(logrus.Fields{
		"total":   total,
		"synced":  len(parsed),
		"created": batch.Created,
		"updated": batch.Updated,
	}).Info("mailbox synced")

	return &SyncResult{
		Messages: messages,
		Total:    total,
		Synced:   len(parsed),
		Created:  batch.Created,
		Updated:  batch.Updated,
	}, nil
}

// DeleteMessage removes the message localID from the server when it can
// be found there, then always removes the local record. Remote failures
// are logged and reported as DeletedFromRemote=false.
func (e *Engine) DeleteMessage(ctx context.Context, userID, localID string, identity model.Identity) (DeleteResult, error) {
	stored, err := e.Store.FindMessageByID(ctx, userID, localID)
	if store.IsNotFound(err) {
		return DeleteResult{}, &NotFoundError{ID: localID}
	}
	if err != nil {
		return DeleteResult{}, fmt.Errorf("looking up message %s: %w", localID, err)
	}

	log := e.log().WithFields(logrus.Fields{
		"user":       userID,
		"id":         localID,
		"message_id": stored.MessageID,
	})

	remote, err := e.deleteRemote(ctx, identity, stored)
	if err != nil {
		log.WithError(err).Warn("remote delete failed, deleting locally only")
	} else if !remote {
		log.Info("message not found on server, deleting locally only")
	}

	if err := e.Store.DeleteMessage(ctx, stored.ID); err != nil && !store.IsNotFound(err) {
		return DeleteResult{DeletedFromRemote: remote}, fmt.Errorf("deleting message %s: %w", localID, err)
	}

	return DeleteResult{DeletedFromRemote: remote}, nil
}

// deleteRemote flags every server copy of msg as deleted and expunges the
// folder. It reports false when the server has no copy.
func (e *Engine) deleteRemote(ctx context.Context, identity model.Identity, msg *model.StoredMessage) (bool, error) {
	if err := e.deleteLimiter().Wait(ctx); err != nil {
		return false, err
	}

	sess := e.Sessions(identity)
	defer sess.Disconnect()

	if err := sess.Connect(ctx); err != nil {
		return false, err
	}

	folder := msg.Mailbox
	if folder == "" {
		folder = DefaultMailbox
	}
	if _, err := sess.OpenFolder(ctx, folder, false); err != nil {
		return false, err
	}

	seqs, err := sess.Search(ctx, mailbox.Criteria{
		Header: map[string]string{"Message-ID": msg.MessageID},
	})
	if err != nil {
		return false, err
	}
	if len(seqs) == 0 {
		return false, nil
	}

	if err := sess.AddFlag(ctx, seqs, model.FlagDeleted); err != nil {
		return false, err
	}
	if err := sess.Expunge(ctx); err != nil {
		return false, err
	}

	return true, nil
}

// DeleteBatch deletes every message in ids independently, at most
// DeleteLimit at a time. Duplicate ids are deleted once.
func (e *Engine) DeleteBatch(ctx context.Context, userID string, ids []string, identity model.Identity) BatchDeleteResult {
	result := BatchDeleteResult{Errors: map[string]string{}}

	limit := e.DeleteLimit
	if limit <= 0 {
		limit = DefaultDeleteLimit
	}

	var (
		mu   gosync.Mutex
		g    errgroup.Group
		seen = make(map[string]bool, len(ids))
	)
	g.SetLimit(limit)

	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		g.Go(func() error {
			r, err := e.DeleteMessage(ctx, userID, id, identity)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err != nil:
				result.Failed++
				result.Errors[id] = err.Error()
			case r.DeletedFromRemote:
				result.Deleted++
			default:
				result.LocalOnly++
			}
			return nil
		})
	}

	_ = g.Wait()

	if len(result.Errors) == 0 {
		result.Errors = nil
	}
	return result
}
