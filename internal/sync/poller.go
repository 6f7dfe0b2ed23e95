package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/webmail/internal/mailbox"
	"github.com/nhle/webmail/internal/model"
)

// SyncState represents the current state of an account's sync.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncFailed
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncRunning:
		return "running"
	case SyncFailed:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON.
func (s SyncState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SyncStatus holds the sync state for a single account.
type SyncStatus struct {
	Account   string     `json:"account"`
	State     SyncState  `json:"state"`
	LastSync  *time.Time `json:"lastSync,omitempty"`
	Error     string     `json:"error,omitempty"`
	AuthError bool       `json:"authError,omitempty"`
}

// Credentials resolves an account's current identity.
type Credentials interface {
	Identity(ctx context.Context, address string) (model.Identity, error)
}

// syncTimeout is the maximum time allowed for a single background sync.
const syncTimeout = 2 * time.Minute

// Poller runs syncs for the configured account, either on demand or
// periodically in the background, and tracks their status.
type Poller struct {
	engine   *Engine
	creds    Credentials
	user     model.User
	opts     SyncOptions
	interval time.Duration
	log      logrus.FieldLogger

	status    SyncStatus
	triggerCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	runMu     gosync.Mutex
	mu        gosync.Mutex
	running   bool
}

// NewPoller creates a Poller syncing user's mailbox. An interval of zero
// disables background polling; Refresh and RunOnce still work.
func NewPoller(engine *Engine, creds Credentials, user model.User, opts SyncOptions, interval time.Duration, log logrus.FieldLogger) *Poller {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Poller{
		engine:    engine,
		creds:     creds,
		user:      user,
		opts:      opts,
		interval:  interval,
		log:       log.WithField("component", "poller"),
		status:    SyncStatus{Account: user.Email, State: SyncIdle, LastSync: user.LastSync},
		triggerCh: make(chan struct{}, 1),
	}
}

// Start launches the polling goroutine. It does an initial sync
// immediately. Calling Start twice is a no-op; a stopped poller can be
// started again.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	go p.loop(p.stopCh, p.doneCh)
}

// Stop halts the polling goroutine and waits for an in-flight sync to
// finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stop, done := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stop)
	<-done
}

// Refresh triggers an immediate background sync. It never blocks; a
// refresh already pending absorbs this one.
func (p *Poller) Refresh() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// Statuses returns the current sync status of every account.
func (p *Poller) Statuses() []SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return []SyncStatus{p.status}
}

// RunOnce performs one sync with opts, recording its outcome in the
// poller status. Zero fields of opts take the poller's defaults. Runs are
// serialized.
func (p *Poller) RunOnce(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if opts.Mailbox == "" {
		opts.Mailbox = p.opts.Mailbox
	}
	if opts.Limit <= 0 {
		opts.Limit = p.opts.Limit
	}

	p.setStatus(SyncRunning, nil)

	identity, err := p.creds.Identity(ctx, p.user.Email)
	if err != nil {
		p.setStatus(SyncFailed, err)
		return nil, err
	}

	result, err := p.engine.Sync(ctx, p.user.ID, identity, opts)
	if err != nil {
		p.setStatus(SyncFailed, err)
		return nil, err
	}

	p.setStatus(SyncIdle, nil)
	return result, nil
}

func (p *Poller) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if p.interval > 0 {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		tick = ticker.C
		p.background(stop)
	}

	for {
		select {
		case <-stop:
			return
		case <-tick:
			p.background(stop)
		case <-p.triggerCh:
			p.background(stop)
		}
	}
}

func (p *Poller) background(stop <-chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	result, err := p.RunOnce(ctx, SyncOptions{})
	if err != nil {
		entry := p.log.WithError(err)
		if mailbox.IsAuthError(err) {
			entry.Warn("authentication rejected, re-run login")
			return
		}
		entry.Error("background sync failed")
		return
	}

	p.log.WithFields(logrus.Fields{
		"created": result.Created,
		"updated": result.Updated,
	}).Debug("background sync finished")
}

// setStatus updates the account status.
func (p *Poller) setStatus(state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = ""
	p.status.AuthError = false
	if err != nil {
		p.status.Error = err.Error()
		p.status.AuthError = mailbox.IsAuthError(err)
	}
	if state == SyncIdle && err == nil {
		now := p.engine.now()
		p.status.LastSync = &now
	}
}
