package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/sirupsen/logrus"

	"github.com/nhle/webmail/internal/model"
)

// DefaultConnectTimeout bounds Connect and OpenFolder when the config
// leaves ConnectTimeout unset.
const DefaultConnectTimeout = 10 * time.Second

// State is the lifecycle state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateFolderOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFolderOpen:
		return "folder-open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds the remote server settings for a Session.
type Config struct {
	Host               string
	Port               int
	ConnectTimeout     time.Duration
	InsecureSkipVerify bool
}

// ConfigFrom adapts the application IMAP settings.
func ConfigFrom(cfg model.IMAPConfig) Config {
	return Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		ConnectTimeout:     cfg.ConnectTimeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) timeout() time.Duration {
	if c.ConnectTimeout <= 0 {
		return DefaultConnectTimeout
	}
	return c.ConnectTimeout
}

// Session is one connection to a mailbox server on behalf of one identity.
// It is owned by a single operation and cannot be reused once closed; the
// owner must call Disconnect on every exit path.
type Session struct {
	cfg      Config
	identity model.Identity
	log      logrus.FieldLogger

	state    State
	conn     net.Conn
	client   *imapclient.Client
	folder   string
	readOnly bool
}

// New creates a disconnected session for identity.
func New(cfg Config, identity model.Identity, log logrus.FieldLogger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{
		cfg:      cfg,
		identity: identity,
		log: log.WithFields(logrus.Fields{
			"component": "mailbox",
			"address":   identity.Address,
			"host":      cfg.Host,
		}),
		state: StateDisconnected,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Folder returns the selected folder name, or "" when none is open.
func (s *Session) Folder() string {
	return s.folder
}

// deadline returns the earlier of the connect timeout and the ctx deadline.
func (s *Session) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(s.cfg.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}

// Connect dials the server over TLS and authenticates with XOAUTH2.
// On failure the session is closed.
func (s *Session) Connect(ctx context.Context) error {
	addr := s.cfg.addr()

	switch s.state {
	case StateDisconnected:
	case StateClosed:
		return &ConnectionError{Addr: addr, Err: errClosed}
	default:
		return nil
	}

	s.state = StateConnecting
	deadline := s.deadline(ctx)

	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			ServerName:         s.cfg.Host,
			InsecureSkipVerify: s.cfg.InsecureSkipVerify,
		},
	}
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		s.state = StateClosed
		return &ConnectionError{Addr: addr, Err: err}
	}

	_ = conn.SetDeadline(deadline)
	s.conn = conn
	s.client = imapclient.New(conn, nil)

	if err := s.client.WaitGreeting(); err != nil {
		s.closeTransport()
		return &ConnectionError{Addr: addr, Err: fmt.Errorf("waiting for greeting: %w", err)}
	}

	saslClient := NewXOAuth2Client(s.identity.Address, s.identity.AccessToken)
	if err := s.client.Authenticate(saslClient); err != nil {
		s.closeTransport()
		if isTransportError(err) {
			return &ConnectionError{Addr: addr, Err: err}
		}
		return &AuthError{Address: s.identity.Address, Err: err}
	}

	_ = conn.SetDeadline(time.Time{})
	s.state = StateReady
	s.log.Debug("imap session ready")

	return nil
}

// OpenFolder selects name and returns its message count. A read-only
// folder rejects AddFlag and Expunge.
func (s *Session) OpenFolder(ctx context.Context, name string, readOnly bool) (uint32, error) {
	if s.state != StateReady && s.state != StateFolderOpen {
		return 0, &FolderError{Folder: name, Err: errNotConnected}
	}

	conn := s.conn
	_ = conn.SetDeadline(s.deadline(ctx))
	defer func() { _ = conn.SetDeadline(time.Time{}) }()

	data, err := s.client.Select(name, &imap.SelectOptions{ReadOnly: readOnly}).Wait()
	if err != nil {
		s.failOn(err)
		if s.state == StateFolderOpen {
			// A failed SELECT deselects the previous folder.
			s.state = StateReady
			s.folder = ""
		}
		return 0, &FolderError{Folder: name, Err: err}
	}

	s.folder = name
	s.readOnly = readOnly
	s.state = StateFolderOpen
	s.log.WithFields(logrus.Fields{
		"folder":   name,
		"messages": data.NumMessages,
		"readonly": readOnly,
	}).Debug("folder opened")

	return data.NumMessages, nil
}

// Criteria describes a server-side search. Zero fields are ignored.
type Criteria struct {
	Header map[string]string
	Since  time.Time
	Before time.Time
	Text   []string
}

// Search runs a SEARCH in the open folder and returns matching sequence
// numbers.
func (s *Session) Search(_ context.Context, c Criteria) ([]uint32, error) {
	if s.state != StateFolderOpen {
		return nil, &SearchError{Err: errNoFolder}
	}

	criteria := &imap.SearchCriteria{
		Since:  c.Since,
		Before: c.Before,
		Text:   c.Text,
	}
	for _, key := range sortedKeys(c.Header) {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key:   key,
			Value: c.Header[key],
		})
	}

	data, err := s.client.Search(criteria, nil).Wait()
	if err != nil {
		s.failOn(err)
		return nil, &SearchError{Err: err}
	}

	return data.AllSeqNums(), nil
}

// AddFlag adds flag to the messages with the given sequence numbers.
func (s *Session) AddFlag(_ context.Context, seqs []uint32, flag string) error {
	op := "adding flag " + flag
	if err := s.writable(); err != nil {
		return &MutationError{Op: op, Err: err}
	}
	if len(seqs) == 0 {
		return nil
	}

	cmd := s.client.Store(imap.SeqSetNum(seqs...), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.Flag(flag)},
	}, nil)
	if err := cmd.Close(); err != nil {
		s.failOn(err)
		return &MutationError{Op: op, Err: err}
	}

	return nil
}

// Expunge permanently removes messages flagged \Deleted in the open folder.
func (s *Session) Expunge(_ context.Context) error {
	if err := s.writable(); err != nil {
		return &MutationError{Op: "expunge", Err: err}
	}

	if err := s.client.Expunge().Close(); err != nil {
		s.failOn(err)
		return &MutationError{Op: "expunge", Err: err}
	}

	return nil
}

// Disconnect logs out and closes the transport. It is safe to call on a
// session in any state, any number of times, and never fails.
func (s *Session) Disconnect() {
	if s.state == StateClosed {
		return
	}

	if s.client != nil {
		_ = s.conn.SetDeadline(time.Now().Add(s.cfg.timeout()))
		if err := s.client.Logout().Wait(); err != nil {
			s.log.WithError(err).Debug("imap logout failed")
		}
	}

	s.closeTransport()
}

func (s *Session) writable() error {
	switch {
	case s.state == StateClosed:
		return errClosed
	case s.state != StateFolderOpen:
		return errNoFolder
	case s.readOnly:
		return errReadOnly
	}
	return nil
}

// failOn closes the session when err came from the transport rather than
// from a tagged server response.
func (s *Session) failOn(err error) {
	if isTransportError(err) {
		s.log.WithError(err).Warn("imap transport failed, closing session")
		s.closeTransport()
	}
}

func (s *Session) closeTransport() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.log.WithError(err).Debug("closing imap client")
		}
	} else if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.log.WithError(err).Debug("closing imap connection")
		}
	}

	s.client = nil
	s.conn = nil
	s.folder = ""
	s.readOnly = false
	s.state = StateClosed
}

// isTransportError reports whether err is something other than a NO/BAD
// response from the server.
func isTransportError(err error) bool {
	var respErr *imap.Error
	return !errors.As(err, &respErr)
}
