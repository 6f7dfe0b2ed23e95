package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	gosync "sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/webmail/internal/mailbox"
	"github.com/nhle/webmail/internal/model"
)

// fakeServer is an in-memory mailbox shared by every fakeSession it
// creates.
type fakeServer struct {
	mu       gosync.Mutex
	folders  map[string][]model.RawMessage
	sessions int
	closed   int

	connectErr error
	fetchErr   error
	searchErr  error
}

func newFakeServer(inbox ...model.RawMessage) *fakeServer {
	return &fakeServer{folders: map[string][]model.RawMessage{"INBOX": inbox}}
}

func (f *fakeServer) factory() SessionFactory {
	return func(model.Identity) Session {
		f.mu.Lock()
		f.sessions++
		f.mu.Unlock()
		return &fakeSession{srv: f}
	}
}

func (f *fakeServer) count(folder string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.folders[folder])
}

func (f *fakeServer) openSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions - f.closed
}

type fakeSession struct {
	srv       *fakeServer
	folder    string
	readOnly  bool
	connected bool
	closed    bool

	// view is the folder's Message-IDs as of OpenFolder. Sequence numbers
	// resolve against it, so concurrent expunges by other sessions do not
	// shift this session's numbering.
	view    []string
	flagged map[string]bool
}

func (s *fakeSession) Connect(context.Context) error {
	if s.srv.connectErr != nil {
		return s.srv.connectErr
	}
	s.connected = true
	return nil
}

func (s *fakeSession) OpenFolder(_ context.Context, name string, readOnly bool) (uint32, error) {
	if !s.connected {
		return 0, &mailbox.FolderError{Folder: name, Err: errors.New("not connected")}
	}
	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()

	msgs, ok := s.srv.folders[name]
	if !ok {
		return 0, &mailbox.FolderError{Folder: name, Err: errors.New("no such folder")}
	}
	s.folder = name
	s.readOnly = readOnly
	s.view = s.view[:0]
	for _, m := range msgs {
		s.view = append(s.view, m.Header.First("message-id"))
	}
	return uint32(len(msgs)), nil
}

func (s *fakeSession) FetchRange(_ context.Context, start, end uint32) iter.Seq2[model.RawMessage, error] {
	return func(yield func(model.RawMessage, error) bool) {
		s.srv.mu.Lock()
		msgs := append([]model.RawMessage(nil), s.srv.folders[s.folder]...)
		fetchErr := s.srv.fetchErr
		s.srv.mu.Unlock()

		for seq := start; seq <= end && int(seq) <= len(msgs); seq++ {
			raw := msgs[seq-1]
			raw.SeqNum = seq
			if !yield(raw, nil) {
				return
			}
			if fetchErr != nil {
				yield(model.RawMessage{}, &mailbox.FetchError{Err: fetchErr})
				return
			}
		}
	}
}

func (s *fakeSession) Search(_ context.Context, c mailbox.Criteria) ([]uint32, error) {
	if s.srv.searchErr != nil {
		return nil, &mailbox.SearchError{Err: s.srv.searchErr}
	}
	want := c.Header["Message-ID"]
	var seqs []uint32
	for i, id := range s.view {
		if want != "" && id == want {
			seqs = append(seqs, uint32(i+1))
		}
	}
	return seqs, nil
}

func (s *fakeSession) AddFlag(_ context.Context, seqs []uint32, flag string) error {
	if s.readOnly {
		return &mailbox.MutationError{Op: "store", Err: errors.New("read-only")}
	}
	if flag != model.FlagDeleted {
		return fmt.Errorf("unexpected flag %s", flag)
	}
	if s.flagged == nil {
		s.flagged = map[string]bool{}
	}
	for _, seq := range seqs {
		if seq == 0 || int(seq) > len(s.view) {
			return &mailbox.MutationError{Op: "store", Err: fmt.Errorf("no message %d", seq)}
		}
		s.flagged[s.view[seq-1]] = true
	}
	return nil
}

func (s *fakeSession) Expunge(context.Context) error {
	if s.readOnly {
		return &mailbox.MutationError{Op: "expunge", Err: errors.New("read-only")}
	}
	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()

	var kept []model.RawMessage
	for _, m := range s.srv.folders[s.folder] {
		if !s.flagged[m.Header.First("message-id")] {
			kept = append(kept, m)
		}
	}
	s.srv.folders[s.folder] = kept
	s.flagged = nil
	return nil
}

func (s *fakeSession) Disconnect() {
	if s.closed {
		return
	}
	s.closed = true
	s.srv.mu.Lock()
	s.srv.closed++
	s.srv.mu.Unlock()
}

// fakeCredentials hands out a fixed identity.
type fakeCredentials struct {
	err error
}

func (c fakeCredentials) Identity(_ context.Context, address string) (model.Identity, error) {
	if c.err != nil {
		return model.Identity{}, c.err
	}
	return model.Identity{Address: address, AccessToken: "token"}, nil
}

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu gosync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func rawMessage(messageID, subject, date string, flags ...string) model.RawMessage {
	h := model.HeaderFields{}
	h.Add("From", `"Bob" <bob@example.com>`)
	h.Add("To", "jane@example.com")
	h.Add("Subject", subject)
	h.Add("Date", date)
	if messageID != "" {
		h.Add("Message-ID", messageID)
	}
	return model.RawMessage{
		Header: h,
		Body:   []byte("Hello from " + subject),
		Flags:  flags,
		Size:   512,
	}
}
