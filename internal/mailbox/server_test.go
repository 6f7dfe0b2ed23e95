package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"
	"github.com/emersion/go-sasl"
	"github.com/google/go-cmp/cmp"

	"github.com/nhle/webmail/internal/model"
)

// oauthSession is an in-memory mailbox that only accepts XOAUTH2 with a
// fixed bearer token.
type oauthSession struct {
	*imapmemserver.UserSession
	address string
	token   string
}

func (s *oauthSession) Login(username, password string) error {
	return imapserver.ErrAuthFailed
}

func (s *oauthSession) AuthenticateMechanisms() []string {
	return []string{"XOAUTH2"}
}

func (s *oauthSession) Authenticate(mech string) (sasl.Server, error) {
	if mech != "XOAUTH2" {
		return nil, &imap.Error{Type: imap.StatusResponseTypeNo, Text: "SASL mechanism not supported"}
	}
	return &xoauth2Server{check: func(user, token string) error {
		if user != s.address || token != s.token {
			return imapserver.ErrAuthFailed
		}
		return nil
	}}, nil
}

type xoauth2Server struct {
	check func(user, token string) error
}

func (s *xoauth2Server) Next(resp []byte) ([]byte, bool, error) {
	if resp == nil {
		return nil, false, nil
	}

	var user, token string
	for _, kv := range strings.Split(string(resp), "\x01") {
		switch {
		case strings.HasPrefix(kv, "user="):
			user = strings.TrimPrefix(kv, "user=")
		case strings.HasPrefix(kv, "auth=Bearer "):
			token = strings.TrimPrefix(kv, "auth=Bearer ")
		}
	}
	if err := s.check(user, token); err != nil {
		return nil, false, err
	}
	return nil, true, nil
}

func plainMessage(subject, messageID string) string {
	return fmt.Sprintf("From: Alice <alice@example.com>\r\n"+
		"To: jane@example.com\r\n"+
		"Subject: %s\r\n"+
		"Date: Fri, 15 Mar 2024 10:00:00 +0000\r\n"+
		"Message-ID: %s\r\n"+
		"Content-Type: text/plain; charset=utf-8\r\n"+
		"\r\n"+
		"hello\r\n", subject, messageID)
}

const attachmentMessage = "From: Bob <bob@example.com>\r\n" +
	"To: jane@example.com\r\n" +
	"Subject: report\r\n" +
	"Date: Sat, 16 Mar 2024 10:00:00 +0000\r\n" +
	"Message-ID: <3@example.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"see attached\r\n" +
	"--b1\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"report.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQK\r\n" +
	"--b1--\r\n"

// startServer serves an in-memory INBOX over TLS on loopback and returns
// a Config pointing at it.
func startServer(t *testing.T, identity model.Identity) Config {
	t.Helper()

	user := imapmemserver.NewUser(identity.Address, "unused")
	if err := user.Create("INBOX", nil); err != nil {
		t.Fatalf("creating INBOX: %v", err)
	}

	messages := []struct {
		literal string
		flags   []imap.Flag
	}{
		{literal: plainMessage("first", "<1@example.com>"), flags: []imap.Flag{imap.FlagSeen}},
		{literal: plainMessage("second", "<2@example.com>")},
		{literal: attachmentMessage},
	}
	for _, m := range messages {
		_, err := user.Append("INBOX", bytes.NewReader([]byte(m.literal)), &imap.AppendOptions{
			Flags: m.flags,
			Time:  time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("appending message: %v", err)
		}
	}

	// Borrow the httptest self-signed certificate for the listener.
	certSrv := httptest.NewTLSServer(nil)
	certs := certSrv.TLS.Certificates
	certSrv.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	tlsLn := tls.NewListener(ln, &tls.Config{Certificates: certs})

	srv := imapserver.New(&imapserver.Options{
		NewSession: func(*imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return &oauthSession{
				UserSession: imapmemserver.NewUserSession(user),
				address:     identity.Address,
				token:       identity.AccessToken,
			}, nil, nil
		},
		Caps: imap.CapSet{
			imap.CapIMAP4rev1: {},
			imap.CapIMAP4rev2: {},
		},
		Logger: quietLogger(),
	})
	go func() { _ = srv.Serve(tlsLn) }()
	t.Cleanup(func() { _ = srv.Close() })

	return Config{
		Host:               "127.0.0.1",
		Port:               ln.Addr().(*net.TCPAddr).Port,
		ConnectTimeout:     5 * time.Second,
		InsecureSkipVerify: true,
	}
}

func connectedSession(t *testing.T) *Session {
	t.Helper()

	identity := testIdentity()
	cfg := startServer(t, identity)

	s := New(cfg, identity, quietLogger())
	t.Cleanup(s.Disconnect)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("state = %v, want ready", s.State())
	}
	return s
}

func countAttachments(n *model.StructNode) int {
	if n == nil {
		return 0
	}
	if n.Kind == model.NodeLeaf {
		if n.Disposition == "attachment" {
			return 1
		}
		return 0
	}
	total := 0
	for _, c := range n.Children {
		total += countAttachments(c)
	}
	return total
}

func TestSessionFetchesOpenFolder(t *testing.T) {
	ctx := context.Background()
	s := connectedSession(t)

	total, err := s.OpenFolder(ctx, "INBOX", true)
	if err != nil {
		t.Fatalf("OpenFolder() error = %v", err)
	}
	if total != 3 {
		t.Fatalf("OpenFolder() = %d messages, want 3", total)
	}
	if s.State() != StateFolderOpen || s.Folder() != "INBOX" {
		t.Fatalf("state = %v folder = %q, want folder-open INBOX", s.State(), s.Folder())
	}

	bySeq := map[uint32]model.RawMessage{}
	for raw, err := range s.FetchRange(ctx, 1, total) {
		if err != nil {
			t.Fatalf("FetchRange() error = %v", err)
		}
		bySeq[raw.SeqNum] = raw
	}
	if len(bySeq) != 3 {
		t.Fatalf("fetched %d messages, want 3", len(bySeq))
	}

	var ids []string
	for seq := uint32(1); seq <= 3; seq++ {
		ids = append(ids, bySeq[seq].Header.First("Message-ID"))
	}
	wantIDs := []string{"<1@example.com>", "<2@example.com>", "<3@example.com>"}
	if diff := cmp.Diff(wantIDs, ids); diff != "" {
		t.Errorf("Message-IDs mismatch (-want +got):\n%s", diff)
	}

	first := bySeq[1]
	if got := first.Header.First("From"); got != "Alice <alice@example.com>" {
		t.Errorf("From = %q", got)
	}
	if !slices.Contains(first.Flags, model.FlagSeen) {
		t.Errorf("flags = %v, want %s", first.Flags, model.FlagSeen)
	}
	if slices.Contains(bySeq[2].Flags, model.FlagSeen) {
		t.Errorf("fetching marked message 2 seen: %v", bySeq[2].Flags)
	}
	if !strings.Contains(string(first.Body), "hello") {
		t.Errorf("Body = %q, want it to contain hello", first.Body)
	}
	if first.UID == 0 || first.Size == 0 {
		t.Errorf("UID = %d Size = %d, want both set", first.UID, first.Size)
	}

	report := bySeq[3]
	if report.Structure == nil || report.Structure.Kind != model.NodeBranch {
		t.Fatalf("Structure = %+v, want a multipart branch", report.Structure)
	}
	if got := countAttachments(report.Structure); got != 1 {
		t.Errorf("attachments = %d, want 1", got)
	}
	if got := countAttachments(first.Structure); got != 0 {
		t.Errorf("plain message attachments = %d, want 0", got)
	}
}

func TestSessionMissingFolder(t *testing.T) {
	ctx := context.Background()
	s := connectedSession(t)

	if _, err := s.OpenFolder(ctx, "INBOX", true); err != nil {
		t.Fatalf("OpenFolder(INBOX) error = %v", err)
	}

	_, err := s.OpenFolder(ctx, "Archive/Missing", true)
	var folderErr *FolderError
	if !errors.As(err, &folderErr) {
		t.Fatalf("OpenFolder(missing) error = %v, want FolderError", err)
	}
	if s.State() != StateReady || s.Folder() != "" {
		t.Errorf("state = %v folder = %q, want ready with no folder", s.State(), s.Folder())
	}

	// The session stays usable after a NO response.
	if _, err := s.OpenFolder(ctx, "INBOX", true); err != nil {
		t.Errorf("reopening INBOX error = %v", err)
	}
}

func TestSessionSearchFlagAndExpunge(t *testing.T) {
	ctx := context.Background()
	s := connectedSession(t)

	if _, err := s.OpenFolder(ctx, "INBOX", true); err != nil {
		t.Fatalf("OpenFolder() error = %v", err)
	}

	criteria := Criteria{Header: map[string]string{"Message-ID": "<2@example.com>"}}
	seqs, err := s.Search(ctx, criteria)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if diff := cmp.Diff([]uint32{2}, seqs); diff != "" {
		t.Fatalf("Search() mismatch (-want +got):\n%s", diff)
	}

	var mutErr *MutationError
	err = s.AddFlag(ctx, seqs, model.FlagDeleted)
	if !errors.As(err, &mutErr) || !errors.Is(err, errReadOnly) {
		t.Fatalf("AddFlag() on read-only folder error = %v, want read-only MutationError", err)
	}

	if _, err := s.OpenFolder(ctx, "INBOX", false); err != nil {
		t.Fatalf("OpenFolder(read-write) error = %v", err)
	}
	if err := s.AddFlag(ctx, seqs, model.FlagDeleted); err != nil {
		t.Fatalf("AddFlag() error = %v", err)
	}
	if err := s.Expunge(ctx); err != nil {
		t.Fatalf("Expunge() error = %v", err)
	}

	total, err := s.OpenFolder(ctx, "INBOX", true)
	if err != nil {
		t.Fatalf("OpenFolder() after expunge error = %v", err)
	}
	if total != 2 {
		t.Errorf("messages after expunge = %d, want 2", total)
	}

	seqs, err = s.Search(ctx, criteria)
	if err != nil {
		t.Fatalf("Search() after expunge error = %v", err)
	}
	if len(seqs) != 0 {
		t.Errorf("Search() after expunge = %v, want none", seqs)
	}
}

func TestSessionRejectedToken(t *testing.T) {
	identity := testIdentity()
	cfg := startServer(t, identity)

	identity.AccessToken = "ya29.revoked"
	s := New(cfg, identity, quietLogger())
	defer s.Disconnect()

	err := s.Connect(context.Background())
	if !IsAuthError(err) {
		t.Fatalf("Connect() error = %v, want AuthError", err)
	}
	if IsConnectionError(err) {
		t.Errorf("Connect() error classified as ConnectionError: %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %v, want closed", s.State())
	}
}
