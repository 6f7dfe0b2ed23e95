package parser

import (
	"errors"
	"io"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/webmail/internal/model"
)

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func header(pairs ...string) model.HeaderFields {
	h := model.HeaderFields{}
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Add(pairs[i], pairs[i+1])
	}
	return h
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name        string
		value       string
		wantAddress string
		wantName    string
	}{
		{name: "quoted name", value: `"Jane Doe" <jane@example.com>`, wantAddress: "jane@example.com", wantName: "Jane Doe"},
		{name: "bare name", value: `Jane Doe <jane@example.com>`, wantAddress: "jane@example.com", wantName: "Jane Doe"},
		{name: "bare address", value: "jane@example.com", wantAddress: "jane@example.com", wantName: "jane@example.com"},
		{name: "angle only", value: "<jane@example.com>", wantAddress: "jane@example.com", wantName: "jane@example.com"},
		{name: "malformed", value: "not an address", wantAddress: "not an address", wantName: "not an address"},
		{name: "empty", value: "   ", wantAddress: "", wantName: ""},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			address, name := ParseAddress(tc.value)
			if address != tc.wantAddress {
				t.Errorf("address = %q, want %q", address, tc.wantAddress)
			}
			if name != tc.wantName {
				t.Errorf("name = %q, want %q", name, tc.wantName)
			}
		})
	}
}

func TestAttachments(t *testing.T) {
	tests := []struct {
		name      string
		tree      *model.StructNode
		wantHas   bool
		wantCount int
	}{
		{name: "nil tree", tree: nil},
		{
			name: "alternative without attachments",
			tree: model.Branch(
				model.Leaf("text", "plain", ""),
				model.Leaf("text", "html", ""),
			),
		},
		{
			name: "nested attachment",
			tree: model.Branch(
				model.Branch(
					model.Leaf("text", "plain", ""),
					model.Branch(
						model.Leaf("application", "pdf", "attachment"),
					),
				),
			),
			wantHas:   true,
			wantCount: 1,
		},
		{
			name: "inline image is not an attachment",
			tree: model.Branch(
				model.Leaf("text", "html", ""),
				model.Leaf("image", "png", "inline"),
			),
		},
		{
			name: "mime type alone is not evidence",
			tree: model.Branch(
				model.Leaf("text", "plain", ""),
				model.Leaf("application", "octet-stream", ""),
			),
		},
		{
			name: "mixed case disposition",
			tree: model.Branch(
				model.Leaf("text", "plain", ""),
				model.Leaf("application", "zip", "Attachment"),
				model.Leaf("image", "jpeg", "ATTACHMENT"),
			),
			wantHas:   true,
			wantCount: 2,
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			if got := HasAttachments(tc.tree); got != tc.wantHas {
				t.Errorf("HasAttachments() = %v, want %v", got, tc.wantHas)
			}
			if got := CountAttachments(tc.tree); got != tc.wantCount {
				t.Errorf("CountAttachments() = %d, want %d", got, tc.wantCount)
			}
		})
	}
}

func TestAttachmentsDeepTree(t *testing.T) {
	tree := model.Leaf("application", "pdf", "attachment")
	for i := 0; i < 100000; i++ {
		tree = model.Branch(tree)
	}

	if !HasAttachments(tree) {
		t.Error("HasAttachments() = false on deep tree")
	}
	if got := CountAttachments(tree); got != 1 {
		t.Errorf("CountAttachments() = %d, want 1", got)
	}
}

func TestParseOneDefaults(t *testing.T) {
	msg := ParseOne(model.RawMessage{SeqNum: 7}, fixedNow)

	if msg.Subject != model.DefaultSubject {
		t.Errorf("Subject = %q, want %q", msg.Subject, model.DefaultSubject)
	}
	if want := "1710498600000-7"; msg.MessageID != want {
		t.Errorf("MessageID = %q, want %q", msg.MessageID, want)
	}
	if !msg.ReceivedDate.Equal(fixedNow) {
		t.Errorf("ReceivedDate = %v, want %v", msg.ReceivedDate, fixedNow)
	}
	if msg.FromAddress != "" || msg.FromName != "" {
		t.Errorf("From = %q/%q, want empty", msg.FromAddress, msg.FromName)
	}
	if msg.IsRead {
		t.Error("IsRead = true without \\Seen")
	}
	if msg.HasAttachments || msg.AttachmentCount != 0 {
		t.Errorf("attachments = %v/%d, want none", msg.HasAttachments, msg.AttachmentCount)
	}
	if msg.BodyText != "" || msg.BodyPreview != "" {
		t.Errorf("body = %q/%q, want empty", msg.BodyText, msg.BodyPreview)
	}
}

func TestParseOneHeaders(t *testing.T) {
	raw := model.RawMessage{
		SeqNum: 3,
		UID:    42,
		Size:   2048,
		Flags:  []string{`\Seen`, `\Flagged`},
		Header: header(
			"From", `"Jane Doe" <jane@example.com>`,
			"To", "a@example.com",
			"To", "b@example.com",
			"Cc", "c@example.com",
			"Subject", "=?UTF-8?B?SGVsbG8gV29ybGQ=?=",
			"Date", "Fri, 15 Mar 2024 09:00:00 +0000",
			"Message-ID", "<abc@example.com>",
		),
		Body: []byte("Hi there,\r\nsee you soon."),
		Structure: model.Branch(
			model.Leaf("text", "plain", ""),
			model.Leaf("application", "pdf", "attachment"),
		),
	}

	msg := ParseOne(raw, fixedNow)

	if msg.MessageID != "<abc@example.com>" {
		t.Errorf("MessageID = %q", msg.MessageID)
	}
	if msg.Subject != "Hello World" {
		t.Errorf("Subject = %q, want decoded %q", msg.Subject, "Hello World")
	}
	if msg.FromAddress != "jane@example.com" || msg.FromName != "Jane Doe" {
		t.Errorf("From = %q/%q", msg.FromAddress, msg.FromName)
	}
	if msg.ToAddress != "a@example.com, b@example.com" {
		t.Errorf("ToAddress = %q", msg.ToAddress)
	}
	if msg.CcAddress != "c@example.com" {
		t.Errorf("CcAddress = %q", msg.CcAddress)
	}
	if msg.BccAddress != "" {
		t.Errorf("BccAddress = %q, want empty", msg.BccAddress)
	}
	wantDate := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	if !msg.ReceivedDate.Equal(wantDate) {
		t.Errorf("ReceivedDate = %v, want %v", msg.ReceivedDate, wantDate)
	}
	if !msg.IsRead {
		t.Error("IsRead = false with \\Seen")
	}
	if !msg.HasAttachments || msg.AttachmentCount != 1 {
		t.Errorf("attachments = %v/%d, want true/1", msg.HasAttachments, msg.AttachmentCount)
	}
	if msg.UID != 42 || msg.Size != 2048 {
		t.Errorf("UID/Size = %d/%d", msg.UID, msg.Size)
	}
	if msg.BodyPreview != "Hi there, see you soon." {
		t.Errorf("BodyPreview = %q", msg.BodyPreview)
	}
}

func TestParseOneMalformedFields(t *testing.T) {
	raw := model.RawMessage{
		SeqNum: 1,
		Header: header(
			"From", "not an address",
			"Date", "yesterday-ish",
			"Subject", "   ",
		),
	}

	msg := ParseOne(raw, fixedNow)

	if msg.FromAddress != "not an address" {
		t.Errorf("FromAddress = %q, want raw value", msg.FromAddress)
	}
	if !msg.ReceivedDate.Equal(fixedNow) {
		t.Errorf("ReceivedDate = %v, want now", msg.ReceivedDate)
	}
	if msg.Subject != model.DefaultSubject {
		t.Errorf("Subject = %q, want default", msg.Subject)
	}
}

func TestParseOneMultipartBody(t *testing.T) {
	body := "--b1\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n\r\n" +
		"Plain version\r\n" +
		"--b1\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n\r\n" +
		"<p>HTML version</p>\r\n" +
		"--b1--\r\n"

	raw := model.RawMessage{
		SeqNum: 1,
		Header: header(
			"Content-Type", `multipart/alternative; boundary="b1"`,
			"Message-ID", "<m@example.com>",
		),
		Body: []byte(body),
	}

	msg := ParseOne(raw, fixedNow)

	if !strings.Contains(msg.BodyText, "Plain version") {
		t.Errorf("BodyText = %q", msg.BodyText)
	}
	if !strings.Contains(msg.BodyHTML, "<p>HTML version</p>") {
		t.Errorf("BodyHTML = %q", msg.BodyHTML)
	}
	if !strings.HasPrefix(msg.BodyPreview, "Plain version") {
		t.Errorf("BodyPreview = %q", msg.BodyPreview)
	}
}

func TestParseOneQuotedPrintable(t *testing.T) {
	raw := model.RawMessage{
		Header: header(
			"Content-Type", "text/plain; charset=utf-8",
			"Content-Transfer-Encoding", "quoted-printable",
		),
		Body: []byte("caf=C3=A9 au lait"),
	}

	msg := ParseOne(raw, fixedNow)

	if msg.BodyText != "café au lait" {
		t.Errorf("BodyText = %q, want %q", msg.BodyText, "café au lait")
	}
}

func TestParseOneHTMLOnlyPreview(t *testing.T) {
	raw := model.RawMessage{
		Header: header("Content-Type", "text/html; charset=utf-8"),
		Body:   []byte("<div>Hello&nbsp;<b>there</b></div>"),
	}

	msg := ParseOne(raw, fixedNow)

	if msg.BodyText != "" {
		t.Errorf("BodyText = %q, want empty", msg.BodyText)
	}
	if msg.BodyPreview != "Hello there" {
		t.Errorf("BodyPreview = %q, want %q", msg.BodyPreview, "Hello there")
	}
}

func TestPreviewTruncates(t *testing.T) {
	long := strings.Repeat("é", model.PreviewLength+50)

	got := preview(long)
	if n := len([]rune(got)); n != model.PreviewLength {
		t.Errorf("preview length = %d, want %d", n, model.PreviewLength)
	}
	if got := preview("a\r\nb\nc"); got != "a b c" {
		t.Errorf("preview() = %q, want %q", got, "a b c")
	}
}

func TestParseOnePreviewDropsTrailingLineBreak(t *testing.T) {
	raw := model.RawMessage{
		Header: header("Content-Type", "text/plain; charset=utf-8"),
		Body:   []byte("first\r\nsecond\r\n"),
	}

	msg := ParseOne(raw, fixedNow)

	if msg.BodyPreview != "first second" {
		t.Errorf("BodyPreview = %q, want %q", msg.BodyPreview, "first second")
	}
	if msg.BodyText != "first\r\nsecond\r\n" {
		t.Errorf("BodyText = %q, want the body unchanged", msg.BodyText)
	}
}

func rawSeq(raws []model.RawMessage, tail error) iter.Seq2[model.RawMessage, error] {
	return func(yield func(model.RawMessage, error) bool) {
		for _, r := range raws {
			if !yield(r, nil) {
				return
			}
		}
		if tail != nil {
			yield(model.RawMessage{}, tail)
		}
	}
}

func TestParseAllDropsPanickingMessage(t *testing.T) {
	orig := parseFunc
	t.Cleanup(func() { parseFunc = orig })
	parseFunc = func(raw model.RawMessage, now time.Time) model.ParsedMessage {
		if raw.SeqNum == 2 {
			panic("boom")
		}
		return orig(raw, now)
	}

	raws := []model.RawMessage{{SeqNum: 1}, {SeqNum: 2}, {SeqNum: 3}}

	got, err := ParseAll(rawSeq(raws, nil), fixedNow, quietLogger())
	if err != nil {
		t.Fatalf("ParseAll() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].MessageID != "1710498600000-1" || got[1].MessageID != "1710498600000-3" {
		t.Errorf("ids = %q, %q", got[0].MessageID, got[1].MessageID)
	}
}

func TestParseAllReturnsSequenceError(t *testing.T) {
	wantErr := errors.New("connection reset")
	raws := []model.RawMessage{{SeqNum: 1}, {SeqNum: 2}}

	got, err := ParseAll(rawSeq(raws, wantErr), fixedNow, quietLogger())
	if !errors.Is(err, wantErr) {
		t.Fatalf("ParseAll() error = %v, want %v", err, wantErr)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2 messages parsed before the error", len(got))
	}
}
