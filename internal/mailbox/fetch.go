package mailbox

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/textproto"

	"github.com/nhle/webmail/internal/model"
)

// fetchedHeaders are the header fields requested for every message. The
// content headers let the parser decode the TEXT section as MIME.
var fetchedHeaders = []string{
	"FROM", "TO", "CC", "BCC", "SUBJECT", "DATE", "MESSAGE-ID",
	"CONTENT-TYPE", "CONTENT-TRANSFER-ENCODING", "MIME-VERSION",
}

var (
	headerSection = &imap.FetchItemBodySection{
		Specifier:    imap.PartSpecifierHeader,
		HeaderFields: fetchedHeaders,
		Peek:         true,
	}
	textSection = &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierText,
		Peek:      true,
	}
)

func fetchOptions() *imap.FetchOptions {
	return &imap.FetchOptions{
		Flags:         true,
		UID:           true,
		RFC822Size:    true,
		BodyStructure: &imap.FetchItemBodyStructure{Extended: true},
		BodySection:   []*imap.FetchItemBodySection{headerSection, textSection},
	}
}

// Range returns the sequence window of the limit newest messages after
// skipping offset, counting down from total. ok is false for an empty
// folder.
func Range(total uint32, limit, offset int) (start, end uint32, ok bool) {
	if total == 0 {
		return 0, 0, false
	}
	if limit < 1 {
		limit = 1
	}
	if offset < 0 {
		offset = 0
	}

	e := int64(total) - int64(offset)
	if e < 1 {
		e = 1
	}
	s := e - int64(limit) + 1
	if s < 1 {
		s = 1
	}

	return uint32(s), uint32(e), true
}

// FetchRange fetches the messages with sequence numbers in [start, end].
// Each message is yielded once all of its items have arrived; arrival
// order is the server's, not sequence order. The returned sequence can be
// ranged over once. A transport failure is yielded as a FetchError and
// ends the sequence.
func (s *Session) FetchRange(_ context.Context, start, end uint32) iter.Seq2[model.RawMessage, error] {
	consumed := false

	return func(yield func(model.RawMessage, error) bool) {
		if consumed {
			yield(model.RawMessage{}, &FetchError{Err: errFetchConsumed})
			return
		}
		consumed = true

		if s.state != StateFolderOpen {
			yield(model.RawMessage{}, &FetchError{Err: errNoFolder})
			return
		}
		if start == 0 || end < start {
			yield(model.RawMessage{}, &FetchError{
				Err: fmt.Errorf("invalid sequence range %d:%d", start, end),
			})
			return
		}

		var seqSet imap.SeqSet
		seqSet.AddRange(start, end)

		cmd := s.client.Fetch(seqSet, fetchOptions())

		var collectErr error
		stopped := false
		for {
			msg := cmd.Next()
			if msg == nil {
				break
			}

			buf, err := msg.Collect()
			if err != nil {
				collectErr = err
				break
			}

			if !yield(rawFromBuffer(buf), nil) {
				stopped = true
				break
			}
		}

		err := cmd.Close()
		if err == nil {
			err = collectErr
		}
		if err != nil {
			s.failOn(err)
			if !stopped {
				yield(model.RawMessage{}, &FetchError{Err: err})
			}
		}
	}
}

// rawFromBuffer assembles a RawMessage from one message's fetch items.
func rawFromBuffer(buf *imapclient.FetchMessageBuffer) model.RawMessage {
	raw := model.RawMessage{
		SeqNum:    buf.SeqNum,
		UID:       uint32(buf.UID),
		Size:      buf.RFC822Size,
		Header:    parseHeaderBlock(buf.FindBodySection(headerSection)),
		Body:      buf.FindBodySection(textSection),
		Structure: structureFromIMAP(buf.BodyStructure),
	}

	for _, flag := range buf.Flags {
		raw.Flags = append(raw.Flags, string(flag))
	}

	return raw
}

// parseHeaderBlock splits a raw header block into repeated-value lists.
// A malformed block yields whatever fields were readable.
func parseHeaderBlock(b []byte) model.HeaderFields {
	fields := model.HeaderFields{}
	if len(bytes.TrimSpace(b)) == 0 {
		return fields
	}
	if !bytes.HasSuffix(b, []byte("\r\n\r\n")) && !bytes.HasSuffix(b, []byte("\n\n")) {
		trimmed := bytes.TrimRight(b, "\r\n")
		b = append(append(make([]byte, 0, len(trimmed)+4), trimmed...), "\r\n\r\n"...)
	}

	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(b)))
	if err != nil {
		return fields
	}

	it := h.Fields()
	for it.Next() {
		fields.Add(it.Key(), it.Value())
	}

	return fields
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
