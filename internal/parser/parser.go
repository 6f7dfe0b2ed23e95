// Package parser turns raw fetched messages into structured records.
// Nothing in this package performs I/O.
package parser

import (
	"fmt"
	"iter"
	"net/mail"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/webmail/internal/model"
)

// ParseOne converts raw into a ParsedMessage. Each field falls back
// independently, so a malformed header or body never fails the message.
// now supplies the fallback date and the synthesized Message-ID.
func ParseOne(raw model.RawMessage, now time.Time) model.ParsedMessage {
	h := raw.Header
	if h == nil {
		h = model.HeaderFields{}
	}

	msg := model.ParsedMessage{
		MessageID:       messageID(h, raw.SeqNum, now),
		Subject:         subject(h),
		ToAddress:       joinAddresses(h, "to"),
		CcAddress:       joinAddresses(h, "cc"),
		BccAddress:      joinAddresses(h, "bcc"),
		ReceivedDate:    receivedDate(h, now),
		HasAttachments:  HasAttachments(raw.Structure),
		AttachmentCount: CountAttachments(raw.Structure),
		Size:            raw.Size,
		UID:             raw.UID,
		Flags:           append([]string(nil), raw.Flags...),
	}

	msg.FromAddress, msg.FromName = ParseAddress(decodeHeader(h.First("from")))
	msg.IsRead = msg.HasFlag(model.FlagSeen)

	msg.BodyText, msg.BodyHTML = parseBody(h, raw.Body)
	if msg.BodyText != "" {
		msg.BodyPreview = preview(msg.BodyText)
	} else {
		msg.BodyPreview = preview(stripHTML(msg.BodyHTML))
	}

	return msg
}

// ParseAll parses every message yielded by raws. A message whose parsing
// panics is logged and dropped. A sequence error stops iteration and is
// returned together with the messages parsed before it.
func ParseAll(raws iter.Seq2[model.RawMessage, error], now time.Time, log logrus.FieldLogger) ([]model.ParsedMessage, error) {
	var parsed []model.ParsedMessage

	for raw, err := range raws {
		if err != nil {
			return parsed, err
		}

		msg, ok := parseRecovered(raw, now, log)
		if !ok {
			continue
		}
		parsed = append(parsed, msg)
	}

	return parsed, nil
}

func parseRecovered(raw model.RawMessage, now time.Time, log logrus.FieldLogger) (msg model.ParsedMessage, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{
				"seq":   raw.SeqNum,
				"panic": r,
			}).Warn("dropping message that failed to parse")
			ok = false
		}
	}()

	return parseFunc(raw, now), true
}

// parseFunc is swapped in tests to simulate a panicking parse.
var parseFunc = ParseOne

func messageID(h model.HeaderFields, seq uint32, now time.Time) string {
	if id := strings.TrimSpace(h.First("message-id")); id != "" {
		return id
	}
	return fmt.Sprintf("%d-%d", now.UnixMilli(), seq)
}

func subject(h model.HeaderFields) string {
	if !h.Has("subject") {
		return model.DefaultSubject
	}
	s := strings.TrimSpace(decodeHeader(h.First("subject")))
	if s == "" {
		return model.DefaultSubject
	}
	return s
}

// joinAddresses returns every value of a recipient header, decoded and
// joined with ", ".
func joinAddresses(h model.HeaderFields, key string) string {
	values := h[key]
	if len(values) == 0 {
		return ""
	}

	decoded := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(decodeHeader(v)); v != "" {
			decoded = append(decoded, v)
		}
	}
	return strings.Join(decoded, ", ")
}

func receivedDate(h model.HeaderFields, now time.Time) time.Time {
	value := strings.TrimSpace(h.First("date"))
	if value == "" {
		return now
	}
	t, err := mail.ParseDate(value)
	if err != nil {
		return now
	}
	return t
}
