package parser

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/webmail/internal/model"
)

// parseBody decodes the TEXT section of a message into its plain-text and
// HTML variants. The fetched content headers are prepended so multipart
// and transfer-encoded bodies decode correctly. On failure the raw body is
// returned as text.
func parseBody(h model.HeaderFields, body []byte) (text, html string) {
	if len(body) == 0 {
		return "", ""
	}

	defer func() {
		if r := recover(); r != nil {
			text, html = string(body), ""
		}
	}()

	contentType := h.First("content-type")
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Content-Type: %s\r\n", contentType)
	if cte := h.First("content-transfer-encoding"); cte != "" {
		fmt.Fprintf(&buf, "Content-Transfer-Encoding: %s\r\n", cte)
	}
	buf.WriteString("\r\n")
	buf.Write(body)

	mr, err := mail.CreateReader(&buf)
	if mr == nil || (err != nil && !message.IsUnknownCharset(err)) {
		return string(body), ""
	}
	defer mr.Close()

	parsed := false
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			break
		}
		if part == nil {
			break
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			// Attachment content is never retrieved.
			continue
		}

		contentType, _, _ := inline.ContentType()
		data, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain") && text == "":
			text = string(data)
			parsed = true
		case strings.HasPrefix(contentType, "text/html") && html == "":
			html = string(data)
			parsed = true
		}
	}

	if !parsed && text == "" && html == "" {
		return string(body), ""
	}

	return text, html
}

// htmlTagPattern matches HTML tags for stripping.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// stripHTML removes HTML tags from a string and decodes common
// entities, providing a basic plain-text rendering.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}

	result := html
	for _, tag := range []string{
		"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>",
	} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	result = htmlTagPattern.ReplaceAllString(result, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)

	return strings.TrimSpace(replacer.Replace(result))
}

var newlinePattern = regexp.MustCompile(`\r\n|\r|\n`)

// preview returns the first PreviewLength characters of text with
// surrounding whitespace trimmed and line breaks collapsed to spaces.
func preview(text string) string {
	text = newlinePattern.ReplaceAllString(strings.TrimSpace(text), " ")
	if utf8.RuneCountInString(text) <= model.PreviewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:model.PreviewLength])
}
