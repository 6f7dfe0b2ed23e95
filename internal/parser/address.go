package parser

import (
	"mime"
	"regexp"
	"strings"

	"github.com/emersion/go-message/charset"
)

var (
	// angleAddrPattern isolates the bare address inside <...>.
	angleAddrPattern = regexp.MustCompile(`<(.+?)>`)

	// displayNamePattern matches a quoted or bare name before <.
	displayNamePattern = regexp.MustCompile(`^\s*"?(.+?)"?\s*<`)
)

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// ParseAddress splits a single address header value into the bare address
// and a display name. Without angle brackets the whole value is the
// address; without a display name the address doubles as the name.
func ParseAddress(value string) (address, name string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ""
	}

	address = value
	if m := angleAddrPattern.FindStringSubmatch(value); m != nil {
		address = strings.TrimSpace(m[1])
	}

	name = address
	if m := displayNamePattern.FindStringSubmatch(value); m != nil {
		if n := strings.TrimSpace(m[1]); n != "" {
			name = n
		}
	}

	return address, name
}

// decodeHeader decodes RFC 2047 encoded words, returning the input
// unchanged when it cannot be decoded.
func decodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}
