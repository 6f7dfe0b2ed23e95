package mailbox

import (
	"github.com/emersion/go-sasl"
)

// xoauth2Mechanism is the SASL mechanism name Gmail expects for bearer
// tokens.
const xoauth2Mechanism = "XOAUTH2"

// xoauth2Client implements sasl.Client for XOAUTH2. go-imap base64-encodes
// the initial response on the wire.
type xoauth2Client struct {
	username string
	token    string
}

// NewXOAuth2Client returns a SASL client that authenticates username with
// an OAuth bearer token.
func NewXOAuth2Client(username, token string) sasl.Client {
	return &xoauth2Client{username: username, token: token}
}

func (c *xoauth2Client) Start() (string, []byte, error) {
	return xoauth2Mechanism, xoauth2Response(c.username, c.token), nil
}

// Next answers the server's error challenge with an empty response so the
// server can finish the exchange with a tagged NO.
func (c *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	return []byte{}, nil
}

func xoauth2Response(username, token string) []byte {
	return []byte("user=" + username + "\x01auth=Bearer " + token + "\x01\x01")
}
