package model

import (
	"strings"
	"time"
)

// DefaultSubject is used when a message carries no Subject header.
const DefaultSubject = "(No Subject)"

// PreviewLength is the number of characters kept in BodyPreview.
const PreviewLength = 200

// Flags set by the mailbox server.
const (
	FlagSeen    = `\Seen`
	FlagDeleted = `\Deleted`
)

// HeaderFields maps a lower-cased header name to its raw values in the
// order the server returned them.
type HeaderFields map[string][]string

// First returns the first value for key, or "" when absent.
func (h HeaderFields) First(key string) string {
	values := h[strings.ToLower(key)]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Has reports whether key has at least one value.
func (h HeaderFields) Has(key string) bool {
	return len(h[strings.ToLower(key)]) > 0
}

// Add appends a value for key.
func (h HeaderFields) Add(key, value string) {
	k := strings.ToLower(key)
	h[k] = append(h[k], value)
}

// NodeKind tags a StructNode as a branch or a leaf.
type NodeKind int

const (
	NodeLeaf NodeKind = iota
	NodeBranch
)

// StructNode is one node of a message's body-structure tree. Branch nodes
// only carry Children; leaf nodes describe a single body part.
type StructNode struct {
	Kind     NodeKind
	Children []*StructNode

	Type        string
	Subtype     string
	Disposition string
}

// Branch builds a branch node.
func Branch(children ...*StructNode) *StructNode {
	return &StructNode{Kind: NodeBranch, Children: children}
}

// Leaf builds a leaf node.
func Leaf(typ, subtype, disposition string) *StructNode {
	return &StructNode{
		Kind:        NodeLeaf,
		Type:        typ,
		Subtype:     subtype,
		Disposition: disposition,
	}
}

// RawMessage is the assembled fetch result for one message, addressed by
// its sequence number within the selected folder.
type RawMessage struct {
	SeqNum    uint32
	UID       uint32
	Header    HeaderFields
	Body      []byte
	Flags     []string
	Size      int64
	Structure *StructNode
}

// ParsedMessage is the structured record derived from a RawMessage.
type ParsedMessage struct {
	MessageID       string    `json:"messageId" db:"message_id"`
	Mailbox         string    `json:"mailbox" db:"mailbox"`
	Subject         string    `json:"subject" db:"subject"`
	FromAddress     string    `json:"fromAddress" db:"from_address"`
	FromName        string    `json:"fromName" db:"from_name"`
	ToAddress       string    `json:"toAddress" db:"to_address"`
	CcAddress       string    `json:"ccAddress" db:"cc_address"`
	BccAddress      string    `json:"bccAddress" db:"bcc_address"`
	ReceivedDate    time.Time `json:"receivedDate" db:"received_date"`
	BodyPreview     string    `json:"bodyPreview" db:"body_preview"`
	BodyText        string    `json:"bodyText,omitempty" db:"body_text"`
	BodyHTML        string    `json:"bodyHtml,omitempty" db:"body_html"`
	HasAttachments  bool      `json:"hasAttachments" db:"has_attachments"`
	AttachmentCount int       `json:"attachmentCount" db:"attachment_count"`
	IsRead          bool      `json:"isRead" db:"is_read"`
	Size            int64     `json:"size" db:"size"`
	Flags           []string  `json:"flags" db:"-"`
	UID             uint32    `json:"uid" db:"uid"`
}

// HasFlag reports whether the message carries flag.
func (m ParsedMessage) HasFlag(flag string) bool {
	for _, f := range m.Flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

// StoredMessage is a ParsedMessage persisted for one user. IsRead and
// IsStarred are local flags; IsRead is overwritten on every resync.
type StoredMessage struct {
	ParsedMessage

	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	IsStarred bool      `json:"isStarred" db:"is_starred"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Stats summarizes a user's stored messages.
type Stats struct {
	Total           int `json:"total" db:"total"`
	Unread          int `json:"unread" db:"unread"`
	Read            int `json:"read" db:"-"`
	WithAttachments int `json:"withAttachments" db:"with_attachments"`
}
