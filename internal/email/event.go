package email

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// ErrInvalidNotification is returned when a record cannot be decoded into a
// raw email.
var ErrInvalidNotification = errors.New("invalid email notification")

// Event is a batch of queued notifications.
type Event struct {
	Records []Record `json:"records"`
}

// Record is one queued notification. Message holds the JSON Notification.
type Record struct {
	MessageID string `json:"message_id"`
	Message   string `json:"message"`
}

// Notification is the payload published for every received email.
type Notification struct {
	// Content is the base64-encoded raw email.
	Content string `json:"content"`
	// Mail carries receipt metadata; it is not used for extraction.
	Mail json.RawMessage `json:"mail,omitempty"`
}

// NewRecord wraps a raw email into a Record, the inverse of DecodeRecord.
func NewRecord(messageID string, raw []byte) (Record, error) {
	msg, err := json.Marshal(Notification{Content: base64.StdEncoding.EncodeToString(raw)})
	if err != nil {
		return Record{}, fmt.Errorf("marshal notification: %w", err)
	}
	return Record{MessageID: messageID, Message: string(msg)}, nil
}

// DecodeRecord parses the notification in r and returns the raw email bytes.
func DecodeRecord(r Record) ([]byte, error) {
	var n Notification
	if err := json.Unmarshal([]byte(r.Message), &n); err != nil {
		return nil, fmt.Errorf("%w: parse message: %w", ErrInvalidNotification, err)
	}
	if n.Content == "" {
		return nil, fmt.Errorf("%w: missing content", ErrInvalidNotification)
	}

	// Some publishers wrap long base64 lines.
	content := strings.NewReplacer("\r", "", "\n", "").Replace(n.Content)
	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("%w: decode content: %w", ErrInvalidNotification, err)
	}
	return raw, nil
}

// DecodeText converts raw email bytes to text. Bytes that are not valid UTF-8
// are read as ISO-8859-1, the usual charset of Spanish bank notifications.
func DecodeText(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	text, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode ISO-8859-1 email: %w", err)
	}
	return string(text), nil
}
