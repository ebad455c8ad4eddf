// Package email defines the mail collaborator used by chain modules.
//
// Modules never render or deliver mail themselves: they hand a Message with a
// template name and variables to a Sender. Delivery (templating, SMTP) is
// owned by a downstream consumer of the mail queue.
package email

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"unicode"
)

// Template names understood by the mail consumer.
const (
	TemplateOneTimePassword = "one_time_password"
	TemplateForgotten       = "forgotten"
	TemplateSignInLink      = "maillink"
)

// Message is one mail delivery request.
type Message struct {
	Recipient string            `json:"recipient"`
	Template  string            `json:"template"`
	Variables map[string]string `json:"variables"`
	Locale    string            `json:"locale,omitempty"`
}

// Sender enqueues a message for delivery.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender logs messages instead of delivering them. Used when no mail queue
// is configured. Variables are not logged since they carry codes and links.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "mail queued",
		"template", msg.Template,
		"recipient_domain", domainOf(msg.Recipient),
		"locale", msg.Locale,
	)
	return nil
}

// RecordingSender keeps sent messages in memory for tests and local runs.
type RecordingSender struct {
	mu   sync.Mutex
	sent []Message
}

func NewRecordingSender() *RecordingSender {
	return &RecordingSender{}
}

func (s *RecordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

// Sent returns a copy of all recorded messages.
func (s *RecordingSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

// Last returns the most recently recorded message.
func (s *RecordingSender) Last() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return Message{}, false
	}
	return s.sent[len(s.sent)-1], true
}

// DeriveNameFromEmail guesses a display name from the local part of an address,
// used as the greeting variable when the user record has no username.
func DeriveNameFromEmail(email string) (string, string) {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "User", "User"
	}

	first := capitalize(parts[0])
	last := "User"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

// MaskAddress hides most of the local part: "alice@example.com" -> "a***e@example.com".
func MaskAddress(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return ""
	}
	local := []rune(email[:at])
	switch len(local) {
	case 1, 2:
		return string(local[0]) + "***" + email[at:]
	default:
		return string(local[0]) + "***" + string(local[len(local)-1]) + email[at:]
	}
}

func domainOf(email string) string {
	if at := strings.LastIndexByte(email, '@'); at >= 0 {
		return email[at+1:]
	}
	return ""
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
