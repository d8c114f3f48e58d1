package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailSink sends alerts through the Gmail API with a stored OAuth token.
type GmailSink struct {
	svc  *gmail.Service
	from string
	to   string
}

// NewGmailSink reads the OAuth client file and a previously authorized token
// file. Token refreshes happen in memory only.
func NewGmailSink(ctx context.Context, credentialsFile, tokenFile, from, to string) (*GmailSink, error) {
	if to == "" {
		return nil, fmt.Errorf("gmail: recipient is required")
	}
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("gmail: read credentials %q: %w", credentialsFile, err)
	}
	conf, err := google.ConfigFromJSON(b, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("gmail: parse credentials: %w", err)
	}
	tok, err := readToken(tokenFile)
	if err != nil {
		return nil, err
	}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(conf.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("gmail: create service: %w", err)
	}
	if from == "" {
		from = to
	}
	return &GmailSink{svc: svc, from: from, to: to}, nil
}

func (s *GmailSink) Name() string { return "gmail" }

func (s *GmailSink) Send(ctx context.Context, m Message) error {
	msg := &gmail.Message{Raw: encodeRaw(s.from, s.to, m)}
	if _, err := s.svc.Users.Messages.Send("me", msg).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gmail send: %w", err)
	}
	return nil
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gmail: open token %q: %w", path, err)
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("gmail: decode token %q: %w", path, err)
	}
	return tok, nil
}

// encodeRaw builds an RFC 2822 text message in the base64url form the API
// expects.
func encodeRaw(from, to string, m Message) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return base64.URLEncoding.EncodeToString(buf.Bytes())
}
