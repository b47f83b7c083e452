package adapters

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/meridian-labs/tether/pkg/types"
)

// webAdapter passes chat-widget messages through nearly untouched.
type webAdapter struct{}

func (a *webAdapter) Normalize(raw RawMessage) (InboundMessage, error) {
	if err := requireFields(types.ChannelWeb, raw); err != nil {
		return InboundMessage{}, err
	}
	return InboundMessage{
		Channel:  types.ChannelWeb,
		UserID:   raw.UserID,
		Text:     strings.TrimSpace(raw.Text),
		Metadata: raw.Metadata,
	}, nil
}

func (a *webAdapter) Format(reply string) (string, error) {
	return reply, nil
}

// whatsappAdapter strips the wa: prefix some gateways add to sender ids.
type whatsappAdapter struct{}

func (a *whatsappAdapter) Normalize(raw RawMessage) (InboundMessage, error) {
	if err := requireFields(types.ChannelWhatsApp, raw); err != nil {
		return InboundMessage{}, err
	}
	return InboundMessage{
		Channel:  types.ChannelWhatsApp,
		UserID:   strings.TrimPrefix(raw.UserID, "wa:"),
		Text:     strings.TrimSpace(raw.Text),
		Metadata: raw.Metadata,
	}, nil
}

func (a *whatsappAdapter) Format(reply string) (string, error) {
	return reply, nil
}

// maxPostLength is the reply budget on x.
const maxPostLength = 280

// xAdapter handles posts: @handle user ids and the platform length cap.
type xAdapter struct{}

func (a *xAdapter) Normalize(raw RawMessage) (InboundMessage, error) {
	if err := requireFields(types.ChannelX, raw); err != nil {
		return InboundMessage{}, err
	}
	return InboundMessage{
		Channel:  types.ChannelX,
		UserID:   strings.TrimPrefix(raw.UserID, "@"),
		Text:     strings.TrimSpace(raw.Text),
		Metadata: raw.Metadata,
	}, nil
}

func (a *xAdapter) Format(reply string) (string, error) {
	if utf8.RuneCountInString(reply) <= maxPostLength {
		return reply, nil
	}
	runes := []rune(reply)
	return string(runes[:maxPostLength-1]) + "…", nil
}

// emailAdapter folds the subject line into the message text and lowercases
// the address so the same mailbox always hashes identically.
type emailAdapter struct{}

func (a *emailAdapter) Normalize(raw RawMessage) (InboundMessage, error) {
	if err := requireFields(types.ChannelEmail, raw); err != nil {
		return InboundMessage{}, err
	}
	text := strings.TrimSpace(raw.Text)
	if subject := strings.TrimSpace(raw.Subject); subject != "" {
		text = subject + "\n" + text
	}
	return InboundMessage{
		Channel:  types.ChannelEmail,
		UserID:   strings.ToLower(strings.TrimSpace(raw.UserID)),
		Text:     text,
		Metadata: raw.Metadata,
	}, nil
}

func (a *emailAdapter) Format(reply string) (string, error) {
	return reply, nil
}

// phoneAdapter normalizes dialed numbers to digits with a leading plus so the
// same caller always hashes identically across formats.
type phoneAdapter struct{}

func (a *phoneAdapter) Normalize(raw RawMessage) (InboundMessage, error) {
	if err := requireFields(types.ChannelPhone, raw); err != nil {
		return InboundMessage{}, err
	}
	number, err := normalizeNumber(raw.UserID)
	if err != nil {
		return InboundMessage{}, err
	}
	return InboundMessage{
		Channel:  types.ChannelPhone,
		UserID:   number,
		Text:     strings.TrimSpace(raw.Text),
		Metadata: raw.Metadata,
	}, nil
}

func (a *phoneAdapter) Format(reply string) (string, error) {
	return reply, nil
}

func normalizeNumber(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() < 7 {
		return "", fmt.Errorf("adapters: %q is not a dialable number", raw)
	}
	return "+" + digits.String(), nil
}
