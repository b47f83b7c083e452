// Package adapters normalizes channel-specific payloads into the canonical
// inbound message and formats replies back out. Each channel is one thin
// format translator; no channel logic leaks past this package.
package adapters

import (
	"fmt"
	"strings"

	"github.com/meridian-labs/tether/pkg/types"
)

// InboundMessage is the canonical normalized turn an adapter produces.
type InboundMessage struct {
	Channel  types.Channel
	UserID   string
	Text     string
	Metadata types.Metadata
}

// RawMessage is the channel payload before normalization. Fields carries the
// channel-specific key/value pairs as decoded from the transport.
type RawMessage struct {
	UserID   string
	Text     string
	Subject  string
	Metadata types.Metadata
}

// Normalizer translates between one channel's wire shape and the canonical
// message.
type Normalizer interface {
	// Normalize converts a raw channel payload into the canonical message.
	Normalize(raw RawMessage) (InboundMessage, error)

	// Format renders a reply for the channel.
	Format(reply string) (string, error)
}

// ForChannel returns the normalizer for a channel tag.
func ForChannel(channel types.Channel) (Normalizer, error) {
	switch channel {
	case types.ChannelWeb:
		return &webAdapter{}, nil
	case types.ChannelWhatsApp:
		return &whatsappAdapter{}, nil
	case types.ChannelX:
		return &xAdapter{}, nil
	case types.ChannelEmail:
		return &emailAdapter{}, nil
	case types.ChannelPhone:
		return &phoneAdapter{}, nil
	default:
		return nil, fmt.Errorf("adapters: unknown channel %q", channel)
	}
}

func requireFields(channel types.Channel, raw RawMessage) error {
	if raw.UserID == "" {
		return fmt.Errorf("adapters: %s message has no user id", channel)
	}
	if strings.TrimSpace(raw.Text) == "" {
		return fmt.Errorf("adapters: %s message has no text", channel)
	}
	return nil
}
