// Package domain contains the value types shared by the negotiation engine,
// its collaborators and the wire protocol. No transport or lifecycle logic here.
package domain

type (
	// ChatName identifies a room on the relay. Empty when not joined.
	ChatName string
	// PeerID is assigned by the relay and is stable for one membership.
	PeerID string
)

const MaxChatNameLen = 64

type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// Constraints select which capture devices are requested.
type Constraints struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`
}

// Kinds lists the requested media kinds, audio first.
func (c Constraints) Kinds() []MediaKind {
	out := make([]MediaKind, 0, 2)
	if c.Audio {
		out = append(out, MediaKindAudio)
	}
	if c.Video {
		out = append(out, MediaKindVideo)
	}
	return out
}

// ValidateChatName rejects names the relay would not route.
func ValidateChatName(name ChatName) error {
	if len(name) == 0 {
		return ErrChatNameEmpty
	}
	if len(name) > MaxChatNameLen {
		return ErrChatNameTooLong
	}
	return nil
}
