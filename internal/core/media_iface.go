package core

import (
	"context"

	"github.com/dkeye/VoiceChat/internal/domain"
)

// Track is one captured local track. Only the session controller flips
// Enabled; peers only read.
type Track interface {
	ID() string
	Kind() domain.MediaKind
	Enabled() bool
	SetEnabled(bool)
	// Stop releases the capture device. Safe to call more than once.
	Stop()
}

// LocalStream is the set of tracks shared by every peer connection.
type LocalStream interface {
	ID() string
	Tracks() []Track
}

// Capturer acquires a local stream. A refused permission must be reported
// as domain.ErrMediaAccessDenied so the caller can retry.
type Capturer interface {
	Capture(ctx context.Context, c domain.Constraints) (LocalStream, error)
}

// RemoteMedia is the handle of a stream received from one peer.
type RemoteMedia interface {
	ID() string
	Kinds() []domain.MediaKind
	// Detach stops delivering remote media. Safe to call more than once.
	Detach()
}

type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	TransportDisconnected
	TransportFailed
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	default:
		return "new"
	}
}

// MediaConnection is the negotiation capability of the real-time subsystem.
// Callbacks fire on the subsystem's goroutines.
type MediaConnection interface {
	CreateOffer() (domain.SessionDescription, error)
	CreateAnswer() (domain.SessionDescription, error)
	SetLocalDescription(domain.SessionDescription) error
	SetRemoteDescription(domain.SessionDescription) error
	AddICECandidate(domain.Candidate) error
	// AddLocalStream attaches every track of s as outgoing media.
	AddLocalStream(s LocalStream) error
	// Close should stop all underlying media resources.
	Close() error

	// OnLocalCandidate sets a callback for newly gathered local candidates.
	OnLocalCandidate(func(domain.Candidate))
	// OnRemoteMedia sets a callback invoked once per remote stream.
	OnRemoteMedia(func(RemoteMedia))
	// OnTransportState sets a callback for connectivity changes.
	OnTransportState(func(TransportState))
}

type ConnectionFactory interface {
	NewConnection() (MediaConnection, error)
}

// RenderOptions mirror the attributes of a remote media element.
type RenderOptions struct {
	Video bool `json:"video"`
	Muted bool `json:"muted"`
}

// Renderer is the display side: it learns about remote media and UI labels.
type Renderer interface {
	RemoteMediaAttached(peer domain.PeerID, m RemoteMedia, opts RenderOptions)
	RemoteMediaDetached(peer domain.PeerID)
	MuteLabelChanged(label string)
	PeerFailed(peer domain.PeerID, err error)
}
