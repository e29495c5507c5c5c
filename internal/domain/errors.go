package domain

import (
	"errors"
	"fmt"
)

var (
	ErrChatNameEmpty   = errors.New("chat name empty")
	ErrChatNameTooLong = errors.New("chat name too long")

	ErrMediaAccessDenied = errors.New("media access denied")
	ErrAlreadyRunning    = errors.New("voice chat is already running")
	ErrNotRunning        = errors.New("voice chat is not running")

	ErrOfferCreation          = errors.New("offer creation failed")
	ErrAnswerCreation         = errors.New("answer creation failed")
	ErrLocalDescriptionApply  = errors.New("local description apply failed")
	ErrRemoteDescriptionApply = errors.New("remote description apply failed")
	ErrCandidateApply         = errors.New("candidate apply failed")
	ErrUnexpectedDescription  = errors.New("unexpected session description")
	ErrUnknownPeer            = errors.New("unknown peer")
	ErrPeerClosed             = errors.New("peer connection closed")
	ErrNegotiationStalled     = errors.New("negotiation stalled")

	ErrUnsupportedSDPType = errors.New("unsupported sdp type")
	ErrEmptySDP           = errors.New("empty sdp")
)

// PeerError attaches the offending peer to a negotiation failure.
type PeerError struct {
	Op   string
	Peer PeerID
	Err  error
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("%s [peer %s]: %v", e.Op, e.Peer, e.Err)
}

func (e *PeerError) Unwrap() error { return e.Err }

// NewPeerError wraps cause under kind so both match errors.Is.
func NewPeerError(op string, peer PeerID, kind, cause error) *PeerError {
	err := kind
	if cause != nil {
		err = fmt.Errorf("%w: %w", kind, cause)
	}
	return &PeerError{Op: op, Peer: peer, Err: err}
}

// IsRetryable reports whether the application may retry the failed step,
// for example by asking the relay to re-add the peer.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNegotiationStalled) || errors.Is(err, ErrMediaAccessDenied)
}
