package domain

import "fmt"

type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

// SessionDescription is the {type, sdp} pair exchanged through the relay.
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

func (d SessionDescription) Validate() error {
	switch d.Type {
	case SDPTypeOffer, SDPTypeAnswer:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedSDPType, d.Type)
	}
	if d.SDP == "" {
		return ErrEmptySDP
	}
	return nil
}

// Candidate is a trickled connectivity candidate. An empty Candidate string
// marks the end of gathering.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
}
