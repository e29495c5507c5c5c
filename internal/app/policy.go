package app

import (
	"github.com/dkeye/VoiceChat/internal/core"
	"github.com/dkeye/VoiceChat/internal/domain"
)

type FailureAction int

const (
	NoAction FailureAction = iota
	ReportPeer
	ClosePeer
)

func (a FailureAction) String() string {
	switch a {
	case ReportPeer:
		return "report"
	case ClosePeer:
		return "close"
	default:
		return "none"
	}
}

// Policy decides what the controller does when a peer misbehaves.
type Policy interface {
	OnStall(peer domain.PeerID, state domain.NegotiationState) FailureAction
	OnTransport(peer domain.PeerID, state core.TransportState) FailureAction
}

// SimplePolicy reports stalls and drops peers whose transport failed.
type SimplePolicy struct{}

func (SimplePolicy) OnStall(domain.PeerID, domain.NegotiationState) FailureAction {
	return ReportPeer
}

func (SimplePolicy) OnTransport(_ domain.PeerID, state core.TransportState) FailureAction {
	switch state {
	case core.TransportFailed, core.TransportClosed:
		return ClosePeer
	default:
		return NoAction
	}
}
