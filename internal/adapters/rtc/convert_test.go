package rtc

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"

	"github.com/dkeye/VoiceChat/internal/core"
	"github.com/dkeye/VoiceChat/internal/domain"
)

func TestDescriptionTypes(t *testing.T) {
	offer := toPionDescription(domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "v=0"})
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)
	assert.Equal(t, "v=0", offer.SDP)

	back := fromPionDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})
	assert.Equal(t, domain.SDPTypeAnswer, back.Type)
}

func TestCandidateKeepsOptionalFields(t *testing.T) {
	idx := uint16(1)
	mid := "0"
	c := domain.Candidate{Candidate: "candidate:1 1 udp 1 127.0.0.1 5000 typ host", SDPMLineIndex: &idx, SDPMid: &mid}

	init := toPionCandidate(c)
	assert.Equal(t, c.Candidate, init.Candidate)
	assert.Equal(t, &idx, init.SDPMLineIndex)
	assert.Equal(t, c, fromPionCandidate(init))

	bare := fromPionCandidate(webrtc.ICECandidateInit{Candidate: "x"})
	assert.Nil(t, bare.SDPMid)
	assert.Nil(t, bare.SDPMLineIndex)
}

func TestTransportStates(t *testing.T) {
	cases := map[webrtc.PeerConnectionState]core.TransportState{
		webrtc.PeerConnectionStateNew:          core.TransportNew,
		webrtc.PeerConnectionStateConnecting:   core.TransportConnecting,
		webrtc.PeerConnectionStateConnected:    core.TransportConnected,
		webrtc.PeerConnectionStateDisconnected: core.TransportDisconnected,
		webrtc.PeerConnectionStateFailed:       core.TransportFailed,
		webrtc.PeerConnectionStateClosed:       core.TransportClosed,
		webrtc.PeerConnectionStateUnknown:      core.TransportNew,
	}
	for in, want := range cases {
		assert.Equal(t, want, fromPionState(in), in.String())
	}
}
