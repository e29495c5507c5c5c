// Package rtc implements the negotiation capability on top of pion/webrtc.
package rtc

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceChat/internal/core"
)

type Config struct {
	ICEServers []webrtc.ICEServer
	// LegacyDTLSSRTP mirrors the old browser constraint. Pion always
	// negotiates DTLS-SRTP, so it only changes logging.
	LegacyDTLSSRTP bool
	// IncludeLoopback gathers 127.0.0.1 candidates too.
	IncludeLoopback bool
}

type Factory struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

var _ core.ConnectionFactory = (*Factory)(nil)

func NewFactory(cfg Config) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	se := webrtc.SettingEngine{LoggerFactory: LoggerFactory{}}
	se.SetIncludeLoopbackCandidate(cfg.IncludeLoopback)
	if cfg.LegacyDTLSSRTP {
		log.Debug().Str("module", "rtc").Msg("DtlsSrtpKeyAgreement requested; DTLS-SRTP is always on")
	}
	return &Factory{
		api: webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se)),
		cfg: webrtc.Configuration{ICEServers: cfg.ICEServers},
	}, nil
}

func (f *Factory) NewConnection() (core.MediaConnection, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return newConnection(pc, uuid.NewString()), nil
}
