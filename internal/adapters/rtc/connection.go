package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceChat/internal/core"
	"github.com/dkeye/VoiceChat/internal/domain"
)

// LocalTrack is a core.Track that pion can send.
type LocalTrack interface {
	core.Track
	TrackLocal() webrtc.TrackLocal
}

var errNotSendable = errors.New("track cannot be sent")

// Connection wraps one pion PeerConnection as a core.MediaConnection.
type Connection struct {
	pc     *webrtc.PeerConnection
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	closed      bool
	remotes     map[string]*RemoteStream
	onCandidate func(domain.Candidate)
	onRemote    func(core.RemoteMedia)
	onState     func(core.TransportState)
}

var _ core.MediaConnection = (*Connection)(nil)

func newConnection(pc *webrtc.PeerConnection, id string) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		pc:      pc,
		logger:  log.With().Str("module", "rtc").Str("conn", id).Logger(),
		ctx:     ctx,
		cancel:  cancel,
		remotes: make(map[string]*RemoteStream),
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		// nil marks the end of gathering; the relay has no message for it.
		if cand == nil {
			return
		}
		if f := c.candidateHandler(); f != nil {
			f(fromPionCandidate(cand.ToJSON()))
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		c.mu.Lock()
		f := c.onState
		c.mu.Unlock()
		if f != nil {
			f(fromPionState(s))
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.attachTrack(track, receiver)
	})
	return c
}

func (c *Connection) candidateHandler() func(domain.Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onCandidate
}

func (c *Connection) CreateOffer() (domain.SessionDescription, error) {
	if len(c.pc.GetTransceivers()) == 0 {
		// Nothing to send; still ask for the remote side's audio.
		if _, err := c.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio,
			webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
			return domain.SessionDescription{}, fmt.Errorf("add recvonly transceiver: %w", err)
		}
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return fromPionDescription(offer), nil
}

func (c *Connection) CreateAnswer() (domain.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return fromPionDescription(answer), nil
}

func (c *Connection) SetLocalDescription(d domain.SessionDescription) error {
	return c.pc.SetLocalDescription(toPionDescription(d))
}

func (c *Connection) SetRemoteDescription(d domain.SessionDescription) error {
	return c.pc.SetRemoteDescription(toPionDescription(d))
}

func (c *Connection) AddICECandidate(cand domain.Candidate) error {
	if cand.Candidate == "" {
		return nil
	}
	return c.pc.AddICECandidate(toPionCandidate(cand))
}

// AddLocalStream adds every track of s. Tracks must implement LocalTrack.
func (c *Connection) AddLocalStream(s core.LocalStream) error {
	for _, t := range s.Tracks() {
		lt, ok := t.(LocalTrack)
		if !ok {
			return fmt.Errorf("%w: %s", errNotSendable, t.ID())
		}
		sender, err := c.pc.AddTrack(lt.TrackLocal())
		if err != nil {
			return fmt.Errorf("add track %s: %w", t.ID(), err)
		}
		go c.drainRTCP(sender)
	}
	return nil
}

// drainRTCP keeps reading receiver reports so pion's interceptors run.
func (c *Connection) drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (c *Connection) attachTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	stream, ok := c.remotes[track.StreamID()]
	if !ok {
		stream = newRemoteStream(c.ctx, track.StreamID(), c.logger)
		c.remotes[track.StreamID()] = stream
	}
	notify := c.onRemote
	c.mu.Unlock()

	stream.addTrack(fromPionKind(track.Kind()), func() (*rtp.Packet, error) {
		pkt, _, err := track.ReadRTP()
		return pkt, err
	})
	if !ok && notify != nil {
		notify(stream)
	}
}

func (c *Connection) OnLocalCandidate(f func(domain.Candidate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCandidate = f
}

func (c *Connection) OnRemoteMedia(f func(core.RemoteMedia)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRemote = f
}

func (c *Connection) OnTransportState(f func(core.TransportState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = f
}

// Close stops every remote pump and closes the peer connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	remotes := c.remotes
	c.remotes = nil
	c.mu.Unlock()

	c.cancel()
	for _, r := range remotes {
		r.Detach()
	}
	if err := c.pc.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close error")
		return err
	}
	c.logger.Info().Msg("closed")
	return nil
}
