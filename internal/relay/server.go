// Package relay is a small chat relay speaking the same protocol as the
// client: members join named chats, get told whom to call, and have their
// descriptions and candidates forwarded to one another.
package relay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/VoiceChat/internal/adapters/signal"
	"github.com/dkeye/VoiceChat/internal/core"
	"github.com/dkeye/VoiceChat/internal/domain"
)

const (
	defaultWriteWait  = 5 * time.Second
	defaultPingPeriod = 54 * time.Second
	defaultReadLimit  = 64 * 1024
	defaultSendBuffer = 64
)

type Options struct {
	Codec      signal.Codec
	WriteWait  time.Duration
	PingPeriod time.Duration
	ReadLimit  int64
	SendBuffer int
}

type Server struct {
	opts     Options
	rooms    *Rooms
	upgrader websocket.Upgrader
}

func NewServer(opts Options) *Server {
	if opts.Codec == nil {
		opts.Codec = signal.JSONCodec{}
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = defaultWriteWait
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = defaultPingPeriod
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	return &Server{
		opts:  opts,
		rooms: NewRooms(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Rooms() *Rooms { return s.rooms }

// Router serves the hub at /ConnectionHub and a room listing at /api/rooms.
func (s *Server) Router(ctx context.Context, mode string) *gin.Engine {
	if mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	if mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/ConnectionHub", func(c *gin.Context) { s.HandleSignal(ctx, c) })
	r.GET("/api/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": s.rooms.List()})
	})
	r.GET("/api/rooms/:name", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    c.Param("name"),
			"members": s.rooms.Members(domain.ChatName(c.Param("name"))),
		})
	})
	return r
}

// HandleSignal upgrades the request and serves the member until either side
// goes away.
func (s *Server) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "relay").Msg("ws upgrade")
		return
	}
	m := newMember(SessionID(uuid.NewString()), ws, s.opts.SendBuffer)
	logger := log.With().Str("module", "relay").Str("sid", string(m.id)).Logger()
	logger.Info().Str("remote", c.Request.RemoteAddr).Str("client", c.GetHeader("X-Client-Id")).Msg("member connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg conc.WaitGroup
	wg.Go(func() {
		defer cancel()
		s.writePump(ctx, m, logger)
	})
	wg.Go(func() {
		defer cancel()
		s.readPump(m, logger)
	})
	<-ctx.Done()
	m.Close()
	wg.Wait()

	for chat := range m.chats {
		s.leave(m, chat)
	}
	logger.Info().Msg("member disconnected")
}

func (s *Server) writePump(ctx context.Context, m *member, logger zerolog.Logger) {
	ticker := time.NewTicker(s.opts.PingPeriod)
	defer ticker.Stop()

	frameType := s.opts.Codec.FrameType()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-m.send:
			if !ok {
				return
			}
			if err := m.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait)); err != nil {
				logger.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := m.conn.WriteMessage(frameType, data); err != nil {
				logger.Debug().Err(err).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := m.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) readPump(m *member, logger zerolog.Logger) {
	m.conn.SetReadLimit(s.opts.ReadLimit)
	for {
		_, data, err := m.conn.ReadMessage()
		if err != nil {
			logger.Debug().Err(err).Msg("readPump closing")
			return
		}
		event, args, err := s.opts.Codec.Decode(data)
		if err != nil {
			logger.Warn().Err(err).Msg("bad member message")
			continue
		}
		if err := s.handle(m, event, args); err != nil {
			logger.Warn().Err(err).Str("event", event).Msg("rejected member message")
		}
	}
}

var errBadArgs = errors.New("bad arguments")

func (s *Server) handle(m *member, event string, args core.Args) error {
	var chat domain.ChatName
	if err := args.Decode(0, &chat); err != nil {
		return errors.Join(errBadArgs, err)
	}
	if err := domain.ValidateChatName(chat); err != nil {
		return err
	}

	switch event {
	case core.EventJoinChat:
		s.join(m, chat)
	case core.EventLeaveChat:
		s.leave(m, chat)
	case core.EventRelaySessionDescription:
		var (
			peer SessionID
			desc domain.SessionDescription
		)
		if err := errors.Join(args.Decode(1, &peer), args.Decode(2, &desc)); err != nil {
			return errors.Join(errBadArgs, err)
		}
		if err := desc.Validate(); err != nil {
			return err
		}
		s.forward(m, chat, peer, core.EventSessionDescription, desc)
	case core.EventRelayIceCandidate:
		var (
			peer SessionID
			cand domain.Candidate
		)
		if err := errors.Join(args.Decode(1, &peer), args.Decode(2, &cand)); err != nil {
			return errors.Join(errBadArgs, err)
		}
		s.forward(m, chat, peer, core.EventIceCandidate, cand)
	default:
		return errors.New("unknown event " + event)
	}
	return nil
}

// join tells everybody already in chat to expect m, and tells m to call
// each of them.
func (s *Server) join(m *member, chat domain.ChatName) {
	others, ok := s.rooms.Join(chat, m)
	if !ok {
		log.Debug().Str("module", "relay").Str("sid", string(m.id)).Str("chat", string(chat)).Msg("already in chat")
		return
	}
	m.chats[chat] = struct{}{}
	log.Info().Str("module", "relay").Str("sid", string(m.id)).Str("chat", string(chat)).Int("others", len(others)).Msg("joined chat")
	for _, o := range others {
		s.send(o, core.EventAddToCall, m.id, false)
		s.send(m, core.EventAddToCall, o.id, true)
	}
}

func (s *Server) leave(m *member, chat domain.ChatName) {
	others, ok := s.rooms.Leave(chat, m.id)
	delete(m.chats, chat)
	if !ok {
		return
	}
	log.Info().Str("module", "relay").Str("sid", string(m.id)).Str("chat", string(chat)).Msg("left chat")
	for _, o := range others {
		s.send(o, core.EventRemoveFromCall, m.id)
		s.send(m, core.EventRemoveFromCall, o.id)
	}
}

func (s *Server) forward(from *member, chat domain.ChatName, to SessionID, event string, payload any) {
	target, ok := s.rooms.Member(chat, from.id, to)
	if !ok {
		log.Debug().Str("module", "relay").Str("sid", string(from.id)).Str("peer", string(to)).Str("event", event).Msg("no such peer in chat")
		return
	}
	s.send(target, event, from.id, payload)
}

// send drops a member whose queue is full; its read pump then cleans up.
func (s *Server) send(to *member, event string, args ...any) {
	data, err := s.opts.Codec.Encode(event, args)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Str("event", event).Msg("encode")
		return
	}
	switch err := to.TrySend(data); {
	case errors.Is(err, ErrBackpressure):
		log.Warn().Str("module", "relay").Str("sid", string(to.id)).Msg("member too slow, kicking")
		to.Close()
	case err != nil:
		log.Debug().Err(err).Str("module", "relay").Str("sid", string(to.id)).Msg("send to departed member")
	}
}
