package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// serve runs both pumps of one connection and returns when either ends.
func (c *Client) serve(ctx context.Context, conn *wsConn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg conc.WaitGroup
	wg.Go(func() {
		defer cancel()
		c.writePump(ctx, conn)
	})
	wg.Go(func() {
		defer cancel()
		c.readPump(conn)
	})

	<-ctx.Done()
	conn.Close()
	wg.Wait()
}

func (c *Client) writePump(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()

	frameType := c.opts.Codec.FrameType()
	for {
		select {
		case <-ctx.Done():
			_ = conn.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteWait))
			return
		case data, ok := <-conn.send:
			if !ok {
				return
			}
			if err := conn.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := conn.ws.WriteMessage(frameType, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := conn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

func (c *Client) readPump(conn *wsConn) {
	pongWait := c.opts.PingPeriod * 10 / 9
	conn.ws.SetReadLimit(c.opts.ReadLimit)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Msg("readPump read error")
			} else {
				log.Debug().Err(err).Str("module", "signal").Msg("readPump closing")
			}
			return
		}
		// Any traffic proves the relay is alive.
		_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))

		event, args, err := c.opts.Codec.Decode(data)
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad relay message")
			continue
		}
		c.dispatch(event, args)
	}
}
