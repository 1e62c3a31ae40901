package signal

import (
	"time"

	"github.com/gorilla/websocket"
)

func (c *Channel) writePump() {
	var tick <-chan time.Time
	if c.opts.PingPeriod > 0 {
		ticker := time.NewTicker(c.opts.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer func() {
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(c.writeDeadline()); err != nil {
				c.log.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				c.log.Debug().Msg("writePump channel closed")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Error().Err(err).Msg("writePump write error")
				return
			}
		case <-tick:
			if err := c.conn.SetWriteDeadline(c.writeDeadline()); err != nil {
				c.log.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Error().Err(err).Msg("writePump ping error")
				return
			}
		}
	}
}

func (c *Channel) readPump() {
	defer c.shutdown("connection lost")

	if c.opts.ReadLimit > 0 {
		c.conn.SetReadLimit(c.opts.ReadLimit)
	}
	c.extendReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Error().Err(err).Msg("readPump read error")
			} else {
				c.log.Debug().Err(err).Msg("readPump done")
			}
			return
		}
		c.extendReadDeadline()
		c.dispatch(data)
	}
}

func (c *Channel) writeDeadline() time.Time {
	if c.opts.WriteWait <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.opts.WriteWait)
}

func (c *Channel) extendReadDeadline() {
	if c.opts.PongWait <= 0 {
		return
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
}
