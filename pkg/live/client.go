package live

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fasthttp/websocket"

	"collabchat/pkg/logger"
	"collabchat/pkg/messages"
	"collabchat/pkg/models"
	"collabchat/pkg/telemetry"
	"collabchat/pkg/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one live websocket connection for one participant.
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	participantID string
	connID        string

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// NewClient wraps an upgraded connection. Serve must be called to start
// the pumps.
func (h *Hub) NewClient(conn *websocket.Conn, participantID string) *Client {
	return &Client{
		hub:           h,
		conn:          conn,
		participantID: participantID,
		connID:        utils.GenConnID(),
		send:          make(chan []byte, h.opts.SendBuffer),
	}
}

// Serve registers the client and runs the write pump in the background
// and the read pump on the calling goroutine, returning on disconnect.
func (c *Client) Serve() {
	c.hub.register(c)
	go c.writePump()
	c.readPump()
}

// enqueue hands a frame to the write pump. The hub fans out from a map
// snapshot, so a client here may already have been superseded; the
// closed check under the client mutex makes that a silent drop instead
// of a send on a closed channel.
func (c *Client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		// slow consumer: drop rather than block the hub
		telemetry.FanoutDropped.Inc()
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.closeSend()
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(64 << 10)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("live_read_error", "participant", c.participantID, "err", err)
			}
			return
		}
		var f models.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			logger.Debug("live_bad_frame", "participant", c.participantID, "err", err)
			continue
		}
		c.dispatch(f)
	}
}

func (c *Client) dispatch(f models.Frame) {
	switch f.Event {
	case models.EvJoin:
		c.hub.Subscribe(c.participantID, f.RoomID)
	case models.EvLeave:
		c.hub.Unsubscribe(c.participantID, f.RoomID)
	case models.EvTyping:
		c.hub.SetTyping(f.RoomID, c.participantID, f.IsTyping)
	case models.EvMarkRead:
		if _, err := messages.MarkRead(f.RoomID, c.participantID, f.MessageIDs); err != nil {
			logger.Debug("live_mark_read_failed", "participant", c.participantID, "room", f.RoomID, "err", err)
		}
	case models.EvPing:
		if data, err := encodeEvent(models.Event{Event: models.EvPong}); err == nil {
			c.enqueue(data)
		}
	default:
		logger.Debug("live_unknown_event", "participant", c.participantID, "event", f.Event)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
