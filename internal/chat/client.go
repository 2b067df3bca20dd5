package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait   = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod = (pongWait * 9) / 10 // Must be less than pongWait.
)

// Client is a middleman between the websocket connection and the Session.
// It is the Handle the presence registry holds for this connection.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte // Buffered channel of outbound frames.
	session *Session
	maxSize int64
	log     *zap.Logger

	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn, bufferSize int, maxMessageSize int64, log *zap.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, bufferSize),
		maxSize: maxMessageSize,
		log:     log.With(zap.String("handle", id)),
	}
}

func (c *Client) ID() string { return c.id }

// Deliver queues a deliver frame. It never blocks: a slow consumer loses
// the event instead of stalling the fan-out.
func (c *Client) Deliver(evt DeliveryEvent) error {
	frame, err := encodeFrame(EventDeliver, NewDeliverPayload(evt))
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrDelivery, err)
	}
	return c.enqueue(frame)
}

func (c *Client) enqueue(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: connection closed", ErrDelivery)
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return fmt.Errorf("%w: outbound queue full", ErrDelivery)
	}
}

// shutdown closes the outbound queue so the writePump sends a close frame.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump pumps frames from the websocket connection into the Session.
// It returns when the connection dies; cleanup happens here.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		// Cleanup: unbind from presence before the queue closes
		c.session.Close()
		c.shutdown()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Info("connection error", zap.Error(err))
			}
			return
		}
		c.handleFrame(ctx, message)
	}
}

func (c *Client) handleFrame(ctx context.Context, message []byte) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.replyError("bad_request", "malformed frame")
		return
	}

	switch env.Type {
	case EventIdentify:
		var p IdentifyPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.replyError("bad_request", "malformed identify payload")
			return
		}
		if err := c.session.Identify(p.UserID); err != nil {
			c.replyError(ErrorKind(err), err.Error())
			return
		}
		c.reply(EventIdentified, p)

	case EventSend:
		var p SendPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.replyError("bad_request", "malformed send payload")
			return
		}
		// PIPELINE: Browser -> ReadPump -> Ingest -> Dispatch
		if _, err := c.session.Send(ctx, p); err != nil {
			c.log.Debug("send rejected", zap.Error(err))
			c.replyError(ErrorKind(err), err.Error())
		}

	default:
		c.replyError("bad_request", fmt.Sprintf("unknown event %q", env.Type))
	}
}

func (c *Client) reply(eventType string, payload any) {
	frame, err := encodeFrame(eventType, payload)
	if err != nil {
		c.log.Error("encode reply", zap.Error(err))
		return
	}
	if err := c.enqueue(frame); err != nil {
		c.log.Warn("reply dropped", zap.String("type", eventType), zap.Error(err))
	}
}

func (c *Client) replyError(kind, msg string) {
	c.reply(EventError, ErrorPayload{Kind: kind, Message: msg})
}

// WritePump pumps frames from the outbound queue to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			// Set a write deadline so we don't hang forever
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The ReadPump closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One frame per event: clients parse each message as a single envelope
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			// Heartbeat: Send a Ping every 54 seconds to keep connection alive
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
