package network

import (
	"sync"
	"time"

	"squash/domain"
	"squash/events"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/time/rate"
)

const (
	outboxSize   = 256
	pingInterval = 30 * time.Second
)

// Client is one connected player. Its outbox is written from the engine loop
// and drained by the write pump, so a slow socket loses frames instead of
// stalling the game.
type Client struct {
	id      string
	conn    Connection
	limiter *rate.Limiter
	log     zerolog.Logger

	outbox    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(id string, conn Connection, log zerolog.Logger) *Client {
	return &Client{
		id:      id,
		conn:    conn,
		limiter: rate.NewLimiter(30, 60),
		log:     log.With().Str("player", id).Logger(),
		outbox:  make(chan []byte, outboxSize),
		done:    make(chan struct{}),
	}
}

func (c *Client) Id() string {
	return c.id
}

// Send queues data without blocking and reports whether it was queued.
func (c *Client) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.outbox <- data:
		return true
	default:
		c.log.Debug().Msg("outbox full, dropping frame")
		return false
	}
}

func (c *Client) SendMessage(msg events.Message) {
	data, err := msgpack.Marshal(&msg)
	if err != nil {
		c.log.Error().Err(err).Str("type", msg.Type).Msg("encode failed")
		return
	}
	c.Send(data)
}

func (c *Client) SendError(err error) {
	c.SendMessage(events.Message{Type: "error", Data: map[string]string{"code": domain.Code(err)}})
}

func (c *Client) Close(errCode string) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close(errCode)
	})
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

// ReadPump hands every inbound frame to handle until the connection fails.
// Frames over the rate limit are dropped.
func (c *Client) ReadPump(handle func(c *Client, data []byte)) {
	for {
		data, err := c.conn.Read()
		if err != nil {
			c.log.Debug().Err(err).Msg("read failed")
			return
		}
		if !c.limiter.Allow() {
			continue
		}
		handle(c, data)
	}
}

// WritePump drains the outbox and keeps the connection alive with pings.
func (c *Client) WritePump(ping <-chan time.Time) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.outbox:
			if err := c.conn.Write(data); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				c.Close("write-failed")
				return
			}
		case <-ping:
			if err := c.conn.Ping(); err != nil {
				c.Close("ping-failed")
				return
			}
		}
	}
}
