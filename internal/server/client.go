package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"tcc-gateway/internal/message"
	"tcc-gateway/internal/tcc"
)

// Client speaks the client protocol to a gateway over one TCP connection.
// It is not safe for concurrent use.
type Client struct {
	conn    net.Conn
	codec   *message.Codec
	timeout time.Duration
}

// Dial connects to a gateway at addr
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn, codec: message.NewCodec(tcc.Default()), timeout: timeout}, nil
}

// Do sends req and waits for the response
func (c *Client) Do(req message.Message) (message.Message, error) {
	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
	if _, err := c.conn.Write(c.codec.Encode(req)); err != nil {
		return message.Undefined, fmt.Errorf("send %s: %w", req.Type, err)
	}

	buf := make([]byte, message.Size)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return message.Undefined, fmt.Errorf("read response: %w", err)
	}
	return c.codec.Decode(buf)
}

func (c *Client) Close() error { return c.conn.Close() }
