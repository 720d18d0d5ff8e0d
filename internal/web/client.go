package web

import (
	log "log/slog"
	"time"

	"github.com/gorilla/websocket"

	"voxchat/internal/chat"
)

// Client drives a running web front-end over its websocket.
type Client struct {
	conn    *websocket.Conn
	timeout time.Duration
}

// Dial connects to url (ws://host:port/ws). A zero timeout waits forever
// for snapshots.
func Dial(url string, timeout time.Duration) (*Client, error) {
	log.Debug("Dial web front-end", "url", url)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}

	return &Client{conn: conn, timeout: timeout}, nil
}

func (c *Client) Send(cmd chat.Command) error {
	return c.conn.WriteJSON(cmd)
}

// Next blocks until the next snapshot arrives.
func (c *Client) Next() (Snapshot, error) {
	if c.timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	}

	var snap Snapshot
	err := c.conn.ReadJSON(&snap)
	return snap, err
}

// Await reads snapshots until ok accepts one.
func (c *Client) Await(ok func(Snapshot) bool) (Snapshot, error) {
	for {
		snap, err := c.Next()
		if err != nil {
			return Snapshot{}, err
		}
		if ok(snap) {
			return snap, nil
		}
	}
}

func (c *Client) Close() error {
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

func IsClosed(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure)
}
