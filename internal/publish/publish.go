// Package publish forwards detection events to a websocket hub, so
// other components (home automation, a dashboard) can react to the wake
// word without running audio themselves.
package publish

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"earshot/internal/listener"
)

// Event is the wire form of one detection.
type Event struct {
	From   string    `json:"from"`
	Kind   string    `json:"kind"`
	Phrase string    `json:"phrase"`
	Score  float64   `json:"score"`
	At     time.Time `json:"at"`
	Seq    int       `json:"seq"`
}

type Publisher struct {
	conn *websocket.Conn
	from string
}

// Dial connects to the hub. from identifies this node in published
// events.
func Dial(wsURL, from string) (*Publisher, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}

	slog.Info("connected to hub", "url", wsURL)

	return &Publisher{conn: conn, from: from}, nil
}

// Publish sends one detection to the hub.
func (p *Publisher) Publish(d listener.Detection) error {
	data, err := json.Marshal(Event{
		From:   p.from,
		Kind:   "wakeword.detected",
		Phrase: d.Phrase,
		Score:  d.Score,
		At:     d.At,
		Seq:    d.Seq,
	})
	if err != nil {
		return err
	}

	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *Publisher) Close() error {
	return p.conn.Close()
}
