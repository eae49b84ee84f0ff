/*Package livesink fans manual-mode sample chunks out to websocket clients.

The hardware can produce chunks far faster than a display needs them, so
forwarding is throttled with a token bucket.  Chunks arriving while the
bucket is empty are dropped, not queued; a live display wants the newest
data, not a backlog.
*/
package livesink

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.jpl.nasa.gov/bdube/daqsync/daq"
)

// Frame is one chunk as sent over the wire
type Frame struct {
	// Channels names the columns of Data in order
	Channels []string `json:"channels"`

	// Rate is the per-channel sample rate in Hz
	Rate float64 `json:"rate"`

	// Data is row-major, samples by channels
	Data [][]float32 `json:"data"`
}

// Broadcaster relays chunks to every connected websocket client.  It
// satisfies the engine's live sink interface
type Broadcaster struct {
	upgrader websocket.Upgrader
	limiter  *rate.Limiter

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewBroadcaster returns a Broadcaster forwarding at most maxHz frames per
// second
func NewBroadcaster(maxHz float64) *Broadcaster {
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		limiter: rate.NewLimiter(rate.Limit(maxHz), 1),
		conns:   map[*websocket.Conn]struct{}{},
	}
}

// SetMaxHz changes the frame-rate cap for all clients
func (b *Broadcaster) SetMaxHz(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("frame rate cap must be positive, got %d", hz)
	}
	b.limiter.SetLimit(rate.Limit(hz))
	return nil
}

// Clients returns the number of connected clients
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Handler upgrades the request to a websocket and registers the client for
// frames until it disconnects
func (b *Broadcaster) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade failed: %v", err)
			return
		}
		b.mu.Lock()
		b.conns[conn] = struct{}{}
		b.mu.Unlock()
		// clients do not send; the read loop only notices disconnects
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					b.drop(conn)
					return
				}
			}
		}()
	}
}

func (b *Broadcaster) drop(conn *websocket.Conn) {
	b.mu.Lock()
	delete(b.conns, conn)
	b.mu.Unlock()
	conn.Close()
}

// Forward relays one chunk to every client, subject to the rate limit.
// data is row-major samples by channels and is not retained past the call
func (b *Broadcaster) Forward(channels []daq.Channel, rateHz float64, data []float32) {
	if !b.limiter.Allow() {
		return
	}
	b.mu.Lock()
	if len(b.conns) == 0 {
		b.mu.Unlock()
		return
	}
	conns := make([]*websocket.Conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	nch := len(channels)
	names := make([]string, nch)
	for i, c := range channels {
		names[i] = c.Name
	}
	rows := make([][]float32, len(data)/nch)
	for i := range rows {
		rows[i] = data[i*nch : (i+1)*nch]
	}
	payload, err := json.Marshal(Frame{Channels: names, Rate: rateHz, Data: rows})
	if err != nil {
		log.Printf("live frame encode failed: %v", err)
		return
	}
	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			b.drop(c)
		}
	}
}
