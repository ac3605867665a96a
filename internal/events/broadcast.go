package events

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Broadcaster pushes every recorded event to all connected websocket
// subscribers. Slow or dead connections are dropped, never waited on.
type Broadcaster struct {
	mu       sync.Mutex
	upgrader websocket.Upgrader
	conns    map[*websocket.Conn]struct{}
	log      zerolog.Logger
}

// NewBroadcaster builds an empty broadcaster.
func NewBroadcaster(log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[*websocket.Conn]struct{}),
		log:   log,
	}
}

// ServeHTTP upgrades the request and registers the connection.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	b.mu.Lock()
	b.conns[conn] = struct{}{}
	b.mu.Unlock()

	// Drain client frames so pings/closes are processed; unregister on error.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				b.drop(conn)
				return
			}
		}
	}()
}

// Record sends the event to every subscriber.
func (b *Broadcaster) Record(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.conns {
		if err := conn.WriteJSON(ev); err != nil {
			b.log.Debug().Err(err).Msg("drop websocket subscriber")
			conn.Close()
			delete(b.conns, conn)
		}
	}
}

// Close disconnects every subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.conns {
		conn.Close()
		delete(b.conns, conn)
	}
}

func (b *Broadcaster) drop(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	conn.Close()
	delete(b.conns, conn)
}
