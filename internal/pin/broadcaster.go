package pin

import (
	"log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// Live feed delivery limits.
const (
	// DefaultSendBuffer is how many events may queue for one client before it
	// is dropped as too slow.
	DefaultSendBuffer = 32
	// DefaultWriteWait bounds a single write to a client.
	DefaultWriteWait = 10 * time.Second
)

// subscriber owns one connection. Only its writer goroutine writes to conn.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// Broadcaster fans newly created pins out to connected WebSocket clients.
// Broadcast never blocks on a client: events are queued per subscriber and a
// client whose queue is full is disconnected.
type Broadcaster struct {
	mu         sync.Mutex
	subs       map[*websocket.Conn]*subscriber
	bufferSize int
	writeWait  time.Duration
}

// NewBroadcaster creates a broadcaster with the default limits.
func NewBroadcaster() *Broadcaster {
	return NewBroadcasterWithLimits(DefaultSendBuffer, DefaultWriteWait)
}

// NewBroadcasterWithLimits creates a broadcaster queueing at most bufferSize
// events per client and giving each write writeWait to finish.
func NewBroadcasterWithLimits(bufferSize int, writeWait time.Duration) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = DefaultSendBuffer
	}
	if writeWait <= 0 {
		writeWait = DefaultWriteWait
	}
	return &Broadcaster{
		subs:       make(map[*websocket.Conn]*subscriber),
		bufferSize: bufferSize,
		writeWait:  writeWait,
	}
}

// Subscribe registers a WebSocket connection for pin events and starts its writer.
func (b *Broadcaster) Subscribe(conn *websocket.Conn) {
	s := &subscriber{
		conn: conn,
		send: make(chan []byte, b.bufferSize),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[conn] = s
	b.mu.Unlock()

	go b.writeLoop(s)
}

// Unsubscribe removes a WebSocket connection and stops its writer.
func (b *Broadcaster) Unsubscribe(conn *websocket.Conn) {
	b.mu.Lock()
	s, ok := b.subs[conn]
	delete(b.subs, conn)
	b.mu.Unlock()

	if ok {
		s.stop()
	}
}

// Broadcast queues the pin for every subscriber.
func (b *Broadcaster) Broadcast(p *Pin) {
	data, err := json.Marshal(p)
	if err != nil {
		slog.Error("failed to marshal pin event", "error", err)
		return
	}

	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.send <- data:
		default:
			slog.Warn("live feed client too slow, disconnecting", "pin_id", p.ID, "queued", b.bufferSize)
			b.Unsubscribe(s.conn)
		}
	}
}

// ConnectionCount returns the number of active subscribers.
func (b *Broadcaster) ConnectionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) writeLoop(s *subscriber) {
	for {
		select {
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(b.writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Warn("failed to send pin to websocket client", "error", err)
				b.Unsubscribe(s.conn)
				return
			}
		case <-s.done:
			return
		}
	}
}
