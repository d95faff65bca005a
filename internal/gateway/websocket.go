package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"arena-shooter/internal/match"

	"github.com/gorilla/websocket"
)

// upgrader: permissive origin check since
// spectator viewing has no session state worth protecting, buffered at a
// modest size for the snapshot payload.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1 << 16,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub is the spectator WebSocket fan-out on the "shooter" channel: every
// tick's snapshot plus one-shot shot/hit/matchEnd/lobbyOpen events,
// a register/unregister/broadcast
// select loop.
type Hub struct {
	mu      sync.Mutex
	clients map[*hubClient]struct{}

	register   chan *hubClient
	unregister chan *hubClient
	broadcast  chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*hubClient]struct{}),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		broadcast:  make(chan []byte, 64),
	}
}

// Run drains the register/unregister/broadcast channels until ctx-less
// shutdown; call it once in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			UpdateWSConnections(len(h.clients))
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			UpdateWSConnections(len(h.clients))
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func (h *Hub) publish(event string, data interface{}) {
	raw, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		log.Printf("gateway: websocket envelope marshal failed: %v", err)
		return
	}
	select {
	case h.broadcast <- raw:
	default:
		log.Printf("gateway: websocket broadcast queue full, dropping %s", event)
	}
}

// SnapshotSink adapts a Hub into the match.EventSink the lifecycle
// controller forwards every shot/hit/matchEnd/lobbyOpen event to.
type SnapshotSink struct {
	hub *Hub
}

func NewSnapshotSink(hub *Hub) *SnapshotSink {
	return &SnapshotSink{hub: hub}
}

func (s *SnapshotSink) Publish(evt match.Event) {
	switch evt.Type {
	case match.EventShot:
		s.hub.publish("shot", evt.Shot)
	case match.EventHit:
		s.hub.publish("hit", evt.Hit)
	case match.EventMatchEnd:
		s.hub.publish("matchEnd", evt.MatchEnd)
	case match.EventLobbyOpen:
		s.hub.publish("lobbyOpen", evt.LobbyOpen)
	}
}

// SnapshotSource is the narrow slice of lifecycle.Controller the hub's
// snapshot pump needs: whichever engine is currently live, if any.
type SnapshotSource interface {
	CurrentEngine() *match.Engine
}

// PumpSnapshots polls the controller's current engine at tick cadence and
// broadcasts a rounded snapshot, since Engine exposes snapshots by pull
// (GetSnapshot) rather than pushing them through EventSink. Runs until stop
// is closed; call in its own goroutine alongside Run.
func (h *Hub) PumpSnapshots(src SnapshotSource, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e := src.CurrentEngine()
			if e == nil {
				continue
			}
			h.publish("snapshot", roundSnapshot(e.GetSnapshot()))
		}
	}
}

// ServeHTTP upgrades a spectator connection and pumps broadcast messages to
// it; spectators never send meaningful frames, so reads are only drained to
// detect disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &hubClient{conn: conn, send: make(chan []byte, 32)}
	h.register <- client

	go func() {
		defer func() {
			h.unregister <- client
			conn.Close()
		}()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for msg := range client.send {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
