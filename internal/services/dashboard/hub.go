package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// Message types on /ws.
const (
	MessageInitial = "initial"
	MessageUpdate  = "update"
	MessagePing    = "ping"
	MessageRefresh = "refresh"
)

// Message is a server to client frame.
type Message struct {
	Type      string    `json:"type"`
	Data      *Snapshot `json:"data,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
}

type clientMessage struct {
	Type string `json:"type"`
}

type jsonConn interface {
	WriteJSON(v any) error
	Close() error
}

var errPeerClosed = errors.New("websocket peer closed")

// peer serialises writes to one connection. A failed write closes it.
type peer struct {
	mu   sync.Mutex
	conn jsonConn
	dead bool
}

func (p *peer) send(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead {
		return errPeerClosed
	}
	if err := p.conn.WriteJSON(v); err != nil {
		p.dead = true
		_ = p.conn.Close()
		return err
	}
	return nil
}

func (p *peer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dead {
		p.dead = true
		_ = p.conn.Close()
	}
}

type hub struct {
	mu    sync.Mutex
	peers map[*peer]struct{}
}

func newHub() *hub {
	return &hub{peers: map[*peer]struct{}{}}
}

func (h *hub) add(conn jsonConn) *peer {
	p := &peer{conn: conn}
	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()
	return p
}

func (h *hub) remove(p *peer) {
	h.mu.Lock()
	delete(h.peers, p)
	h.mu.Unlock()
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *hub) snapshot() []*peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		out = append(out, p)
	}
	return out
}

// broadcast sends v to every peer and drops the ones that fail. It returns
// the number of successful sends.
func (h *hub) broadcast(v any) int {
	sent := 0
	for _, p := range h.snapshot() {
		if err := p.send(v); err != nil {
			h.remove(p)
			continue
		}
		sent++
	}
	return sent
}

func (h *hub) closeAll() {
	for _, p := range h.snapshot() {
		p.close()
	}
}

// broadcast polls every tick while clients are connected and pushes an
// update only when the snapshot's fingerprint moved. Host stats and Redis
// INFO are refreshed every tenth tick.
func (s *Server) broadcast(ctx context.Context) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	var (
		last      string
		cycle     int
		system    SystemStats
		redisFull RedisSummary
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if s.hub.len() == 0 {
			last, cycle = "", 0
			continue
		}
		full := cycle%10 == 0
		cycle++
		if full {
			system = s.sampleSystem(ctx)
		}
		snap := s.collect(ctx, system, full)
		if full {
			redisFull = snap.Status.Redis
		} else if snap.Status.Redis.Connected && redisFull.Connected {
			keys := snap.Status.Redis.TotalKeys
			snap.Status.Redis = redisFull
			snap.Status.Redis.TotalKeys = keys
		}
		fp := fingerprint(snap)
		if fp == last {
			continue
		}
		last = fp
		s.hub.broadcast(Message{Type: MessageUpdate, Data: &snap, Timestamp: s.timestamp()})
	}
}

// serveWS sends the initial snapshot, answers refresh requests and pings
// after IdlePing of silence.
func (s *Server) serveWS(c *websocket.Conn) {
	p := s.hub.add(c)
	defer s.hub.remove(p)
	s.logger.Info().Int("clients", s.hub.len()).Msg("websocket connected")
	defer s.logger.Info().Msg("websocket disconnected")

	ctx := s.ctx
	snap := s.collect(ctx, s.sampleSystem(ctx), true)
	if err := p.send(Message{Type: MessageInitial, Data: &snap, Timestamp: s.timestamp()}); err != nil {
		return
	}

	inbound := make(chan clientMessage)
	go func() {
		defer close(inbound)
		for {
			var msg clientMessage
			if err := c.ReadJSON(&msg); err != nil {
				return
			}
			inbound <- msg
		}
	}()

	idle := time.NewTimer(s.idlePing)
	defer idle.Stop()
	for {
		select {
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			if msg.Type == MessageRefresh {
				snap := s.collect(ctx, s.sampleSystem(ctx), true)
				_ = p.send(Message{Type: MessageUpdate, Data: &snap, Timestamp: s.timestamp()})
			}
			idle.Reset(s.idlePing)
		case <-idle.C:
			_ = p.send(Message{Type: MessagePing})
			idle.Reset(s.idlePing)
		}
	}
}

// Snapshot is everything the dashboard page shows.
type Snapshot struct {
	Status  StatusView  `json:"status"`
	Servers ServersView `json:"servers"`
	Goals   GoalsView   `json:"goals"`
	Logs    LogsView    `json:"logs"`
}

// ServersView wraps the server list.
type ServersView struct {
	Servers []ServerView `json:"servers"`
}

// GoalsView wraps the goal counts.
type GoalsView struct {
	Summary GoalsSummary `json:"summary"`
	Error   string       `json:"error,omitempty"`
}

func (s *Server) collect(ctx context.Context, system SystemStats, fullRedis bool) Snapshot {
	running := s.runningByKind(ctx)
	snap := Snapshot{
		Status: StatusView{
			Servers: s.counts(running),
			Redis:   s.redisSummary(ctx, fullRedis),
			System:  system,
		},
		Servers: ServersView{Servers: s.serverViews(running)},
		Logs:    s.allLogs(snapshotLines),
	}
	sum, err := s.goalsSummary(ctx)
	snap.Goals.Summary = sum
	if err != nil {
		snap.Goals.Error = err.Error()
	}
	return snap
}

// fingerprint reduces a snapshot to the parts whose change is worth a push:
// counts, Redis reachability and key count, host stats at one decimal,
// server state without its ticking uptime and CPU, goals and logs.
func fingerprint(s Snapshot) string {
	servers := make([]ServerView, len(s.Servers.Servers))
	copy(servers, s.Servers.Servers)
	for i := range servers {
		servers[i].Details.Uptime = 0
		servers[i].Details.CPUPercent = 0
	}
	reduced := struct {
		Counts    ServerCounts
		Connected bool
		Keys      int64
		System    SystemStats
		Servers   []ServerView
		Goals     GoalsView
		Logs      LogsView
	}{
		Counts:    s.Status.Servers,
		Connected: s.Status.Redis.Connected,
		Keys:      s.Status.Redis.TotalKeys,
		System:    s.Status.System.rounded(),
		Servers:   servers,
		Goals:     s.Goals,
		Logs:      s.Logs,
	}
	b, _ := json.Marshal(reduced)
	return string(b)
}
