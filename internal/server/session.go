package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kdriss/caf/internal/diffengine"
	"github.com/kdriss/caf/internal/repo"
)

// RepoSession holds per-repository dashboard state: the open Repo handle,
// connected WebSocket clients, the broadcast channel fed by the repo's
// watcher, and a small cache of recent diffs so repeated /api/diff requests
// for the same pair of endpoints don't re-walk the object store.
type RepoSession struct {
	id     string
	logger *slog.Logger
	repo   *repo.Repo

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*sync.Mutex

	broadcast chan UpdateMessage
	diffCache *LRUCache[[]*diffengine.Node]

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	clientWg sync.WaitGroup
}

// SessionConfig holds initialization parameters for a RepoSession.
type SessionConfig struct {
	ID        string
	Repo      *repo.Repo
	CacheSize int
	Logger    *slog.Logger
}

// NewRepoSession constructs a RepoSession ready to be started.
func NewRepoSession(cfg SessionConfig) *RepoSession {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &RepoSession{
		id:        cfg.ID,
		logger:    cfg.Logger.With("session", cfg.ID),
		repo:      cfg.Repo,
		clients:   make(map[*websocket.Conn]*sync.Mutex),
		broadcast: make(chan UpdateMessage, broadcastChannelSize),
		diffCache: NewLRUCache[[]*diffengine.Node](cfg.CacheSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Repo returns the session's repository handle.
func (rs *RepoSession) Repo() *repo.Repo { return rs.repo }

// Start launches the broadcast goroutine and a watcher-fed update loop. The
// Repo must already have Watch() running; Start just subscribes to its
// invalidation signal.
func (rs *RepoSession) Start() {
	rs.wg.Add(1)
	go rs.handleBroadcast()

	rs.wg.Add(1)
	go rs.watchLoop()
}

// watchLoop recomputes status and HEAD info every time the repo's watcher
// fires and pushes the result to connected clients.
func (rs *RepoSession) watchLoop() {
	defer rs.wg.Done()
	invalidated := rs.repo.Invalidated()
	for {
		select {
		case <-rs.ctx.Done():
			return
		case _, ok := <-invalidated:
			if !ok {
				return
			}
			rs.pushUpdate()
		}
	}
}

// pushUpdate recomputes status and broadcasts it. Errors are logged and
// swallowed: a transient failure to resolve status shouldn't tear down the
// session.
//
// It also clears diffCache. A request like /api/diff?from=HEAD&to=main
// caches its forest under the literal strings "HEAD" and "main", not the
// commit hashes they resolved to; once a watcher-triggered invalidation
// fires, one of those names may now resolve somewhere else, and a cached
// forest under the old resolution would be silently wrong rather than
// merely stale.
func (rs *RepoSession) pushUpdate() {
	rs.diffCache.Clear()

	status, err := rs.repo.Status()
	if err != nil {
		rs.logger.Error("failed to recompute status", "err", err)
		return
	}
	head, err := buildHeadInfo(rs.repo)
	if err != nil {
		rs.logger.Error("failed to build head info", "err", err)
		return
	}
	rs.broadcastUpdate(UpdateMessage{Status: flattenStatus(status), Head: head})
}

// Close cancels the session context, waits for server-side goroutines, sends
// WebSocket close frames to all clients, then force-closes connections.
func (rs *RepoSession) Close() {
	rs.cancel()
	rs.wg.Wait()

	rs.clientsMu.RLock()
	clients := make([]*websocket.Conn, 0, len(rs.clients))
	for conn := range rs.clients {
		clients = append(clients, conn)
	}
	clientCount := len(clients)
	rs.clientsMu.RUnlock()

	if clientCount > 0 {
		rs.logger.Info("sending close frames to websocket clients", "count", clientCount)
		closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		deadline := time.Now().Add(1 * time.Second)
		for _, conn := range clients {
			_ = conn.WriteControl(websocket.CloseMessage, closeMsg, deadline)
		}
		time.Sleep(500 * time.Millisecond)
	}

	rs.clientsMu.Lock()
	for conn := range rs.clients {
		if err := conn.Close(); err != nil {
			rs.logger.Error("failed to close client connection", "err", err)
		}
	}
	rs.clients = make(map[*websocket.Conn]*sync.Mutex)
	rs.clientsMu.Unlock()

	rs.clientWg.Wait()
}

// handleBroadcast reads from the broadcast channel and sends messages to all
// connected WebSocket clients. Runs until the session context is canceled.
func (rs *RepoSession) handleBroadcast() {
	defer rs.wg.Done()

	for {
		select {
		case <-rs.ctx.Done():
			return
		case message := <-rs.broadcast:
			rs.sendToAllClients(message)
		}
	}
}

// sendToAllClients writes a message to every connected WebSocket client.
// Clients that fail to receive the message are removed.
func (rs *RepoSession) sendToAllClients(message UpdateMessage) {
	var failedClients []*websocket.Conn

	rs.clientsMu.RLock()
	snapshot := make(map[*websocket.Conn]*sync.Mutex, len(rs.clients))
	for conn, mu := range rs.clients {
		snapshot[conn] = mu
	}
	rs.clientsMu.RUnlock()

	for conn, mu := range snapshot {
		mu.Lock()
		err1 := conn.SetWriteDeadline(time.Now().Add(writeWait))
		var err2 error
		if err1 == nil {
			err2 = conn.WriteJSON(message)
		}
		mu.Unlock()

		if err1 != nil || err2 != nil {
			failedClients = append(failedClients, conn)
		}
	}

	if len(failedClients) > 0 {
		rs.clientsMu.Lock()
		for _, conn := range failedClients {
			delete(rs.clients, conn)
			if err := conn.Close(); err != nil {
				rs.logger.Error("failed to close client connection", "err", err)
			}
		}
		remaining := len(rs.clients)
		rs.clientsMu.Unlock()
		rs.logger.Info("removed failed clients", "removed", len(failedClients), "remaining", remaining)
	}
}

// broadcastUpdate queues a message for broadcast. Non-blocking: drops the
// message if the channel is full.
func (rs *RepoSession) broadcastUpdate(message UpdateMessage) {
	select {
	case rs.broadcast <- message:
	default:
		rs.logger.Warn("broadcast channel full, dropping message; clients may be slow")
	}
}

// sendInitialState sends the full repository state to a newly connected client.
func (rs *RepoSession) sendInitialState(conn *websocket.Conn) {
	status, err := rs.repo.Status()
	if err != nil {
		rs.logger.Error("failed to compute status for initial state", "err", err)
		return
	}
	head, err := buildHeadInfo(rs.repo)
	if err != nil {
		rs.logger.Error("failed to build head info for initial state", "err", err)
		return
	}

	message := UpdateMessage{Status: flattenStatus(status), Head: head}

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		rs.logger.Error("failed to set write deadline", "addr", conn.RemoteAddr(), "err", err)
		return
	}
	if err := conn.WriteJSON(message); err != nil {
		rs.logger.Error("failed to send initial state", "addr", conn.RemoteAddr(), "err", err)
		return
	}
	rs.logger.Info("initial state sent", "addr", conn.RemoteAddr())
}

// registerClient adds a WebSocket connection to the session's client map and
// returns the per-connection write mutex.
func (rs *RepoSession) registerClient(conn *websocket.Conn) *sync.Mutex {
	writeMu := &sync.Mutex{}

	rs.clientsMu.Lock()
	rs.clients[conn] = writeMu
	count := len(rs.clients)
	rs.clientsMu.Unlock()

	rs.logger.Info("websocket client registered", "addr", conn.RemoteAddr(), "totalClients", count)
	return writeMu
}

// removeClient removes a WebSocket connection from the session's client map
// and closes it.
func (rs *RepoSession) removeClient(conn *websocket.Conn) {
	rs.clientsMu.Lock()
	defer rs.clientsMu.Unlock()

	if _, ok := rs.clients[conn]; ok {
		delete(rs.clients, conn)
		if err := conn.Close(); err != nil {
			rs.logger.Error("failed to close connection", "addr", conn.RemoteAddr(), "err", err)
		}
		rs.logger.Info("websocket client removed", "totalClients", len(rs.clients))
	}
}

// clientReadPump blocks on reads to detect client disconnect, then closes
// the done channel to signal clientWritePump to stop.
func (rs *RepoSession) clientReadPump(conn *websocket.Conn, done chan struct{}) {
	defer rs.clientWg.Done()
	defer func() {
		if r := recover(); r != nil {
			rs.logger.Warn("recovered panic in clientReadPump", "addr", conn.RemoteAddr(), "panic", r)
		}
		close(done)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				rs.logger.Error("websocket read error", "addr", conn.RemoteAddr(), "err", err)
			}
			return
		}
	}
}

// clientWritePump sends keepalive pings. writeMu serializes writes with broadcasts.
func (rs *RepoSession) clientWritePump(conn *websocket.Conn, done chan struct{}, writeMu *sync.Mutex) {
	defer rs.clientWg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer rs.removeClient(conn)

	for {
		select {
		case <-done:
			rs.logger.Info("websocket client disconnected", "addr", conn.RemoteAddr())
			return

		case <-ticker.C:
			writeMu.Lock()
			err1 := conn.SetWriteDeadline(time.Now().Add(writeWait))
			var err2 error
			if err1 == nil {
				err2 = conn.WriteMessage(websocket.PingMessage, nil)
			}
			writeMu.Unlock()

			if err1 != nil || err2 != nil {
				return
			}
		}
	}
}
