// Matchgrid memory game sessions
//
// Every game ID owns one grid. Any number of browser tabs may connect to the
// same game; they all see, and drive, the same board.
//
// Features:
// - WebSockets per game ID: /memory/:gameid and /memory/:gameid/ws
// - Boards chosen from presets with /memory?board=name
// - Pointer enter/leave on the grid pauses and resumes the countdown
// - Snapshots hide the identifiers of face-down cards
// - Games auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	"bytes"
	"crypto/rand"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/matchgrid/games/memory"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

const (
	memoryPath = "/memory"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Messages coming from clients
type ClientMessage struct {
	Type  string `json:"type"`            // "start", "restart", "click", "enter", "leave"
	Index *int   `json:"index,omitempty"` // click
}

// SnapshotMessage carries the full visible state of the grid.
type SnapshotMessage struct {
	Type string `json:"type"` // "snapshot"
	memory.Snapshot
}

// RoundEndMessage is the end-of-round notification.
type RoundEndMessage struct {
	Type    string `json:"type"` // "round_end"
	Won     bool   `json:"won"`
	Message string `json:"message"`
}

type Client struct {
	id   string
	conn *websocket.Conn
	send chan any
}

type command struct {
	client *Client
	msg    ClientMessage
}

type Hub struct {
	id    string
	board Board
	grid  *memory.Grid

	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	commands chan command
	changed  chan struct{}
	endings  chan bool
	quit     chan struct{}
	stopOnce sync.Once

	mu         sync.RWMutex
	createdAt  time.Time
	lastActive time.Time
	latest     memory.Snapshot
}

func newHub(gameID string, board Board, opts ...memory.Option) (*Hub, error) {
	now := time.Now()

	h := &Hub{
		id:         gameID,
		board:      board,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		commands:   make(chan command),
		changed:    make(chan struct{}, 1),
		endings:    make(chan bool, 8),
		quit:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}

	grid, err := memory.NewGrid(board.Config, append(opts, memory.WithListener(h))...)
	if err != nil {
		return nil, err
	}

	h.grid = grid
	h.latest = grid.Snapshot()

	return h, nil
}

// GridChanged keeps only the newest snapshot and wakes the run loop. It
// never blocks, since the grid may call it from a timer goroutine.
func (h *Hub) GridChanged(s memory.Snapshot) {
	h.mu.Lock()
	if s.Version > h.latest.Version {
		h.latest = s
	}
	h.mu.Unlock()

	select {
	case h.changed <- struct{}{}:
	default:
	}
}

func (h *Hub) RoundEnded(won bool) {
	select {
	case h.endings <- won:
	default:
		log.Warn().Str("game", h.id).Bool("won", won).Msg("dropped round end notification")
	}
}

func (h *Hub) snapshot() memory.Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.latest
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *Hub) idleSince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.lastActive
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			h.grid.Close()

			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
				_ = c.conn.Close()
			}

			return

		case c := <-h.register:
			h.touch()
			h.clients[c] = true

			h.deliver(c, SnapshotMessage{Type: "snapshot", Snapshot: h.snapshot()})

			log.Debug().Str("game", h.id).Str("client", c.id).Int("clients", len(h.clients)).Msg("client connected")

		case c := <-h.unreg:
			h.touch()

			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

			log.Debug().Str("game", h.id).Str("client", c.id).Int("clients", len(h.clients)).Msg("client disconnected")

		case cmd := <-h.commands:
			h.touch()
			h.handleCommand(cmd)

		case <-h.changed:
			h.broadcast(SnapshotMessage{Type: "snapshot", Snapshot: h.snapshot()})

		case won := <-h.endings:
			outcome := memory.OutcomeLoss
			if won {
				outcome = memory.OutcomeWin
			}

			log.Info().Str("game", h.id).Str("board", h.board.Name).Str("outcome", outcome.String()).Msg("round ended")

			h.broadcast(RoundEndMessage{
				Type:    "round_end",
				Won:     won,
				Message: outcome.Message(),
			})
		}
	}
}

func (h *Hub) handleCommand(cmd command) {
	switch cmd.msg.Type {
	case "start":
		h.grid.Start()
		log.Info().Str("game", h.id).Str("client", cmd.client.id).Msg("game started")
	case "restart":
		h.grid.Restart()
		log.Info().Str("game", h.id).Str("client", cmd.client.id).Msg("game restarted")
	case "click":
		if cmd.msg.Index != nil {
			h.grid.Click(*cmd.msg.Index)
		}
	case "enter":
		h.grid.Resume()
	case "leave":
		h.grid.Pause()
	}
}

// deliver queues msg for a single client, dropping the client if its
// buffer is full.
func (h *Hub) deliver(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(msg any) {
	for c := range h.clients {
		h.deliver(c, msg)
	}
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
	})
}

func (h *Hub) submit(c *Client, msg ClientMessage) bool {
	select {
	case h.commands <- command{client: c, msg: msg}:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unreg <- c:
	case <-h.quit:
	}
}

// GameManager holds a set of hubs keyed by game ID, so each $path/$gameid
// is its own isolated session.
type GameManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	boards      *Boards
	idleTimeout time.Duration
	options     []memory.Option
	done        chan struct{}
	closeOnce   sync.Once
}

func newGameManager(boards *Boards, idleTimeout time.Duration, opts ...memory.Option) *GameManager {
	gm := &GameManager{
		hubs:        make(map[string]*Hub),
		boards:      boards,
		idleTimeout: idleTimeout,
		options:     opts,
		done:        make(chan struct{}),
	}
	if idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

// create starts a new session on the given board.
func (gm *GameManager) create(board Board) (*Hub, error) {
	for {
		gameID := newGameID()

		gm.mu.Lock()
		if _, exists := gm.hubs[gameID]; exists {
			gm.mu.Unlock()

			continue
		}

		hub, err := newHub(gameID, board, gm.options...)
		if err != nil {
			gm.mu.Unlock()

			return nil, err
		}

		gm.hubs[gameID] = hub
		gm.mu.Unlock()

		go hub.run()

		log.Info().Str("game", gameID).Str("board", board.Name).Msg("created game")

		return hub, nil
	}
}

// getHub returns the session for gameID, creating one on the default board
// for IDs that are unknown, such as links to reaped games.
func (gm *GameManager) getHub(gameID string) (*Hub, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub, nil
	}

	board, err := gm.boards.Get("")
	if err != nil {
		return nil, err
	}

	hub, err := newHub(gameID, board, gm.options...)
	if err != nil {
		return nil, err
	}

	gm.hubs[gameID] = hub
	go hub.run()

	log.Info().Str("game", gameID).Str("board", board.Name).Msg("recreated game")

	return hub, nil
}

// newGameID generates a crypto-random 8-char game ID.
func newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}

	out := make([]byte, 8)
	for i := range out {
		out[i] = letters[int(buf[i])%len(letters)]
	}

	return string(out)
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-gm.done:
			return
		case <-ticker.C:
			gm.reap(time.Now().Add(-gm.idleTimeout))
		}
	}
}

func (gm *GameManager) reap(cutoff time.Time) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	for id, hub := range gm.hubs {
		if hub.idleSince().Before(cutoff) {
			delete(gm.hubs, id)
			hub.stop()

			log.Info().Str("game", id).Msg("reaped idle game")
		}
	}
}

// Close stops the reaper and every session.
func (gm *GameManager) Close() {
	gm.closeOnce.Do(func() {
		close(gm.done)
	})

	gm.mu.Lock()
	defer gm.mu.Unlock()

	for id, hub := range gm.hubs {
		delete(gm.hubs, id)
		hub.stop()
	}
}

func newUpgrader(cfg *Config) websocket.Upgrader {
	allowed := make(map[string]bool, len(cfg.corsOrigins))
	for _, origin := range cfg.corsOrigins {
		allowed[origin] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowed) == 0 {
				return true
			}
			if strings.HasSuffix(origin, "://"+r.Host) {
				return true
			}
			return allowed[origin]
		},
	}
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	upgrader := newUpgrader(cfg)

	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		hub, err := gm.getHub(gameID)
		if err != nil {
			log.Error().Err(err).Str("game", gameID).Msg("failed to open game")
			http.Error(w, "unable to open game", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Str("client", realIP(r)).Msg("websocket upgrade failed")
			return
		}

		client := &Client{
			id:   uuid.New().String()[:8],
			conn: conn,
			send: make(chan any, 16),
		}

		if !hub.join(client) {
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("client", c.id).Msg("websocket closed unexpectedly")
			}
			return
		}

		switch msg.Type {
		case "start", "restart", "click", "enter", "leave":
			if !h.submit(c, msg) {
				return
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func getIndexHandler(cfg *Config) httprouter.Handle {
	page, err := assets.ReadFile("assets/memory/index.html")
	if err != nil {
		panic("missing embedded memory client: " + err.Error())
	}

	page = bytes.ReplaceAll(page, []byte("{{prefix}}"), []byte(cfg.prefix))

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		securityHeaders(cfg, w)

		_, _ = w.Write(page)
	}
}

// redirectNewGame handles GET /path by creating a new game on the requested
// board and redirecting to /path/:gameid.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		board, err := gm.boards.Get(r.URL.Query().Get("board"))
		if errors.Is(err, ErrUnknownBoard) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "unable to load board", http.StatusInternalServerError)
			return
		}

		hub, err := gm.create(board)
		if err != nil {
			log.Error().Err(err).Str("board", board.Name).Msg("failed to create game")
			http.Error(w, "unable to create game", http.StatusInternalServerError)
			return
		}

		http.Redirect(w, r, cfg.prefix+path+"/"+hub.id, http.StatusTemporaryRedirect)
	}
}

// registerMemoryGame sets up routes so that:
//   - $path                  → redirects to new random game (8-char ID)
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → WebSocket for that game
//   - $path/:gameid/qr       → PNG QR code for that game URL
func registerMemoryGame(cfg *Config, boards *Boards, path string, mux *httprouter.Router, opts ...memory.Option) *GameManager {
	gm := newGameManager(boards, cfg.sessionTimeout, opts...)

	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, gm))

	mux.GET(cfg.prefix+path+"/:gameid", getIndexHandler(cfg))

	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, gm))

	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)

	return gm
}
