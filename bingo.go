// Phrasebingo Board
//
// Every connected player sees the same phrase list; any of them can act as
// moderator and toggle phrases "called". Each player's 5x5 card is derived
// deterministically from their display name and the active round date, so
// the server never stores cards and the browser client can paint the same
// card from the same seed.
//
// Features:
// - Single shared session: /bingo, websocket at /bingo/ws
// - Per-(name, date) deterministic cards with a center free space
// - Call ledger toggled by any client; idempotent call/uncall
// - One bingo claim per name, revalidated whenever the ledger or
//   catalog changes; claims can regress to invalid
// - Catalog hot-reloaded when the phrases file changes on disk
// - Lazy UTC-date round rollover: claims and ledger reset on the next
//   processed event after midnight
// - In-browser QR button to share the board, backed by go-qrcode

package main

import (
	_ "embed"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf16"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"golang.org/x/text/unicode/norm"
)

// Messages coming from clients
type ClientMessage struct {
	Type   string `json:"type"`             // "player:join", "phrase:call", "phrase:uncall", "bingo:call"
	Name   string `json:"name,omitempty"`   // player:join / bingo:call
	Phrase string `json:"phrase,omitempty"` // phrase:call / phrase:uncall
}

// BingoClaim is the per-name claim record. A later claim from the same
// name replaces the earlier one entirely.
type BingoClaim struct {
	Name     string `json:"name"`
	Valid    bool   `json:"valid"`
	LineType string `json:"lineType,omitempty"` // "row", "col" or "diag"; empty when invalid
	Indices  []int  `json:"indices"`
	Time     int64  `json:"time"` // unix milliseconds
}

// PhrasesMessage is the full catalog/ledger snapshot.
type PhrasesMessage struct {
	Type     string   `json:"type"` // "phrases:update"
	Phrases  []string `json:"phrases"`
	Called   []string `json:"called"`
	RoundKey string   `json:"roundKey"`
}

// PlayersMessage is the full presence snapshot.
type PlayersMessage struct {
	Type    string   `json:"type"` // "players:update"
	Players []string `json:"players"`
}

// BingoMessage is the full claim snapshot.
type BingoMessage struct {
	Type  string       `json:"type"` // "bingo:update"
	Calls []BingoClaim `json:"calls"`
}

type Client struct {
	conn *websocket.Conn
	send chan any
}

type clientEvent struct {
	client *Client
	msg    ClientMessage
}

// Hub owns all session state. Every mutation flows through run()'s single
// goroutine; the mutex exists so read-only HTTP snapshots can observe a
// consistent state concurrently.
type Hub struct {
	cfg *Config

	register chan *Client
	unreg    chan *Client
	events   chan clientEvent
	reloads  chan []string

	mu      sync.RWMutex
	clients map[*Client]bool
	names   map[*Client]string
	phrases []string
	members map[string]bool
	called  map[string]bool
	claims  map[string]BingoClaim
	round   string
}

func newHub(cfg *Config, phrases []string) *Hub {
	h := &Hub{
		cfg:      cfg,
		register: make(chan *Client),
		unreg:    make(chan *Client),
		events:   make(chan clientEvent),
		reloads:  make(chan []string),
		clients:  make(map[*Client]bool),
		names:    make(map[*Client]string),
		called:   make(map[string]bool),
		claims:   make(map[string]BingoClaim),
		round:    activeRoundKey(cfg),
	}
	h.setCatalogLocked(phrases)
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.handleRegister(c)

		case c := <-h.unreg:
			h.handleUnregister(c)

		case ev := <-h.events:
			h.handleEvent(ev)

		case phrases := <-h.reloads:
			h.handleReload(phrases)
		}
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.rolloverLocked()
	h.clients[c] = true

	// Newcomers get the board and claims immediately; everyone gets the
	// refreshed player list.
	c.send <- h.phrasesMessageLocked()
	c.send <- h.bingoMessageLocked()
	h.broadcastLocked(h.playersMessageLocked())
}

func (h *Hub) handleUnregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	delete(h.names, c)
	close(c.send)

	h.broadcastLocked(h.playersMessageLocked())
}

func (h *Hub) handleEvent(ev clientEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.rolloverLocked()

	switch ev.msg.Type {
	case "player:join":
		name := cleanName(ev.msg.Name)
		if name == "" {
			return
		}
		h.names[ev.client] = name
		logf(h.cfg, "GAMES: Player %q joined the board", name)
		h.broadcastLocked(h.playersMessageLocked())

	case "phrase:call":
		phrase := cleanPhrase(ev.msg.Phrase)
		if phrase == "" || !h.members[phrase] || h.called[phrase] {
			return
		}
		h.called[phrase] = true
		h.broadcastLocked(h.phrasesMessageLocked())
		h.revalidateLocked()

	case "phrase:uncall":
		phrase := cleanPhrase(ev.msg.Phrase)
		if phrase == "" || !h.members[phrase] || !h.called[phrase] {
			return
		}
		delete(h.called, phrase)
		h.broadcastLocked(h.phrasesMessageLocked())
		h.revalidateLocked()

	case "bingo:call":
		name := cleanName(ev.msg.Name)
		if name == "" {
			name = "Guest"
		}
		res := validateCard(makeCard(h.phrases, name, h.round), h.called)
		h.claims[name] = BingoClaim{
			Name:     name,
			Valid:    res.valid,
			LineType: res.lineType,
			Indices:  res.indices,
			Time:     time.Now().UnixMilli(),
		}
		logf(h.cfg, "GAMES: %q called bingo (valid=%v)", name, res.valid)
		h.broadcastLocked(h.bingoMessageLocked())

	default:
		// ignore unknown types
	}
}

// handleReload swaps in a freshly loaded catalog, prunes ledger entries
// that no longer exist, and revalidates every claim.
func (h *Hub) handleReload(phrases []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.rolloverLocked()
	h.setCatalogLocked(phrases)

	for phrase := range h.called {
		if !h.members[phrase] {
			delete(h.called, phrase)
		}
	}

	h.broadcastLocked(h.phrasesMessageLocked())
	h.revalidateLocked()
}

func (h *Hub) setCatalogLocked(phrases []string) {
	h.phrases = phrases
	h.members = make(map[string]bool, len(phrases))
	for _, p := range phrases {
		h.members[p] = true
	}
}

// rolloverLocked observes a round change lazily: the first mutation after
// midnight UTC (or after the pinned date changes) resets the ledger and
// claims, since every card has changed identity.
func (h *Hub) rolloverLocked() {
	rk := activeRoundKey(h.cfg)
	if rk == h.round {
		return
	}

	logf(h.cfg, "GAMES: Round rolled over from %s to %s", h.round, rk)

	h.round = rk
	h.called = make(map[string]bool)
	h.claims = make(map[string]BingoClaim)

	h.broadcastLocked(h.phrasesMessageLocked())
	h.broadcastLocked(h.bingoMessageLocked())
}

// revalidateLocked recomputes every claim against the current ledger and
// catalog, broadcasting only if at least one claim changed. Claims keep
// their original submission time.
func (h *Hub) revalidateLocked() {
	changed := false

	for name, claim := range h.claims {
		res := validateCard(makeCard(h.phrases, name, h.round), h.called)
		if claim.Valid == res.valid && claim.LineType == res.lineType && equalIndices(claim.Indices, res.indices) {
			continue
		}
		claim.Valid = res.valid
		claim.LineType = res.lineType
		claim.Indices = res.indices
		h.claims[name] = claim
		changed = true
	}

	if changed {
		h.broadcastLocked(h.bingoMessageLocked())
	}
}

func equalIndices(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (h *Hub) phrasesMessageLocked() PhrasesMessage {
	called := make([]string, 0, len(h.called))
	for p := range h.called {
		called = append(called, p)
	}
	sort.Strings(called)

	phrases := make([]string, len(h.phrases))
	copy(phrases, h.phrases)

	return PhrasesMessage{
		Type:     "phrases:update",
		Phrases:  phrases,
		Called:   called,
		RoundKey: h.round,
	}
}

func (h *Hub) playersMessageLocked() PlayersMessage {
	seen := make(map[string]bool, len(h.names))
	players := make([]string, 0, len(h.names))
	for _, name := range h.names {
		if !seen[name] {
			seen[name] = true
			players = append(players, name)
		}
	}

	sort.Slice(players, func(i, j int) bool {
		a, b := strings.ToLower(players[i]), strings.ToLower(players[j])
		if a == b {
			return players[i] < players[j]
		}
		return a < b
	})

	return PlayersMessage{Type: "players:update", Players: players}
}

func (h *Hub) bingoMessageLocked() BingoMessage {
	calls := make([]BingoClaim, 0, len(h.claims))
	for _, claim := range h.claims {
		calls = append(calls, claim)
	}
	sort.Slice(calls, func(i, j int) bool {
		if calls[i].Time == calls[j].Time {
			return calls[i].Name < calls[j].Name
		}
		return calls[i].Time < calls[j].Time
	})

	return BingoMessage{Type: "bingo:update", Calls: calls}
}

func (h *Hub) broadcastLocked(msg any) {
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			delete(h.names, client)
			close(client.send)
		}
	}
}

// snapshot returns the read-only state for /api/phrases. Runs concurrently
// with the mutation loop and may observe a state older than an in-flight
// event.
func (h *Hub) snapshot() (phrases []string, called []string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	msg := h.phrasesMessageLocked()
	return msg.Phrases, msg.Called
}

// cleanName trims a display name and caps it at 40 UTF-16 code units,
// matching the client's String.slice(0, 40) so both sides derive the card
// from the same seed.
func cleanName(raw string) string {
	s := strings.TrimSpace(raw)
	if units := utf16.Encode([]rune(s)); len(units) > 40 {
		s = string(utf16.Decode(units[:40]))
	}
	return s
}

// cleanPhrase trims and NFC-normalizes a phrase so it matches catalog
// identity.
func cleanPhrase(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	return norm.NFC.String(s)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func serveWS(cfg *Config, hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "GAMES: upgrade error: %v", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 8),
		}

		hub.register <- client

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unreg <- c
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		// Malformed frames are ignored; only transport errors end the
		// session.
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "player:join", "phrase:call", "phrase:uncall", "bingo:call":
			h.events <- clientEvent{
				client: c,
				msg:    msg,
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the board URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /bingo/qr; strip the trailing "/qr" to get the board URL.
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

// ---- Static file paths ----

//go:embed bingo/index.html
var indexHTML []byte

//go:embed bingo/app.css
var boardCSS []byte

//go:embed bingo/app.js
var boardJS []byte

func getIndexHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(indexHTML)
	}
}

func getCssHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(boardCSS)
	}
}

func getJsHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(boardJS)
	}
}

// registerBingoBoard sets up routes so that:
//   - $path        → HTML client
//   - $path/ws     → shared-session WebSocket
//   - $path/qr     → PNG QR code for the board URL
func registerBingoBoard(cfg *Config, path string, mux *httprouter.Router, hub *Hub) {
	mux.GET(cfg.prefix+path, getIndexHandler(cfg))

	// Shared assets
	mux.GET(cfg.prefix+"/assets/bingo/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/bingo/app.js", getJsHandler(cfg))

	mux.GET(cfg.prefix+path+"/ws", serveWS(cfg, hub))

	mux.GET(cfg.prefix+path+"/qr", qrHandler)
}
