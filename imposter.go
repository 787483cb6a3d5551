// Partybox-style Imposter Game
//
// A local, pass-the-phone social deduction word game. Players take
// turns privately viewing a secret word on a shared device; one or
// more players are secretly imposters and receive a different (or
// hidden) word. The table discusses, votes out a suspect, and scores
// are applied per round.
//
// Features:
// - WebSockets per game ID: /imposter/:gameid and /imposter/:gameid/ws
// - One shared session per game ID; every connected screen mirrors it
// - All rules live in the match engine (engine.go); this file only
//   translates client messages into engine actions and broadcasts the
//   resulting snapshot
// - Secret words are never broadcast: the device asks for the current
//   player's word and gets a private reply
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - Custom word categories and theme preference persisted via SQLite
// - Games auto-reaped after configurable idle timeout
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Messages coming from clients
type ClientMessage struct {
	Type       string `json:"type"`
	Name       string `json:"name,omitempty"`        // add_player / rename_player
	PlayerID   string `json:"player_id,omitempty"`   // remove_player / rename_player / cast_vote
	TargetID   string `json:"target_id,omitempty"`   // cast_vote
	CategoryID string `json:"category_id,omitempty"` // toggle_category
	Index      int    `json:"index"`                 // get_word / reveal_word
	Count      int    `json:"count"`                 // set_imposter_count
	Mode       string `json:"mode,omitempty"`        // set_word_mode
	Enabled    *bool  `json:"enabled,omitempty"`     // set_voting / set_randomize_start / handover
	Text       string `json:"text,omitempty"`        // add_hint
}

// statePlayer is the roster entry clients are allowed to see. Roles
// stay hidden until the round reaches results.
type statePlayer struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Score      int    `json:"score"`
	IsImposter bool   `json:"isImposter"`
}

// StateMessage mirrors the committed engine snapshot to every screen.
type StateMessage struct {
	Type        string        `json:"type"` // "state"
	Phase       string        `json:"phase"`
	Players     []statePlayer `json:"players"`
	Config      MatchConfig   `json:"config"`
	Round       RoundState    `json:"round"`
	RoundNumber int           `json:"roundNumber"`
	LastResult  *VoteResult   `json:"lastResult,omitempty"`
}

// WordMessage is the private reply to a get_word request: what the
// device should show the player currently holding it.
type WordMessage struct {
	Type  string `json:"type"` // "word"
	Index int    `json:"index"`
	Word  string `json:"word"`
	Hint  string `json:"hint,omitempty"`
}

// SimpleMessage is for generic notifications.
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type actionRequest struct {
	client *Client
	msg    ClientMessage
}

// Hub is one shared game session: a match engine plus the screens
// mirroring it.
type Hub struct {
	id    string
	match *Match

	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	actions  chan actionRequest

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time
}

func newHub(gameID string, rnd *Rand, categories *Categories) *Hub {
	now := time.Now()
	return &Hub{
		id:         gameID,
		match:      newMatch(rnd, categories),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		actions:    make(chan actionRequest),
		createdAt:  now,
		lastActive: now,
	}
}

func (h *Hub) run(cfg *Config) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = time.Now()
			h.clients[c] = true
			h.mu.Unlock()

			c.send <- h.stateMessage()

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case ar := <-h.actions:
			h.handleAction(cfg, ar)
		}
	}
}

// stateMessage builds the shareable view of the committed snapshot.
// Secret words never leave the engine this way; roles are included
// only once the round has reached results.
func (h *Hub) stateMessage() StateMessage {
	state := h.match.State()

	// Results always disclose roles; with voting disabled the round
	// reaches results without a submit, and the table still needs to
	// learn who the imposters were.
	showRoles := state.Phase == PhaseResults

	players := make([]statePlayer, 0, len(state.Players))
	for _, p := range state.Players {
		sp := statePlayer{
			ID:    p.ID,
			Name:  p.Name,
			Score: p.Score,
		}
		if showRoles {
			sp.IsImposter = p.IsImposter
		}
		players = append(players, sp)
	}

	if !showRoles {
		state.LastResult = nil
	}
	state.Round.AllHints = h.match.HintPool()

	return StateMessage{
		Type:        "state",
		Phase:       state.Phase.String(),
		Players:     players,
		Config:      state.Config,
		Round:       state.Round,
		RoundNumber: state.RoundNumber,
		LastResult:  state.LastResult,
	}
}

func (h *Hub) broadcastState() {
	msg := h.stateMessage()

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// handleAction translates one client message into an engine action.
// Every action ends with a fresh snapshot broadcast; actions the
// engine rejects simply re-broadcast the unchanged state.
func (h *Hub) handleAction(cfg *Config, ar actionRequest) {
	c := ar.client
	msg := ar.msg

	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()

	switch msg.Type {
	case "add_player":
		h.match.AddPlayer(strings.TrimSpace(msg.Name))
		logf(cfg, "GAMES: Player %q joined %s", msg.Name, h.id)

	case "remove_player":
		h.match.RemovePlayer(msg.PlayerID)

	case "rename_player":
		h.match.RenamePlayer(msg.PlayerID, strings.TrimSpace(msg.Name))

	case "complete_player_setup":
		h.match.CompletePlayerSetup()

	case "toggle_category":
		h.match.ToggleCategory(msg.CategoryID)

	case "set_imposter_count":
		h.match.SetImposterCount(msg.Count)

	case "set_word_mode":
		h.match.SetImposterWordMode(ImposterWordMode(msg.Mode))

	case "set_voting":
		if msg.Enabled != nil {
			h.match.SetVotingEnabled(*msg.Enabled)
		}

	case "set_randomize_start":
		if msg.Enabled != nil {
			h.match.SetRandomizeStartingPlayer(*msg.Enabled)
		}

	case "start_game":
		h.match.StartGame()
		if h.match.State().Phase == PhaseReveal {
			logf(cfg, "GAMES: Match started in %s", h.id)
		}

	case "get_word":
		state := h.match.State()
		if msg.Index < 0 || msg.Index >= len(state.Players) {
			select {
			case c.send <- SimpleMessage{
				Type:    "error",
				Message: "No such player.",
			}:
			default:
			}
			return
		}

		reply := WordMessage{
			Type:  "word",
			Index: msg.Index,
			Word:  h.match.PlayerWord(msg.Index),
		}
		if state.Round.ImposterIndices[msg.Index] {
			reply.Hint = h.match.ImposterHint()
		}

		select {
		case c.send <- reply:
		default:
		}
		return

	case "reveal_word":
		state := h.match.State()
		if msg.Index < 0 || msg.Index >= len(state.Players) {
			return
		}
		h.match.RevealWord(msg.Index)

	case "add_hint":
		h.match.AddHint(strings.TrimSpace(msg.Text))

	case "next_reveal":
		h.match.NextPlayerReveal()

	case "handover":
		if msg.Enabled != nil {
			h.match.SetHandoverComplete(*msg.Enabled)
		}

	case "end_discussion":
		h.match.EndDiscussion()

	case "cast_vote":
		h.match.CastVote(msg.PlayerID, msg.TargetID)

	case "next_voter":
		h.match.NextVoter()

	case "submit_votes":
		h.match.SubmitVotes()
		logf(cfg, "GAMES: Votes submitted in %s", h.id)

	case "next_round":
		h.match.NextRound()

	case "end_game":
		h.match.EndGame()
		logf(cfg, "GAMES: Match ended in %s", h.id)

	case "new_game":
		h.match.StartNewGame()

	default:
		return
	}

	h.broadcastState()
}

// closeAll disconnects all clients of this hub (used by reaper).
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "imposterbox_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// GameManager holds a set of hubs keyed by game ID, so each
// /imposter/:gameid is its own isolated session.
type GameManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
	rnd         *Rand
	categories  *Categories
}

func newGameManager(idleTimeout time.Duration, rnd *Rand, categories *Categories) *GameManager {
	gm := &GameManager{
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
		rnd:         rnd,
		categories:  categories,
	}
	if idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

func (gm *GameManager) getHub(cfg *Config, gameID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub
	}

	hub := newHub(gameID, gm.rnd, gm.categories)
	gm.hubs[gameID] = hub
	go hub.run(cfg)
	return hub
}

// newGameID generates a crypto-random game ID and ensures it doesn't
// collide with existing games.
func (gm *GameManager) newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-gm.idleTimeout)

		gm.mu.Lock()
		for id, hub := range gm.hubs {
			hub.mu.RLock()
			last := hub.lastActive
			hub.mu.RUnlock()

			if last.Before(cutoff) {
				delete(gm.hubs, id)
				go hub.closeAll()
			}
		}
		gm.mu.Unlock()
	}
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		hub := gm.getHub(cfg, gameID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: playerID,
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
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		h.actions <- actionRequest{
			client: c,
			msg:    msg,
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

// ---- Static file paths ----

//go:embed imposter/index.html
var indexHTML []byte

//go:embed imposter/app.css
var imposterCSS []byte

//go:embed imposter/app.js
var imposterJS []byte

func getIndexHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		_, _ = w.Write(indexHTML)
	}
}

func getCssHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(imposterCSS)
	}
}

func getJsHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(imposterJS)
	}
}

// redirectNewGame handles GET /path by generating a new random game ID
// (with server-side collision detection) and redirecting to /path/:gameid.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := gm.newGameID()
		logf(cfg, "GAMES: Created game %s/%s", path, gameID)
		http.Redirect(w, r, path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerImposterGame sets up routes so that:
//   - $path                  → redirects to new random game (8-char ID)
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → WebSocket for that game
//   - $path/:gameid/qr       → PNG QR code for that game URL
func registerImposterGame(cfg *Config, path string, mux *httprouter.Router, rnd *Rand, categories *Categories) {
	gm := newGameManager(cfg.sessionTimeout, rnd, categories)

	// Root path → redirect to new random game
	mux.GET(path, redirectNewGame(cfg, path, gm))

	// Per-game client view (HTML)
	mux.GET(cfg.prefix+path+"/:gameid", getIndexHandler(cfg))

	// Shared assets (no gameid in route)
	mux.GET(cfg.prefix+"/assets/imposter/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/imposter/app.js", getJsHandler(cfg))

	// Per-game websocket
	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, gm))

	// Per-game QR code
	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)
}
