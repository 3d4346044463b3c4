package main

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(phrases []string, date string) *Hub {
	return newHub(&Config{dailyDate: date}, phrases)
}

// attachClient registers a fake client with a large send buffer so tests
// can inspect every broadcast without a running write pump.
func attachClient(h *Hub) *Client {
	c := &Client{send: make(chan any, 64)}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	return c
}

func drain(c *Client) []any {
	var out []any
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func event(h *Hub, c *Client, msgType, name, phrase string) {
	h.handleEvent(clientEvent{
		client: c,
		msg:    ClientMessage{Type: msgType, Name: name, Phrase: phrase},
	})
}

func TestRegisterSendsSnapshots(t *testing.T) {
	h := newTestHub(numberedCatalog(25), "2099-01-01")
	c := &Client{send: make(chan any, 64)}

	h.handleRegister(c)

	msgs := drain(c)
	require.Len(t, msgs, 3)

	phrases, ok := msgs[0].(PhrasesMessage)
	require.True(t, ok)
	assert.Equal(t, "phrases:update", phrases.Type)
	assert.Equal(t, numberedCatalog(25), phrases.Phrases)
	assert.Equal(t, "2099-01-01", phrases.RoundKey)

	bingo, ok := msgs[1].(BingoMessage)
	require.True(t, ok)
	assert.Equal(t, "bingo:update", bingo.Type)
	assert.Empty(t, bingo.Calls)

	players, ok := msgs[2].(PlayersMessage)
	require.True(t, ok)
	assert.Equal(t, "players:update", players.Type)
}

func TestCallAndUncallAreIdempotent(t *testing.T) {
	h := newTestHub(numberedCatalog(25), "2099-01-01")
	c := attachClient(h)

	event(h, c, "phrase:call", "", "P01")
	msgs := drain(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"P01"}, msgs[0].(PhrasesMessage).Called)

	// Calling again, calling an unknown phrase, and uncalling an uncalled
	// phrase all cause no state change and no broadcast.
	event(h, c, "phrase:call", "", "P01")
	event(h, c, "phrase:call", "", "not in the catalog")
	event(h, c, "phrase:uncall", "", "P02")
	event(h, c, "phrase:uncall", "", "")
	assert.Empty(t, drain(c))

	event(h, c, "phrase:uncall", "", "P01")
	msgs = drain(c)
	require.Len(t, msgs, 1)
	assert.Empty(t, msgs[0].(PhrasesMessage).Called)
}

func TestCallNormalizesPhrase(t *testing.T) {
	h := newTestHub([]string{"caf\u00e9"}, "2099-01-01")
	c := attachClient(h)

	// Decomposed input and surrounding whitespace still match the
	// catalog entry.
	event(h, c, "phrase:call", "", "  cafe\u0301  ")

	msgs := drain(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"caf\u00e9"}, msgs[0].(PhrasesMessage).Called)
}

func TestPresenceSnapshot(t *testing.T) {
	h := newTestHub(numberedCatalog(25), "2099-01-01")
	c1 := attachClient(h)
	c2 := attachClient(h)
	c3 := attachClient(h)

	event(h, c1, "player:join", "Zed", "")
	event(h, c2, "player:join", "alice", "")
	event(h, c3, "player:join", "  Zed  ", "")

	h.mu.RLock()
	players := h.playersMessageLocked().Players
	h.mu.RUnlock()

	// Distinct names, case-insensitive sort.
	assert.Equal(t, []string{"alice", "Zed"}, players)
}

func TestJoinRejectsEmptyAndCapsLongNames(t *testing.T) {
	h := newTestHub(numberedCatalog(25), "2099-01-01")
	c := attachClient(h)

	event(h, c, "player:join", "   ", "")
	assert.Empty(t, drain(c))

	long := ""
	for i := 0; i < 50; i++ {
		long += "x"
	}
	event(h, c, "player:join", long, "")

	h.mu.RLock()
	name := h.names[c]
	h.mu.RUnlock()
	assert.Len(t, []rune(name), 40)
}

func TestNameCapCountsUTF16CodeUnits(t *testing.T) {
	h := newTestHub(numberedCatalog(25), "2099-01-01")
	c := attachClient(h)

	// Astral-plane runes are two code units each, so 25 emoji exceed the
	// 40-unit cap the client applies with String.slice(0, 40).
	event(h, c, "player:join", strings.Repeat("😀", 25), "")

	h.mu.RLock()
	name := h.names[c]
	h.mu.RUnlock()
	assert.Equal(t, strings.Repeat("😀", 20), name)
}

func TestClaimSubmitAndOverwrite(t *testing.T) {
	h := newTestHub(numberedCatalog(25), "2099-01-01")
	c := attachClient(h)

	event(h, c, "bingo:call", "Bob", "")
	msgs := drain(c)
	require.Len(t, msgs, 1)
	first := msgs[0].(BingoMessage).Calls
	require.Len(t, first, 1)
	assert.False(t, first[0].Valid)
	assert.Empty(t, first[0].Indices)

	// Complete Bob's row 0, then resubmit: the claim is replaced, not
	// appended.
	for _, p := range []string{"P01", "P16", "P04", "P10", "P02"} {
		event(h, c, "phrase:call", "", p)
	}
	drain(c)

	event(h, c, "bingo:call", "Bob", "")
	msgs = drain(c)
	require.Len(t, msgs, 1)
	calls := msgs[0].(BingoMessage).Calls
	require.Len(t, calls, 1)
	assert.Equal(t, "Bob", calls[0].Name)
	assert.True(t, calls[0].Valid)
	assert.Equal(t, "row", calls[0].LineType)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, calls[0].Indices)
}

func TestClaimRegressesWhenPhraseUncalled(t *testing.T) {
	h := newTestHub(numberedCatalog(25), "2099-01-01")
	c := attachClient(h)

	for _, p := range []string{"P01", "P16", "P04", "P10", "P02"} {
		event(h, c, "phrase:call", "", p)
	}
	event(h, c, "bingo:call", "Bob", "")
	drain(c)

	event(h, c, "phrase:uncall", "", "P16")

	msgs := drain(c)
	require.Len(t, msgs, 2)
	assert.IsType(t, PhrasesMessage{}, msgs[0])

	calls := msgs[1].(BingoMessage).Calls
	require.Len(t, calls, 1)
	assert.False(t, calls[0].Valid)
	assert.Empty(t, calls[0].LineType)
	assert.Empty(t, calls[0].Indices)
}

func TestRevalidationKeepsClaimTime(t *testing.T) {
	h := newTestHub(numberedCatalog(25), "2099-01-01")
	c := attachClient(h)

	event(h, c, "bingo:call", "Bob", "")
	h.mu.RLock()
	submitted := h.claims["Bob"].Time
	h.mu.RUnlock()

	for _, p := range []string{"P01", "P16", "P04", "P10", "P02"} {
		event(h, c, "phrase:call", "", p)
	}

	h.mu.RLock()
	claim := h.claims["Bob"]
	h.mu.RUnlock()
	assert.True(t, claim.Valid)
	assert.Equal(t, submitted, claim.Time)
}

func TestReloadPrunesLedgerAndRevalidates(t *testing.T) {
	h := newTestHub(numberedCatalog(25), "2099-01-01")
	c := attachClient(h)

	for _, p := range []string{"P01", "P16", "P04", "P10", "P02"} {
		event(h, c, "phrase:call", "", p)
	}
	event(h, c, "bingo:call", "Bob", "")
	drain(c)

	// Replace P01 with a new phrase: the ledger entry must vanish and
	// Bob's claim must be revalidated against his new card.
	next := numberedCatalog(25)
	next[0] = "P26"
	h.handleReload(next)

	h.mu.RLock()
	defer h.mu.RUnlock()

	assert.False(t, h.called["P01"])
	assert.False(t, h.members["P01"])
	assert.True(t, h.members["P26"])

	claim := h.claims["Bob"]
	assert.False(t, claim.Valid)
	assert.Empty(t, claim.Indices)
}

func TestReloadBelowCatalogFloorInvalidatesClaims(t *testing.T) {
	h := newTestHub(numberedCatalog(25), "2099-01-01")
	c := attachClient(h)

	for _, p := range []string{"P01", "P16", "P04", "P10", "P02"} {
		event(h, c, "phrase:call", "", p)
	}
	event(h, c, "bingo:call", "Bob", "")

	h.handleReload(numberedCatalog(10))

	h.mu.RLock()
	defer h.mu.RUnlock()
	assert.False(t, h.claims["Bob"].Valid)
}

func TestRoundRolloverClearsState(t *testing.T) {
	h := newTestHub(numberedCatalog(25), "2099-01-01")
	c := attachClient(h)

	for _, p := range []string{"P01", "P16", "P04", "P10", "P02"} {
		event(h, c, "phrase:call", "", p)
	}
	event(h, c, "bingo:call", "Bob", "")
	drain(c)

	// The rollover is observed lazily by the next processed event.
	h.cfg.dailyDate = "2099-01-02"
	event(h, c, "phrase:call", "", "P03")

	h.mu.RLock()
	defer h.mu.RUnlock()

	assert.Equal(t, "2099-01-02", h.round)
	assert.Empty(t, h.claims)
	assert.Equal(t, map[string]bool{"P03": true}, h.called)
}

func TestGuestClaimName(t *testing.T) {
	h := newTestHub(numberedCatalog(25), "2099-01-01")
	c := attachClient(h)

	event(h, c, "bingo:call", "   ", "")

	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.claims["Guest"]
	assert.True(t, ok)
}

func TestUnknownEventIgnored(t *testing.T) {
	h := newTestHub(numberedCatalog(25), "2099-01-01")
	c := attachClient(h)

	event(h, c, "board:reset", "Bob", "P01")
	event(h, c, "", "", "")

	assert.Empty(t, drain(c))
}

func TestUnregisterBroadcastsPresence(t *testing.T) {
	h := newTestHub(numberedCatalog(25), "2099-01-01")
	c1 := attachClient(h)
	c2 := attachClient(h)
	event(h, c1, "player:join", "Bob", "")
	event(h, c2, "player:join", "Alice", "")
	drain(c2)

	h.handleUnregister(c1)

	msgs := drain(c2)
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"Alice"}, msgs[0].(PlayersMessage).Players)
}

func TestSnapshotSortsCalled(t *testing.T) {
	h := newTestHub(numberedCatalog(25), "2099-01-01")
	c := attachClient(h)

	for _, p := range []string{"P09", "P02", "P05"} {
		event(h, c, "phrase:call", "", p)
	}

	phrases, called := h.snapshot()
	assert.Equal(t, numberedCatalog(25), phrases)
	assert.Equal(t, []string{"P02", "P05", "P09"}, called)
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	cfg := &Config{dailyDate: "2099-01-01"}
	hub := newHub(cfg, numberedCatalog(25))
	go hub.run()

	mux := httprouter.New()
	mux.GET("/bingo/ws", serveWS(cfg, hub))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/bingo/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	// Garbage must be dropped without ending the session; the join sent
	// right after it still has to land.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{malformed")))
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "player:join", Name: "Mallory"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var raw map[string]any
		require.NoError(t, conn.ReadJSON(&raw))
		if raw["type"] != "players:update" {
			continue
		}
		players, _ := raw["players"].([]any)
		for _, p := range players {
			if p == "Mallory" {
				return
			}
		}
	}
}

// End-to-end: Bob joins a pinned round, his row 0 gets called, his claim
// is valid and the broadcast carries it.
func TestRowZeroScenario(t *testing.T) {
	h := newTestHub(numberedCatalog(25), "2099-01-01")
	observer := attachClient(h)
	bob := attachClient(h)

	event(h, bob, "player:join", "Bob", "")

	for _, p := range bobCard[:5] {
		event(h, bob, "phrase:call", "", p)
	}
	drain(observer)

	event(h, bob, "bingo:call", "Bob", "")

	msgs := drain(observer)
	require.Len(t, msgs, 1)
	calls := msgs[0].(BingoMessage).Calls
	require.Len(t, calls, 1)
	assert.Equal(t, "Bob", calls[0].Name)
	assert.True(t, calls[0].Valid)
	assert.Equal(t, "row", calls[0].LineType)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, calls[0].Indices)
	assert.NotZero(t, calls[0].Time)
}
