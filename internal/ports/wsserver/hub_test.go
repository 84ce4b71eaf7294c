package wsserver

import (
	"context"
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"dobble/internal/app"
	"dobble/internal/bot"
	"dobble/internal/config"
	"dobble/internal/domain"
	"dobble/internal/ports"
	"dobble/internal/protocol"
)

type recordingScore struct {
	calls    int
	matchID  string
	outcomes []ports.Outcome
}

func (r *recordingScore) RecordResults(_ context.Context, matchID string, outcomes []ports.Outcome) error {
	r.calls++
	r.matchID = matchID
	r.outcomes = outcomes
	return nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Bots.Enabled = false
	return cfg
}

func newTestHub(t *testing.T, cfg config.Config) (*Hub, *recordingScore) {
	t.Helper()
	score := &recordingScore{}
	h := NewHub(HubOptions{
		Config:  cfg,
		Score:   score,
		Rand:    rand.New(rand.NewSource(42)),
		MatchID: "match-1",
	})
	return h, score
}

func testClient(h *Hub, id string) *Client {
	return &Client{id: id, name: "name-" + id, hub: h, send: make(chan []byte, sendBuffer)}
}

// drain returns the queued frames and whether the hub closed the channel.
func drain(t *testing.T, c *Client) ([]map[string]interface{}, bool) {
	t.Helper()
	var frames []map[string]interface{}
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return frames, true
			}
			var frame map[string]interface{}
			if err := json.Unmarshal(data, &frame); err != nil {
				t.Fatalf("unmarshal frame %s: %v", data, err)
			}
			frames = append(frames, frame)
		default:
			return frames, false
		}
	}
}

func ofType(frames []map[string]interface{}, typ string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, f := range frames {
		if f["type"] == typ {
			out = append(out, f)
		}
	}
	return out
}

func seat(t *testing.T, h *Hub, ids ...string) []*Client {
	t.Helper()
	clients := make([]*Client, 0, len(ids))
	for _, id := range ids {
		c := testClient(h, id)
		h.handleRegister(context.Background(), c)
		if _, ok := h.clients[id]; !ok {
			t.Fatalf("client %s not admitted", id)
		}
		clients = append(clients, c)
	}
	return clients
}

func chooseFrame(c *Client, symbol int, card domain.Card) inbound {
	return inbound{client: c, frame: protocol.Inbound{
		Type:   protocol.TypeChoose,
		Choose: &protocol.Choose{SymbolID: symbol, Card: card},
	}}
}

func startFrame(c *Client) inbound {
	return inbound{client: c, frame: protocol.Inbound{Type: protocol.TypeStart}}
}

func TestRegisterWelcomesAndAnnounces(t *testing.T) {
	h, _ := newTestHub(t, testConfig())
	clients := seat(t, h, "a", "b")

	frames, closed := drain(t, clients[0])
	if closed {
		t.Fatalf("admitted client closed")
	}
	welcome := ofType(frames, protocol.TypeWelcome)
	if len(welcome) != 1 || welcome[0]["playerId"] != "a" {
		t.Fatalf("welcome = %v, want one for a", welcome)
	}
	if joined := ofType(frames, string(app.EventPlayerJoined)); len(joined) != 2 {
		t.Fatalf("playerJoined frames = %d, want 2", len(joined))
	}
	if got := testutil.ToFloat64(h.metrics.Peers); got != 2 {
		t.Fatalf("peers = %v, want 2", got)
	}
}

func TestLateJoinerGetsErrorAndClose(t *testing.T) {
	h, _ := newTestHub(t, testConfig())
	seat(t, h, "a", "b")
	if err := h.startSession(context.Background(), ""); err != nil {
		t.Fatalf("start: %v", err)
	}

	late := testClient(h, "c")
	h.handleRegister(context.Background(), late)

	frames, closed := drain(t, late)
	if !closed {
		t.Fatalf("late joiner left open")
	}
	errs := ofType(frames, protocol.TypeError)
	if len(errs) != 1 || errs[0]["message"] != app.ErrNotAccepting.Error() {
		t.Fatalf("frames = %v, want a single not-accepting error", frames)
	}
	if h.session.Has("c") {
		t.Fatalf("late joiner seated")
	}
}

func TestPeerStartDealsCards(t *testing.T) {
	h, _ := newTestHub(t, testConfig())
	clients := seat(t, h, "a", "b")
	for _, c := range clients {
		drain(t, c)
	}

	h.handleInbound(context.Background(), startFrame(clients[1]))

	if h.session.Status() != domain.StatusInProgress {
		t.Fatalf("status = %v, want inProgress", h.session.Status())
	}
	for _, c := range clients {
		frames, _ := drain(t, c)
		if len(ofType(frames, string(app.EventGameCard))) != 1 {
			t.Fatalf("%s gameCard frames = %v", c.id, frames)
		}
		if len(ofType(frames, string(app.EventPlayerCard))) != 1 {
			t.Fatalf("%s playerCard frames = %v", c.id, frames)
		}
	}
	if got := testutil.ToFloat64(h.metrics.GamesStarted); got != 1 {
		t.Fatalf("games started = %v, want 1", got)
	}
}

func TestPeerStartErrors(t *testing.T) {
	h, _ := newTestHub(t, testConfig())
	clients := seat(t, h, "a")
	drain(t, clients[0])

	h.handleInbound(context.Background(), startFrame(clients[0]))

	frames, _ := drain(t, clients[0])
	errs := ofType(frames, protocol.TypeError)
	if len(errs) != 1 || errs[0]["message"] != app.ErrTooFewPlayers.Error() {
		t.Fatalf("frames = %v, want too-few-players error", frames)
	}
}

func TestValidChoiceBroadcastsTable(t *testing.T) {
	h, _ := newTestHub(t, testConfig())
	clients := seat(t, h, "a", "b")
	if err := h.startSession(context.Background(), ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, c := range clients {
		drain(t, c)
	}

	top, _ := h.session.TopCard("a")
	symbol := domain.CommonSymbols(h.session.CardOnTop(), top)[0]
	h.handleInbound(context.Background(), chooseFrame(clients[0], symbol, top))

	if !h.session.CardOnTop().Equal(top) {
		t.Fatalf("table = %v, want %v", h.session.CardOnTop(), top)
	}
	framesB, _ := drain(t, clients[1])
	if len(ofType(framesB, string(app.EventGameCard))) != 1 {
		t.Fatalf("b frames = %v, want a gameCard", framesB)
	}
	if len(ofType(framesB, string(app.EventPlayerCard))) != 0 {
		t.Fatalf("b received a's card: %v", framesB)
	}
	if got := testutil.ToFloat64(h.metrics.Moves.WithLabelValues(MoveValid)); got != 1 {
		t.Fatalf("valid moves = %v, want 1", got)
	}
}

func TestInvalidChoiceBansOnce(t *testing.T) {
	h, _ := newTestHub(t, testConfig())
	clients := seat(t, h, "a", "b")
	if err := h.startSession(context.Background(), ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, c := range clients {
		drain(t, c)
	}

	miss := -1
	for s := 0; s < 7; s++ {
		if !h.session.CardOnTop().Has(s) {
			miss = s
			break
		}
	}
	h.handleInbound(context.Background(), chooseFrame(clients[0], miss, nil))
	h.handleInbound(context.Background(), chooseFrame(clients[0], miss, nil))

	frames, _ := drain(t, clients[0])
	bans := ofType(frames, string(app.EventBan))
	if len(bans) != 1 {
		t.Fatalf("ban frames = %v, want 1", frames)
	}
	if bans[0]["banLevel"] != float64(2000) {
		t.Fatalf("banLevel = %v, want 2000", bans[0]["banLevel"])
	}
	if framesB, _ := drain(t, clients[1]); len(framesB) != 0 {
		t.Fatalf("b received %v", framesB)
	}
	if got := testutil.ToFloat64(h.metrics.Bans); got != 1 {
		t.Fatalf("bans = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.metrics.Moves.WithLabelValues(MoveBanned)); got != 1 {
		t.Fatalf("banned moves = %v, want 1", got)
	}
}

func TestBadFrameAndStaleClient(t *testing.T) {
	h, _ := newTestHub(t, testConfig())
	clients := seat(t, h, "a")
	drain(t, clients[0])

	h.handleInbound(context.Background(), inbound{client: clients[0], err: protocol.ErrMalformedFrame})
	frames, _ := drain(t, clients[0])
	if len(ofType(frames, protocol.TypeError)) != 1 {
		t.Fatalf("frames = %v, want an error", frames)
	}

	stranger := testClient(h, "ghost")
	h.handleInbound(context.Background(), startFrame(stranger))
	if frames, _ := drain(t, stranger); len(frames) != 0 {
		t.Fatalf("stranger received %v", frames)
	}
}

func TestUnregisterMidGameForfeit(t *testing.T) {
	h, score := newTestHub(t, testConfig())
	clients := seat(t, h, "a", "b")
	if err := h.startSession(context.Background(), ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	drain(t, clients[0])

	h.handleUnregister(context.Background(), clients[1])

	if _, closed := drain(t, clients[1]); !closed {
		t.Fatalf("departed client left open")
	}
	frames, _ := drain(t, clients[0])
	results := ofType(frames, string(app.EventResult))
	if len(results) != 1 || results[0]["result"] != float64(1) {
		t.Fatalf("results = %v, want a win for a", results)
	}
	if score.calls != 1 || score.matchID != "match-1" {
		t.Fatalf("score calls = %d match = %q", score.calls, score.matchID)
	}
	if len(score.outcomes) != 1 || !score.outcomes[0].Won {
		t.Fatalf("outcomes = %+v", score.outcomes)
	}
	if got := testutil.ToFloat64(h.metrics.GamesFinished); got != 1 {
		t.Fatalf("games finished = %v, want 1", got)
	}

	// A second departure changes nothing and records nothing.
	h.handleUnregister(context.Background(), clients[0])
	if score.calls != 1 {
		t.Fatalf("score calls = %d, want 1", score.calls)
	}
}

func TestBotAutoFill(t *testing.T) {
	cfg := testConfig()
	cfg.Bots.Enabled = true
	cfg.Bots.AutoFillDelaySec = 1
	h, _ := newTestHub(t, cfg)
	seat(t, h, "a")

	for i := 0; i < TickRate; i++ {
		h.advance(context.Background())
	}
	if len(h.bots) != 0 {
		t.Fatalf("bot added before the delay")
	}
	h.advance(context.Background())
	if len(h.bots) != 1 {
		t.Fatalf("bots = %d, want 1", len(h.bots))
	}
	if got := len(h.session.Snapshot().Players); got != 2 {
		t.Fatalf("players = %d, want 2", got)
	}
}

func TestHumanReplacesBotWhenFull(t *testing.T) {
	cfg := testConfig()
	cfg.Game.MaxPlayers = 2
	h, _ := newTestHub(t, cfg)
	clients := seat(t, h, "a")
	h.addBot(context.Background())
	drain(t, clients[0])

	seat(t, h, "b")

	if len(h.bots) != 0 {
		t.Fatalf("bots = %d, want 0", len(h.bots))
	}
	frames, _ := drain(t, clients[0])
	if len(ofType(frames, string(app.EventPlayerLeft))) != 1 {
		t.Fatalf("frames = %v, want the bot to leave", frames)
	}
}

func TestBotsPlayAfterStart(t *testing.T) {
	cfg := testConfig()
	cfg.Bots.Enabled = true
	cfg.Bots.Difficulty = "hard"
	h, _ := newTestHub(t, cfg)
	seat(t, h, "a")
	h.addBot(context.Background())
	if err := h.startSession(context.Background(), ""); err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 0; i <= cfg.Bots.MaxReactionTicks; i++ {
		h.advance(context.Background())
	}
	if got := testutil.ToFloat64(h.metrics.Moves.WithLabelValues(MoveValid)); got < 1 {
		t.Fatalf("valid moves = %v, want the bot to have played", got)
	}
}

func TestBotLevelFromIdentity(t *testing.T) {
	cfg := testConfig()
	cfg.Bots.Difficulty = "easy"
	h, _ := newTestHub(t, cfg)
	seat(t, h, "a")
	h.addBot(context.Background())
	h.addBot(context.Background())

	want := map[string]bot.BotLevel{"bot-owl": bot.BotLevelHard, "bot-fox": bot.BotLevelEasy}
	if len(h.bots) != len(want) {
		t.Fatalf("bots = %d, want %d", len(h.bots), len(want))
	}
	for id, level := range want {
		agent, ok := h.bots[id]
		if !ok {
			t.Fatalf("bot %s not seated", id)
		}
		if agent.Level != level {
			t.Fatalf("%s level = %v, want %v", id, agent.Level, level)
		}
	}
}

func TestLastHumanLeavingEvictsBots(t *testing.T) {
	h, _ := newTestHub(t, testConfig())
	clients := seat(t, h, "a")
	h.addBot(context.Background())

	h.handleUnregister(context.Background(), clients[0])

	if len(h.bots) != 0 || len(h.session.Snapshot().Players) != 0 {
		t.Fatalf("bots = %d players = %d, want an empty lobby", len(h.bots), len(h.session.Snapshot().Players))
	}
	if h.session.Status() != domain.StatusWaiting {
		t.Fatalf("status = %v, want waiting", h.session.Status())
	}
}

func TestShutdownClosesPeers(t *testing.T) {
	h, _ := newTestHub(t, testConfig())
	clients := seat(t, h, "a")

	h.shutdown()

	if _, closed := drain(t, clients[0]); !closed {
		t.Fatalf("client left open")
	}
	if h.session.Status() != domain.StatusOver {
		t.Fatalf("status = %v, want over", h.session.Status())
	}
}
