// Package wsserver serves a single session to websocket peers.
package wsserver

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dobble/internal/app"
	"dobble/internal/bot"
	"dobble/internal/config"
	"dobble/internal/domain"
	"dobble/internal/ports"
	"dobble/internal/protocol"
)

// TickRate is how many times per second the hub lets bots act.
const TickRate = 5

var ErrHubStopped = errors.New("hub stopped")

type inbound struct {
	client *Client
	frame  protocol.Inbound
	err    error
}

// HubOptions wires a hub. Zero fields fall back to defaults.
type HubOptions struct {
	Config  config.Config
	Logger  *zap.Logger
	Metrics *Metrics
	Score   ports.ScorePort
	Rand    *rand.Rand
	Clock   func() time.Time
	MatchID string
}

// Hub owns the session. Every peer arrival, departure, frame and operator call is
// applied on the goroutine running Run, one at a time.
type Hub struct {
	session  *app.Session
	cfg      config.Config
	logger   *zap.Logger
	metrics  *Metrics
	score    ports.ScorePort
	limiter  *peerLimiter
	upgrader websocket.Upgrader
	rng      *rand.Rand
	matchID  string
	botLevel bot.BotLevel

	clients     map[string]*Client
	bots        map[string]*bot.Agent
	tick        int64
	lonelySince int64
	recorded    bool

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	calls      chan func()
	done       chan struct{}
}

// NewHub creates a hub around a fresh waiting session.
func NewHub(opts HubOptions) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Score == nil {
		opts.Score = ports.NopScore{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.MatchID == "" {
		opts.MatchID = uuid.NewString()
	}
	level, err := bot.ParseLevel(opts.Config.Bots.Difficulty)
	if err != nil {
		opts.Logger.Warn("unknown bot difficulty, using normal", zap.String("difficulty", opts.Config.Bots.Difficulty))
		level = bot.BotLevelNormal
	}

	return &Hub{
		session:    app.NewSession(opts.Config.Game.Rules(), opts.Rand, opts.Clock),
		cfg:        opts.Config,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		score:      opts.Score,
		limiter:    newPeerLimiter(opts.Config.Server.ChooseRPS, opts.Config.Server.ChooseBurst),
		upgrader:   websocket.Upgrader{CheckOrigin: originChecker(opts.Config.Server.AllowOrigins)},
		rng:        opts.Rand,
		matchID:    opts.MatchID,
		botLevel:   level,
		clients:    make(map[string]*Client),
		bots:       make(map[string]*bot.Agent),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound, 256),
		calls:      make(chan func()),
		done:       make(chan struct{}),
	}
}

// Run processes hub traffic until ctx is cancelled, then terminates the session
// and closes every peer.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(time.Second / TickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.handleRegister(ctx, c)
		case c := <-h.unregister:
			h.handleUnregister(ctx, c)
		case in := <-h.inbound:
			h.handleInbound(ctx, in)
		case fn := <-h.calls:
			fn()
		case <-ticker.C:
			h.advance(ctx)
		}
	}
}

// Start starts the session on behalf of the operator.
func (h *Hub) Start(ctx context.Context) error {
	var err error
	if callErr := h.do(ctx, func() { err = h.startSession(ctx, "") }); callErr != nil {
		return callErr
	}
	return err
}

// Snapshot reads the session state.
func (h *Hub) Snapshot(ctx context.Context) (app.Snapshot, error) {
	var snap app.Snapshot
	err := h.do(ctx, func() { snap = h.session.Snapshot() })
	return snap, err
}

// do runs fn on the hub goroutine and waits for it.
func (h *Hub) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case h.calls <- func() { fn(); close(finished) }:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeWS upgrades the request and seats the peer. The display name comes from ?name=.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		name = "player-" + id[:8]
	}
	client := newClient(h, conn, id, name)

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

func (h *Hub) handleRegister(ctx context.Context, c *Client) {
	events, err := h.session.Join(c.id, c.name)
	if errors.Is(err, app.ErrSessionFull) {
		if botID, ok := h.evictBot(ctx); ok {
			h.logger.Info("replacing bot with human", zap.String("bot", botID),
				zap.String("name", bot.GetBotDisplayName(botID)), zap.String("player", c.id))
			events, err = h.session.Join(c.id, c.name)
		}
	}
	if err != nil {
		h.logger.Info("peer not admitted", zap.String("player", c.id), zap.Error(err))
		h.sendTo(c, protocol.EncodeError(err.Error()))
		close(c.send)
		return
	}

	h.clients[c.id] = c
	h.metrics.Peers.Set(float64(len(h.clients)))
	h.logger.Info("peer joined", zap.String("player", c.id), zap.String("name", c.name))

	h.sendTo(c, protocol.EncodeWelcome(c.id, c.name))
	h.dispatch(ctx, events)
}

func (h *Hub) handleUnregister(ctx context.Context, c *Client) {
	if cur, ok := h.clients[c.id]; !ok || cur != c {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	h.limiter.Forget(c.id)
	h.metrics.Peers.Set(float64(len(h.clients)))

	events, err := h.session.Leave(c.id)
	if err != nil {
		h.logger.Debug("departed peer was not a player", zap.String("player", c.id), zap.Error(err))
		return
	}
	h.logger.Info("peer left", zap.String("player", c.id))
	h.dispatch(ctx, events)

	if len(h.clients) > 0 {
		return
	}
	// Only bots remain.
	switch h.session.Status() {
	case domain.StatusWaiting:
		for len(h.bots) > 0 {
			if _, ok := h.evictBot(ctx); !ok {
				break
			}
		}
	case domain.StatusInProgress:
		h.logger.Info("no humans left, terminating session")
		h.session.Terminate()
	}
}

func (h *Hub) handleInbound(ctx context.Context, in inbound) {
	if _, ok := h.clients[in.client.id]; !ok {
		return
	}
	if in.err != nil {
		h.logger.Debug("bad frame", zap.String("player", in.client.id), zap.Error(in.err))
		h.sendTo(in.client, protocol.EncodeError(in.err.Error()))
		return
	}

	switch {
	case in.frame.IsStart():
		_ = h.startSession(ctx, in.client.id)
	case in.frame.Choose != nil:
		h.applyChoice(ctx, in.client.id, in.frame.Choose.SymbolID, in.frame.Choose.ClaimedCard())
	}
}

// startSession starts the session. senderID is empty for operator requests.
func (h *Hub) startSession(ctx context.Context, senderID string) error {
	events, err := h.session.Start()
	if err != nil {
		h.logger.Warn("start rejected", zap.String("player", senderID), zap.Error(err))
		// A deck that cannot be built is an operator problem.
		if c, ok := h.clients[senderID]; ok && !errors.Is(err, domain.ErrUnsatisfiableDeckSize) {
			h.sendTo(c, protocol.EncodeError(err.Error()))
		}
		return err
	}
	h.metrics.GamesStarted.Inc()
	h.logger.Info("session started", zap.Int("players", len(h.session.Snapshot().Players)))
	h.dispatch(ctx, events)
	return nil
}

func (h *Hub) applyChoice(ctx context.Context, playerID string, symbol int, claimed domain.Card) {
	events, err := h.session.HandleChoice(playerID, symbol, claimed)
	switch {
	case errors.Is(err, app.ErrPlayerBanned):
		h.metrics.Moves.WithLabelValues(MoveBanned).Inc()
		h.logger.Debug("ignoring banned player", zap.String("player", playerID))
		return
	case errors.Is(err, app.ErrUnknownPlayer):
		h.logger.Warn("choice from unknown player", zap.String("player", playerID))
		return
	case err != nil:
		h.logger.Warn("choice rejected", zap.String("player", playerID), zap.Error(err))
		if c, ok := h.clients[playerID]; ok {
			h.sendTo(c, protocol.EncodeError(err.Error()))
		}
		return
	}

	outcome := MoveValid
	for _, ev := range events {
		if ev.Kind == app.EventBan {
			outcome = MoveInvalid
			h.metrics.Bans.Inc()
		}
	}
	h.metrics.Moves.WithLabelValues(outcome).Inc()
	h.logger.Debug("choice", zap.String("player", playerID), zap.Int("symbol", symbol), zap.String("outcome", outcome))

	h.dispatch(ctx, events)
}

// dispatch delivers events and reacts to table changes and the end of the session.
func (h *Hub) dispatch(ctx context.Context, events []app.Event) {
	tableChanged := false
	for _, ev := range events {
		if ev.Kind == app.EventGameCard {
			tableChanged = true
		}
		h.deliver(ev)
	}

	if tableChanged && h.session.Status() == domain.StatusInProgress {
		for _, agent := range h.bots {
			h.scheduleBot(agent)
		}
	}
	if h.session.Status() == domain.StatusOver {
		h.recordResults(ctx)
	}
}

func (h *Hub) deliver(ev app.Event) {
	data, err := protocol.EncodeFrame(ev)
	if err != nil {
		h.logger.Error("encode event", zap.String("kind", string(ev.Kind)), zap.Error(err))
		return
	}
	if ev.Broadcast() {
		for _, c := range h.clients {
			h.sendTo(c, data)
		}
		return
	}
	// Recipients without a connection are bots.
	for _, id := range ev.Recipients {
		if c, ok := h.clients[id]; ok {
			h.sendTo(c, data)
		}
	}
}

// sendTo queues a frame without blocking the hub. Frames for a peer whose buffer is full are dropped.
func (h *Hub) sendTo(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.logger.Warn("send buffer full, dropping frame", zap.String("player", c.id))
	}
}

func (h *Hub) recordResults(ctx context.Context) {
	if h.recorded {
		return
	}
	winnerID, playerIDs, ok := h.session.Outcome()
	if !ok {
		return
	}
	h.recorded = true
	h.metrics.GamesFinished.Inc()
	h.logger.Info("session over", zap.String("winner", winnerID))

	if err := h.score.RecordResults(ctx, h.matchID, ports.Outcomes(winnerID, playerIDs)); err != nil {
		h.logger.Error("record results", zap.String("match", h.matchID), zap.Error(err))
	}
}

// advance moves the bot clock by one tick.
func (h *Hub) advance(ctx context.Context) {
	h.tick++
	if h.cfg.Bots.Enabled {
		h.processBots(ctx)
	}
}

func (h *Hub) processBots(ctx context.Context) {
	if h.session.Status() == domain.StatusWaiting {
		if len(h.clients) != 1 || len(h.bots) > 0 {
			h.lonelySince = 0
			return
		}
		if h.lonelySince == 0 {
			h.lonelySince = h.tick
		}
		if h.tick-h.lonelySince < int64(h.cfg.Bots.AutoFillDelaySec*TickRate) {
			return
		}
		h.lonelySince = 0
		h.addBot(ctx)
		return
	}

	if h.session.Status() != domain.StatusInProgress {
		return
	}
	for _, id := range h.botIDs() {
		agent := h.bots[id]
		if !agent.Ready(h.tick) {
			continue
		}
		top, _ := h.session.TopCard(id)
		move, ok := agent.Play(h.session.CardOnTop(), top)
		if !ok {
			continue
		}
		h.applyChoice(ctx, id, move.SymbolID, move.Card)
		if h.session.Status() != domain.StatusInProgress {
			return
		}
		// Missed or banned: look again later.
		if !agent.Ready(h.tick) {
			h.scheduleBot(agent)
		}
	}
}

func (h *Hub) addBot(ctx context.Context) {
	identity, ok := bot.NextIdentity(h.session.Has)
	if !ok {
		h.logger.Warn("no free bot identity")
		return
	}
	agent, err := bot.NewAgent(identity, bot.LevelFor(identity, h.botLevel), h.rng)
	if err != nil {
		h.logger.Error("create bot", zap.String("bot", identity.UserID), zap.Error(err))
		return
	}
	events, err := h.session.Join(identity.UserID, identity.DisplayName)
	if err != nil {
		h.logger.Warn("bot not admitted", zap.String("bot", identity.UserID), zap.Error(err))
		return
	}
	h.bots[identity.UserID] = agent
	h.logger.Info("added bot", zap.String("bot", identity.UserID), zap.String("name", identity.DisplayName),
		zap.Stringer("level", agent.Level))
	h.dispatch(ctx, events)
}

func (h *Hub) evictBot(ctx context.Context) (string, bool) {
	for _, id := range h.botIDs() {
		events, err := h.session.Leave(id)
		if err != nil {
			h.logger.Warn("remove bot", zap.String("bot", id), zap.Error(err))
			continue
		}
		delete(h.bots, id)
		h.dispatch(ctx, events)
		return id, true
	}
	return "", false
}

func (h *Hub) scheduleBot(agent *bot.Agent) {
	agent.Schedule(h.tick, h.cfg.Bots.MinReactionTicks, h.cfg.Bots.MaxReactionTicks)
}

func (h *Hub) botIDs() []string {
	ids := make([]string, 0, len(h.bots))
	for id := range h.bots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *Hub) shutdown() {
	h.session.Terminate()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
	h.metrics.Peers.Set(0)
}

// originChecker allows browsers from the configured origins. "*" allows any origin;
// requests without an Origin header are always allowed.
func originChecker(allow []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(allow))
	for _, o := range allow {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			allowed[o] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
