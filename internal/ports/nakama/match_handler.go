package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math/rand"
	"sort"
	"time"

	"dobble/internal/app"
	"dobble/internal/bot"
	"dobble/internal/config"
	"dobble/internal/domain"
	"dobble/internal/ports"
	"dobble/internal/protocol"

	"github.com/heroiclabs/nakama-common/runtime"
)

// Signals accepted by MatchSignal.
const (
	SignalStart    = "start"
	SignalSnapshot = "snapshot"
)

// MatchState holds the authoritative runtime state for the Nakama match handler.
type MatchState struct {
	MatchID   string
	Tick      int64
	Presences map[string]runtime.Presence // Map UserId -> Presence for targeted messaging
	Session   *app.Session
	Config    config.Config

	BotLevel             bot.BotLevel
	LastSinglePlayerTick int64                 // Tick when a single human started waiting; 0 when not waiting
	Bots                 map[string]*bot.Agent // Active bot agents
	Score                ports.ScorePort
	Recorded             bool // results of the finished session were stored

	rng *rand.Rand
}

func newMatchState(matchID string, cfg config.Config, rng *rand.Rand, clock func() time.Time) *MatchState {
	level, err := bot.ParseLevel(cfg.Bots.Difficulty)
	if err != nil {
		level = bot.BotLevelNormal
	}
	return &MatchState{
		MatchID:   matchID,
		Presences: make(map[string]runtime.Presence),
		Session:   app.NewSession(cfg.Game.Rules(), rng, clock),
		Config:    cfg,
		BotLevel:  level,
		Bots:      make(map[string]*bot.Agent),
		Score:     ports.NopScore{},
		rng:       rng,
	}
}

// GetHumanPlayerCount counts admitted players that are not bots.
func (ms *MatchState) GetHumanPlayerCount() int {
	count := 0
	for _, pl := range ms.Session.Snapshot().Players {
		if !bot.IsBot(pl.ID) {
			count++
		}
	}
	return count
}

// open reports whether the match still admits players.
func (ms *MatchState) open() bool {
	if ms.Session.Status() != domain.StatusWaiting {
		return false
	}
	max := ms.Config.Game.MaxPlayers
	return max == 0 || len(ms.Session.Snapshot().Players) < max
}

// NewMatch is the factory function registered with Nakama.
func NewMatch(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) (runtime.Match, error) {
	return &matchHandler{}, nil
}

type matchHandler struct{}

// MatchInit is called when the match is created.
func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	logger.Debug("MatchInit: Initializing match handler.")

	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
	cfg, err := config.FromEnv(env)
	if err != nil {
		logger.Warn("MatchInit: Ignoring runtime env, using defaults: %v", err)
		cfg = config.Default()
	}

	if cfg.Bots.IdentitiesPath != "" {
		if err := bot.LoadIdentities(cfg.Bots.IdentitiesPath); err != nil {
			logger.Warn("MatchInit: Could not load bot identities: %v", err)
		}
	}

	matchID, _ := ctx.Value(runtime.RUNTIME_CTX_MATCH_ID).(string)
	state := newMatchState(matchID, cfg, rand.New(rand.NewSource(time.Now().UnixNano())), nil)
	if nk != nil {
		state.Score = NewNakamaScoreAdapter(nk)
	}

	label, err := MatchLabel{Open: true, Status: domain.StatusWaiting}.Marshal()
	if err != nil {
		logger.Error("MatchInit: Failed to marshal label: %v", err)
		return nil, 0, ""
	}

	return state, TickRate, label
}

func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, false, "state not found"
	}

	userID := presence.GetUserId()
	if matchState.Session.Status() != domain.StatusWaiting {
		return state, false, app.ErrNotAccepting.Error()
	}
	if matchState.Session.Has(userID) {
		return state, false, app.ErrDuplicatePlayer.Error()
	}
	// A bot seat can always be given up for a human while waiting.
	if !matchState.open() && len(matchState.Bots) == 0 {
		return state, false, "Match full"
	}

	return state, true, ""
}

func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchJoin: state not found")
		return state
	}

	for _, p := range presences {
		userID := p.GetUserId()
		matchState.Presences[userID] = p

		events, err := matchState.Session.Join(userID, p.GetUsername())
		if errors.Is(err, app.ErrSessionFull) {
			if botID, replaced := mh.evictBot(ctx, matchState, dispatcher, logger); replaced {
				logger.Info("MatchJoin: Replacing bot %s (%s) with human %s", bot.GetBotDisplayName(botID), botID, userID)
				events, err = matchState.Session.Join(userID, p.GetUsername())
			}
		}
		if err != nil {
			logger.Warn("MatchJoin: User %s joined but was not admitted: %v", userID, err)
			mh.sendError(matchState, dispatcher, logger, userID, err.Error())
			continue
		}
		mh.dispatchEvents(ctx, matchState, dispatcher, logger, events)
	}

	mh.updateLabel(matchState, dispatcher, logger)
	return matchState
}

// evictBot removes one bot from a waiting session to make room for a human.
func (mh *matchHandler) evictBot(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) (string, bool) {
	for _, botID := range sortedBotIDs(state) {
		events, err := state.Session.Leave(botID)
		if err != nil {
			logger.Warn("evictBot: Failed to remove bot %s: %v", botID, err)
			continue
		}
		delete(state.Bots, botID)
		mh.dispatchEvents(ctx, state, dispatcher, logger, events)
		return botID, true
	}
	return "", false
}

// MatchLeave is called when one or more players leave the match.
func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchLeave: state not found")
		return state
	}

	for _, p := range presences {
		userID := p.GetUserId()
		delete(matchState.Presences, userID)

		events, err := matchState.Session.Leave(userID)
		if err != nil {
			logger.Debug("MatchLeave: User %s was not a player: %v", userID, err)
			continue
		}
		logger.Debug("MatchLeave: User %s left.", userID)
		mh.dispatchEvents(ctx, matchState, dispatcher, logger, events)
	}

	if len(matchState.Presences) == 0 {
		logger.Info("MatchLeave: Terminating match with no humans.")
		matchState.Session.Terminate()
		return nil
	}

	mh.updateLabel(matchState, dispatcher, logger)
	return matchState
}

func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state
	}

	matchState.Tick = tick

	// Messages are applied one at a time, in arrival order.
	for _, msg := range messages {
		switch msg.GetOpCode() {
		case OpStartGame:
			mh.handleStartGame(ctx, matchState, dispatcher, logger, msg.GetUserId())
		case OpChoose:
			mh.handleChoose(ctx, matchState, dispatcher, logger, msg)
		default:
			logger.Warn("MatchLoop: Unknown opcode received: %d", msg.GetOpCode())
		}
	}

	if matchState.Config.Bots.Enabled {
		mh.processBots(ctx, matchState, dispatcher, logger)
	}

	return matchState
}

func (mh *matchHandler) processBots(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	// 1. Add a bot to a lobby holding a single human after the delay.
	if state.Session.Status() == domain.StatusWaiting {
		if state.GetHumanPlayerCount() != 1 || len(state.Bots) > 0 {
			state.LastSinglePlayerTick = 0
			return
		}
		if state.LastSinglePlayerTick == 0 {
			state.LastSinglePlayerTick = state.Tick
			logger.Debug("processBots: Single player detected, starting auto-fill timer.")
		}
		if state.Tick-state.LastSinglePlayerTick < int64(state.Config.Bots.AutoFillDelaySec*TickRate) {
			return
		}
		state.LastSinglePlayerTick = 0
		mh.addBot(ctx, state, dispatcher, logger)
		return
	}

	// 2. Let due bots claim a symbol.
	if state.Session.Status() != domain.StatusInProgress {
		return
	}
	for _, botID := range sortedBotIDs(state) {
		agent := state.Bots[botID]
		if !agent.Ready(state.Tick) {
			continue
		}
		top, _ := state.Session.TopCard(botID)
		move, ok := agent.Play(state.Session.CardOnTop(), top)
		if !ok {
			continue
		}
		logger.Debug("processBots: Bot %s claims %d", botID, move.SymbolID)
		mh.applyChoice(ctx, state, dispatcher, logger, botID, move.SymbolID, move.Card)
		if state.Session.Status() != domain.StatusInProgress {
			return
		}
		// Missed or banned: look again later.
		if !agent.Ready(state.Tick) {
			mh.scheduleBot(state, agent)
		}
	}
}

func (mh *matchHandler) addBot(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	identity, ok := bot.NextIdentity(state.Session.Has)
	if !ok {
		logger.Warn("addBot: No free bot identity.")
		return
	}
	agent, err := bot.NewAgent(identity, bot.LevelFor(identity, state.BotLevel), state.rng)
	if err != nil {
		logger.Error("addBot: Failed to create bot agent for %s: %v", identity.UserID, err)
		return
	}
	events, err := state.Session.Join(identity.UserID, identity.DisplayName)
	if err != nil {
		logger.Warn("addBot: Bot %s not admitted: %v", identity.UserID, err)
		return
	}
	state.Bots[identity.UserID] = agent
	logger.Info("processBots: Added bot %s (%s) at %s", identity.DisplayName, identity.UserID, agent.Level)

	mh.dispatchEvents(ctx, state, dispatcher, logger, events)
	mh.updateLabel(state, dispatcher, logger)
}

func (mh *matchHandler) scheduleBot(state *MatchState, agent *bot.Agent) {
	agent.Schedule(state.Tick, state.Config.Bots.MinReactionTicks, state.Config.Bots.MaxReactionTicks)
}

func (mh *matchHandler) scheduleBots(state *MatchState) {
	for _, agent := range state.Bots {
		mh.scheduleBot(state, agent)
	}
}

func (mh *matchHandler) handleStartGame(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, senderID string) error {
	logger.Info("StartGame: Request received from %q (players=%d)", senderID, len(state.Session.Snapshot().Players))

	events, err := state.Session.Start()
	if err != nil {
		logger.Error("StartGame: Failed to start game: %v", err)
		// A deck that cannot be built is an operator problem.
		if senderID != "" && !errors.Is(err, domain.ErrUnsatisfiableDeckSize) {
			mh.sendError(state, dispatcher, logger, senderID, err.Error())
		}
		return err
	}

	mh.dispatchEvents(ctx, state, dispatcher, logger, events)
	mh.updateLabel(state, dispatcher, logger)
	logger.Info("StartGame: Game started with %d players.", len(state.Session.Snapshot().Players))
	return nil
}

func (mh *matchHandler) handleChoose(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	senderID := msg.GetUserId()
	choose, err := protocol.DecodeChooseJSON(msg.GetData())
	if err != nil {
		logger.Warn("handleChoose: Bad payload from %s: %v", senderID, err)
		mh.sendError(state, dispatcher, logger, senderID, err.Error())
		return
	}
	mh.applyChoice(ctx, state, dispatcher, logger, senderID, choose.SymbolID, choose.ClaimedCard())
}

// applyChoice runs one claim through the session and delivers the outcome.
func (mh *matchHandler) applyChoice(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, userID string, symbol int, claimed domain.Card) {
	events, err := state.Session.HandleChoice(userID, symbol, claimed)
	switch {
	case errors.Is(err, app.ErrPlayerBanned):
		logger.Debug("applyChoice: Ignoring %s while banned.", userID)
		return
	case errors.Is(err, app.ErrUnknownPlayer):
		logger.Warn("applyChoice: Choice from unknown player %s.", userID)
		return
	case err != nil:
		logger.Warn("applyChoice: User %s choice rejected: %v", userID, err)
		mh.sendError(state, dispatcher, logger, userID, err.Error())
		return
	}

	mh.dispatchEvents(ctx, state, dispatcher, logger, events)
}

// dispatchEvents sends session events and reacts to table changes and the end of the session.
func (mh *matchHandler) dispatchEvents(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, events []app.Event) {
	tableChanged := false
	for _, ev := range events {
		if ev.Kind == app.EventGameCard {
			tableChanged = true
		}
		mh.broadcastEvent(state, dispatcher, logger, ev)
	}

	if tableChanged && state.Session.Status() == domain.StatusInProgress {
		mh.scheduleBots(state)
	}
	if state.Session.Status() == domain.StatusOver {
		mh.recordResults(ctx, state, dispatcher, logger)
	}
}

func (mh *matchHandler) recordResults(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	if state.Recorded {
		return
	}
	winnerID, playerIDs, ok := state.Session.Outcome()
	if !ok {
		return
	}
	state.Recorded = true
	if err := state.Score.RecordResults(ctx, state.MatchID, ports.Outcomes(winnerID, playerIDs)); err != nil {
		logger.Error("Failed to record results: %v", err)
	}
	logger.Info("Game over: %s won.", winnerID)
	mh.updateLabel(state, dispatcher, logger)
}

// broadcastEvent handles the conversion and dispatching of session events to Nakama.
func (mh *matchHandler) broadcastEvent(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, ev app.Event) {
	opCode, ok := opCodeForEvent(ev.Kind)
	if !ok {
		logger.Warn("Unknown event kind: %v", ev.Kind)
		return
	}
	data, err := protocol.EncodeEvent(ev)
	if err != nil {
		logger.Error("Failed to marshal event %v: %v", ev.Kind, err)
		return
	}

	// Determine recipients (default to broadcast)
	var recipients []runtime.Presence
	if !ev.Broadcast() {
		for _, uid := range ev.Recipients {
			if p, ok := state.Presences[uid]; ok {
				recipients = append(recipients, p)
			}
		}

		// If we had intended recipients but none are connected (e.g. they are bots),
		// we MUST NOT broadcast to everyone else.
		if len(recipients) == 0 {
			return
		}
	}

	if err := dispatcher.BroadcastMessage(opCode, data, recipients, nil, true); err != nil {
		logger.Error("Failed to send event %v: %v", ev.Kind, err)
	}
}

// sendError sends an error frame to a specific user.
func (mh *matchHandler) sendError(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, userID string, message string) {
	presence, ok := state.Presences[userID]
	if !ok {
		logger.Warn("Cannot send error to %s: Presence not found", userID)
		return
	}
	dispatcher.BroadcastMessage(OpError, protocol.EncodeError(message), []runtime.Presence{presence}, nil, true)
}

func (mh *matchHandler) updateLabel(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	label, err := MatchLabel{
		Open:    state.open(),
		Status:  state.Session.Status(),
		Players: len(state.Session.Snapshot().Players),
	}.Marshal()
	if err != nil {
		logger.Error("UpdateLabel: Failed to marshal: %v", err)
		return
	}
	if err := dispatcher.MatchLabelUpdate(label); err != nil {
		logger.Error("UpdateLabel: Failed to update: %v", err)
	}
}

func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, graceSeconds int) interface{} {
	logger.Debug("MatchTerminate: Match terminated with %d grace seconds", graceSeconds)
	if matchState, ok := state.(*MatchState); ok {
		matchState.Session.Terminate()
	}
	return state
}

// MatchSignal lets the operator start the session or read its snapshot.
func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, "state not found"
	}

	switch data {
	case SignalStart:
		if err := mh.handleStartGame(ctx, matchState, dispatcher, logger, ""); err != nil {
			return matchState, err.Error()
		}
		return matchState, "started"
	case SignalSnapshot:
		b, err := json.Marshal(matchState.Session.Snapshot())
		if err != nil {
			return matchState, err.Error()
		}
		return matchState, string(b)
	default:
		logger.Warn("MatchSignal: Unknown signal %q", data)
		return matchState, "unknown signal"
	}
}

func sortedBotIDs(state *MatchState) []string {
	ids := make([]string, 0, len(state.Bots))
	for id := range state.Bots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
