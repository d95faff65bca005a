// Package lifecycle owns the one-match-at-a-time orchestration around the
// match engine: opening a lobby, admitting joins, starting the countdown,
// and, on match end, settling bets, persisting results, and scheduling the
// next lobby. Match-end handling runs on the engine's tick goroutine (the
// engine publishes matchEnd from inside its tick); it takes the controller's
// lock only briefly and hands settlement and persistence calls to background
// goroutines. Everything else is either a direct Engine method (guarded by
// the engine's own lock) or a best-effort background notification.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"arena-shooter/internal/arena"
	"arena-shooter/internal/bot"
	"arena-shooter/internal/config"
	"arena-shooter/internal/match"
	"arena-shooter/internal/physics"
)

const gameType = "shooter"

// AgentInfo is what the gateway already resolved about the joining agent
// (identity verification happens upstream of the controller, never on the
// tick-adjacent path).
type AgentInfo struct {
	AgentName string
	Wallet    string
}

// JoinResult mirrors the POST /join response body.
type JoinResult struct {
	PlayerID string
	MatchID  string
	StartsAt time.Time
}

// ErrKind names one of the gateway's documented error kinds so handlers can
// map it straight to an HTTP status without string matching.
type ErrKind string

const (
	ErrMatchInProgress ErrKind = "MATCH_IN_PROGRESS"
	ErrLobbyFull       ErrKind = "LOBBY_FULL"
	ErrJoinFailed      ErrKind = "JOIN_FAILED"
)

// JoinError carries a documented error kind alongside a human message.
type JoinError struct {
	Kind    ErrKind
	Message string
}

func (e *JoinError) Error() string { return e.Message }

// Controller owns exactly one Match at a time, cycling lobby -> countdown ->
// active -> finished -> (settle, persist) -> lobby.
type Controller struct {
	matchCfg config.MatchConfig
	botCfg   config.BotConfig
	geo      *arena.Geometry
	world    *physics.World
	store    Store
	settle   Settlement
	sink     match.EventSink // downstream fan-out (the gateway's websocket hub)

	mu             sync.Mutex
	nextMatchID    int
	engine         *match.Engine
	participants   map[string]string // agentName -> playerID, reset per lobby
	countdownTimer *time.Timer
	resultsTimer   *time.Timer
	spawnIdx       int
	lobbyOpenedAt  time.Time
}

// New constructs a controller. Call Start once, at process startup, before
// any join traffic is routed to it.
func New(matchCfg config.MatchConfig, botCfg config.BotConfig, geo *arena.Geometry, world *physics.World, store Store, settle Settlement, sink match.EventSink) *Controller {
	if sink == nil {
		sink = discardSink{}
	}
	return &Controller{
		matchCfg: matchCfg,
		botCfg:   botCfg,
		geo:      geo,
		world:    world,
		store:    store,
		settle:   settle,
		sink:     sink,
	}
}

type discardSink struct{}

func (discardSink) Publish(match.Event) {}

// Start queries the persistence sink for the highest prior match id and
// opens the first lobby.
func (c *Controller) Start(ctx context.Context) error {
	n, err := c.store.GetHighestMatchID(ctx, gameType)
	if err != nil {
		log.Printf("lifecycle: GetHighestMatchID failed, starting from 1: %v", err)
		n = 0
	}
	c.mu.Lock()
	c.nextMatchID = n + 1
	c.mu.Unlock()
	c.openLobby()
	return nil
}

// CurrentEngine returns the live engine for gateway reads (/state,
// /spectator). May be nil briefly between a match finishing and the next
// lobby opening.
func (c *Controller) CurrentEngine() *match.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

// StatusView is the GET /status response shape: whichever of currentMatch
// (actively running or just finished) and nextMatch (lobby/countdown still
// accepting joins) applies to the engine's present phase.
type StatusView struct {
	CurrentMatch *MatchStatus
	NextMatch    *NextMatchStatus
}

// MatchStatus describes a match that is active or has just finished.
type MatchStatus struct {
	ID          string
	Phase       string
	PlayerCount int
	StartsAt    time.Time
}

// NextMatchStatus describes the open lobby waiting for the countdown (or
// still waiting for a second player) to elapse.
type NextMatchStatus struct {
	ID           string
	LobbyOpensAt time.Time
	StartsAt     time.Time
}

// Status reports the current/next match split the gateway's /status
// endpoint serializes.
func (c *Controller) Status() StatusView {
	c.mu.Lock()
	e := c.engine
	c.mu.Unlock()
	if e == nil {
		return StatusView{}
	}

	switch e.Phase() {
	case match.PhaseActive, match.PhaseFinished:
		return StatusView{CurrentMatch: &MatchStatus{
			ID: e.MatchID(), Phase: string(e.Phase()), PlayerCount: e.PlayerCount(),
		}}
	default:
		c.mu.Lock()
		opensAt := c.lobbyOpenedAt
		c.mu.Unlock()
		return StatusView{NextMatch: &NextMatchStatus{
			ID: e.MatchID(), LobbyOpensAt: opensAt, StartsAt: c.startsAt(e),
		}}
	}
}

// openLobby instantiates a fresh Match via the engine, clears participants,
// and tells settlement betting is open.
func (c *Controller) openLobby() {
	c.mu.Lock()
	id := fmt.Sprintf("shooter_%d", c.nextMatchID)
	c.nextMatchID++
	e := match.NewEngine(id, c.matchCfg, c.geo, c.world, c)
	e.SetBotStep(bot.NewBrain(c.botCfg, c.matchCfg).Step)
	e.Start()
	c.engine = e
	c.participants = make(map[string]string)
	c.spawnIdx = 0
	c.lobbyOpenedAt = time.Now()
	c.mu.Unlock()

	log.Printf("lifecycle: lobby open for %s", id)
	c.sink.Publish(match.NewLobbyOpenEvent(id))

	fireAndForget(5*time.Second, "openBetting", func(ctx context.Context) error {
		return c.settle.OpenBetting(ctx, id, nil, true)
	})
	fireAndForget(10*time.Second, "ensureMatchExists", func(ctx context.Context) error {
		return c.store.EnsureMatchExists(ctx, id, gameType)
	})
}

// JoinMatch admits info.AgentName into the current match. Re-entry with the
// same agent name returns the existing player id (idempotent per agent).
func (c *Controller) JoinMatch(info AgentInfo, displayName, strategyTag, characterID string) (JoinResult, error) {
	c.mu.Lock()
	e := c.engine
	if e == nil {
		c.mu.Unlock()
		return JoinResult{}, &JoinError{Kind: ErrJoinFailed, Message: "no open match"}
	}
	matchID := e.MatchID()

	if playerID, ok := c.participants[info.AgentName]; ok {
		c.mu.Unlock()
		return JoinResult{PlayerID: playerID, MatchID: matchID, StartsAt: c.startsAt(e)}, nil
	}

	phase := e.Phase()
	if phase != match.PhaseLobby && phase != match.PhaseCountdown {
		c.mu.Unlock()
		return JoinResult{}, &JoinError{Kind: ErrMatchInProgress, Message: "match already active"}
	}
	if e.PlayerCount() >= c.matchCfg.MaxPlayers {
		c.mu.Unlock()
		return JoinResult{}, &JoinError{Kind: ErrLobbyFull, Message: "lobby full"}
	}

	playerID := fmt.Sprintf("%s_p%d", matchID, len(c.participants)+1)
	c.participants[info.AgentName] = playerID
	spawn := c.nextSpawnPoint()
	c.mu.Unlock()

	p := match.NewPlayer(playerID, displayName, strategyTag, characterID, false, "", time.Now().UnixMilli())
	e.AddPlayer(p, spawn)

	if e.Phase() == match.PhaseCountdown {
		c.scheduleCountdown(e)
	}

	fireAndForget(5*time.Second, "addBettingAgent", func(ctx context.Context) error {
		return c.settle.AddBettingAgent(ctx, matchID, info.AgentName)
	})
	fireAndForget(5*time.Second, "recordAgentJoin", func(ctx context.Context) error {
		return c.store.RecordAgentJoin(ctx, AgentJoin{
			AgentName: info.AgentName, APIKey: "", PlayerID: playerID,
			MatchID: matchID, GameType: gameType, StrategyTag: strategyTag,
		})
	})

	return JoinResult{PlayerID: playerID, MatchID: matchID, StartsAt: c.startsAt(e)}, nil
}

// PlayerIDFor looks up the player id already assigned to agentName in the
// current match, without joining. Used by the gateway to resolve /state and
// /action calls to a player id after the initial /join.
func (c *Controller) PlayerIDFor(agentName string) (playerID, matchID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil {
		return "", "", false
	}
	pid, found := c.participants[agentName]
	if !found {
		return "", "", false
	}
	return pid, c.engine.MatchID(), true
}

func (c *Controller) nextSpawnPoint() arena.Vec3 {
	if len(c.geo.SpawnPoints) == 0 {
		return arena.Vec3{}
	}
	pt := c.geo.SpawnPoints[c.spawnIdx%len(c.geo.SpawnPoints)]
	c.spawnIdx++
	return pt
}

func (c *Controller) startsAt(e *match.Engine) time.Time {
	if ms := e.CountdownEndsAtMs(); ms > 0 {
		return time.UnixMilli(ms)
	}
	return time.Time{}
}

// scheduleCountdown arms the timer that calls startMatch once the lobby
// countdown elapses. Only the first join into countdown schedules it; later
// joins see an already-running timer.
func (c *Controller) scheduleCountdown(e *match.Engine) {
	c.mu.Lock()
	if c.countdownTimer != nil {
		c.mu.Unlock()
		return
	}
	endsAt := time.UnixMilli(e.CountdownEndsAtMs())
	delay := time.Until(endsAt)
	if delay < 0 {
		delay = 0
	}
	c.countdownTimer = time.AfterFunc(delay, func() { c.startMatch(e) })
	c.mu.Unlock()
}

// startMatch closes the betting window and transitions the engine to
// active.
func (c *Controller) startMatch(e *match.Engine) {
	matchID := e.MatchID()
	fireAndForget(5*time.Second, "closeBetting", func(ctx context.Context) error {
		return c.settle.CloseBetting(ctx, matchID)
	})
	if err := e.StartMatch(time.Now()); err != nil {
		log.Printf("lifecycle: %v", err)
	}
}

// Publish implements match.EventSink. Every event is forwarded downstream;
// matchEnd additionally drives settlement, persistence, and the next
// lobby's scheduling.
func (c *Controller) Publish(ev match.Event) {
	c.sink.Publish(ev)
	if ev.Type == match.EventMatchEnd && ev.MatchEnd != nil {
		c.onMatchEnd(*ev.MatchEnd)
	}
}

func (c *Controller) onMatchEnd(end match.MatchEndEvent) {
	log.Printf("lifecycle: match %s finished, winner=%s draw=%v", end.MatchID, end.WinnerID, end.IsDraw)

	c.mu.Lock()
	if c.countdownTimer != nil {
		c.countdownTimer.Stop()
		c.countdownTimer = nil
	}
	c.mu.Unlock()

	winnerName := c.agentNameFor(end.WinnerID)
	var winnerNames, winnerWallets []string
	if winnerName != "" {
		winnerNames = []string{winnerName}
	}

	scores := make([]FinalScore, 0, len(end.Leaderboard))
	for _, row := range end.Leaderboard {
		scores = append(scores, FinalScore{AgentName: c.agentNameFor(row.ID), Score: row.Score, Kills: row.Kills, Deaths: row.Deaths})
	}

	fireAndForget(5*time.Second, "resolveMatch", func(ctx context.Context) error {
		return c.settle.ResolveMatch(ctx, MatchResult{
			MatchID: end.MatchID, WinnerAgentNames: winnerNames,
			WinnerAgentWallets: winnerWallets, IsDraw: end.IsDraw,
		})
	})
	fireAndForget(10*time.Second, "recordMatchEnd", func(ctx context.Context) error {
		return c.store.RecordMatchEnd(ctx, MatchEndRecord{
			MatchID: end.MatchID, WinnerAgentName: winnerName,
			EndedAt: time.Now(), FinalScores: scores, GameType: gameType,
		})
	})

	c.resultsTimer = time.AfterFunc(c.matchCfg.ResultsDuration(), c.openLobby)
}

// agentNameFor reverse-looks-up a player id in the participants map. It takes
// c.mu itself, so the caller must not hold it; the lock guards against
// Publish racing a late join response.
func (c *Controller) agentNameFor(playerID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for agentName, pid := range c.participants {
		if pid == playerID {
			return agentName
		}
	}
	return ""
}
