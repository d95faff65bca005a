// Package gateway is the agent-facing REST + spectator WebSocket surface:
// token auth and rate limiting in front of the lifecycle controller and
// match engine, translating HTTP calls into the controller and engine
// calls that implement them and nothing else.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"time"

	"arena-shooter/internal/config"
	"arena-shooter/internal/lifecycle"
	"arena-shooter/internal/match"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// ErrKind names one of the documented error kinds, shared verbatim with the
// lifecycle package's join errors.
type ErrKind string

const (
	ErrUnauthorized    ErrKind = "UNAUTHORIZED"
	ErrInvalidAPIKey   ErrKind = "INVALID_API_KEY"
	ErrRateLimited     ErrKind = "RATE_LIMITED"
	ErrNoMatch         ErrKind = "NO_MATCH"
	ErrMatchInProgress ErrKind = "MATCH_IN_PROGRESS"
	ErrMatchNotActive  ErrKind = "MATCH_NOT_ACTIVE"
	ErrLobbyFull       ErrKind = "LOBBY_FULL"
	ErrNotInMatch      ErrKind = "NOT_IN_MATCH"
	ErrDead            ErrKind = "DEAD"
	ErrEliminated      ErrKind = "ELIMINATED"
	ErrInvalidAction   ErrKind = "INVALID_ACTION"
	ErrJoinFailed      ErrKind = "JOIN_FAILED"
	ErrInternal        ErrKind = "INTERNAL_ERROR"
)

var errKindStatus = map[ErrKind]int{
	ErrUnauthorized:    http.StatusUnauthorized,
	ErrInvalidAPIKey:   http.StatusUnauthorized,
	ErrRateLimited:     http.StatusTooManyRequests,
	ErrNoMatch:         http.StatusNotFound,
	ErrMatchInProgress: http.StatusBadRequest,
	ErrMatchNotActive:  http.StatusBadRequest,
	ErrLobbyFull:       http.StatusBadRequest,
	ErrNotInMatch:      http.StatusBadRequest,
	ErrDead:            http.StatusBadRequest,
	ErrEliminated:      http.StatusBadRequest,
	ErrInvalidAction:   http.StatusBadRequest,
	ErrJoinFailed:      http.StatusBadRequest,
	ErrInternal:        http.StatusInternalServerError,
}

// Gateway owns the rate limiter, identity cache, and spectator hub in front
// of the lifecycle controller. Construct with New, mount Router() on an
// http.Server, and start Hub().Run() plus Hub().PumpSnapshots(controller,
// tickInterval, stop) before serving.
type Gateway struct {
	ctrl     *lifecycle.Controller
	cfg      config.GatewayConfig
	limiter  *TokenRateLimiter
	identity *IdentityCache
	hub      *Hub
}

// New wires a Gateway around an already-started lifecycle.Controller. hub
// must be the same Hub whose SnapshotSink was passed to lifecycle.New as
// the controller's EventSink, so the one-shot events the controller
// forwards and the /spectator/ws route reach the same clients; pass nil to
// have New create a fresh, unwired one (tests that never touch the
// controller's event path).
func New(ctrl *lifecycle.Controller, cfg config.GatewayConfig, identity *IdentityCache, hub *Hub) *Gateway {
	if hub == nil {
		hub = NewHub()
	}
	return &Gateway{
		ctrl:     ctrl,
		cfg:      cfg,
		limiter:  NewTokenRateLimiter(cfg.ActionsPerSecond, int(cfg.ActionsPerSecond)*2),
		identity: identity,
		hub:      hub,
	}
}

// Hub exposes the spectator broadcast hub so main can start its Run loop
// and feed it matches.EventSink events.
func (g *Gateway) Hub() *Hub { return g.hub }

// Router builds the chi mux as a pure factory, safe to mount in httptest
// without starting any goroutines itself.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(metricsMiddleware)
	r.Use(corsMiddleware())

	r.Get("/status", g.handleStatus)
	r.Get("/spectator", g.handleSpectator)
	r.Get("/spectator/ws", g.hub.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(g.authMiddleware)
		r.Post("/join", g.handleJoin)
		r.Get("/state", g.handleState)
		r.With(g.rateLimitMiddleware).Post("/action", g.handleAction)
	})

	return r
}

func corsMiddleware() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		RecordRequest(r.Method, r.URL.Path, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// identityKey is the context key the auth middleware stores the resolved
// identity under.
type identityKey struct{}

func (g *Gateway) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, ErrUnauthorized, "missing bearer token")
			return
		}
		id, err := g.identity.Resolve(r.Context(), token)
		if err != nil {
			RecordIdentityFailure()
			if errors.Is(err, ErrInvalidToken) {
				writeError(w, ErrInvalidAPIKey, "invalid api key")
				return
			}
			writeError(w, ErrUnauthorized, "identity verification unavailable")
			return
		}
		info := lifecycle.AgentInfo{AgentName: id.AgentName, Wallet: id.Wallet}
		ctx := context.WithValue(r.Context(), identityKey{}, identityWithToken{AgentInfo: info, Token: token})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type identityWithToken struct {
	lifecycle.AgentInfo
	Token string
}

func identityFrom(r *http.Request) identityWithToken {
	v, _ := r.Context().Value(identityKey{}).(identityWithToken)
	return v
}

func (g *Gateway) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := identityFrom(r).Token
		if !g.limiter.Allow(token) {
			RecordRateLimitRejection()
			retry := g.limiter.RetryAfter(token)
			writeRateLimited(w, retry)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := g.ctrl.Status()
	out := map[string]interface{}{"serverTime": time.Now().UnixMilli()}

	if status.CurrentMatch != nil {
		m := status.CurrentMatch
		out["currentMatch"] = map[string]interface{}{
			"id": m.ID, "phase": m.Phase, "playerCount": m.PlayerCount,
		}
	} else {
		out["currentMatch"] = nil
	}
	if status.NextMatch != nil {
		n := status.NextMatch
		out["nextMatch"] = map[string]interface{}{
			"id": n.ID, "lobbyOpensAt": n.LobbyOpensAt.UnixMilli(), "startsAt": n.StartsAt.UnixMilli(),
		}
	} else {
		out["nextMatch"] = nil
	}
	writeJSON(w, http.StatusOK, out)
}

func (g *Gateway) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"displayName"`
		StrategyTag string `json:"strategyTag"`
		CharacterID string `json:"characterId"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	id := identityFrom(r)
	displayName := req.DisplayName
	if displayName == "" {
		displayName = id.AgentName
	}

	result, err := g.ctrl.JoinMatch(id.AgentInfo, displayName, req.StrategyTag, req.CharacterID)
	if err != nil {
		var joinErr *lifecycle.JoinError
		if errors.As(err, &joinErr) {
			writeError(w, ErrKind(joinErr.Kind), joinErr.Message)
			return
		}
		writeError(w, ErrJoinFailed, err.Error())
		return
	}

	resp := map[string]interface{}{
		"success": true, "playerId": result.PlayerID, "matchId": result.MatchID,
		"message": "joined",
	}
	if !result.StartsAt.IsZero() {
		resp["startsAt"] = result.StartsAt.UnixMilli()
	}
	writeJSON(w, http.StatusOK, resp)
}

// resolvePlayer looks up the calling agent's player id in the current
// match, writing the documented error and returning ok=false if absent.
func (g *Gateway) resolvePlayer(w http.ResponseWriter, r *http.Request) (playerID string, ok bool) {
	id := identityFrom(r)
	playerID, _, found := g.ctrl.PlayerIDFor(id.AgentName)
	if !found {
		writeError(w, ErrNotInMatch, "not in current match")
		return "", false
	}
	return playerID, true
}

func (g *Gateway) handleState(w http.ResponseWriter, r *http.Request) {
	playerID, ok := g.resolvePlayer(w, r)
	if !ok {
		return
	}
	e := g.ctrl.CurrentEngine()
	if e == nil {
		writeError(w, ErrNoMatch, "no open match")
		return
	}
	writeJSON(w, http.StatusOK, roundAgentSnapshot(e.GetAgentSnapshot(playerID)))
}

func (g *Gateway) handleSpectator(w http.ResponseWriter, r *http.Request) {
	e := g.ctrl.CurrentEngine()
	if e == nil {
		writeError(w, ErrNoMatch, "no open match")
		return
	}
	writeJSON(w, http.StatusOK, roundSnapshot(e.GetSnapshot()))
}

func (g *Gateway) handleAction(w http.ResponseWriter, r *http.Request) {
	playerID, ok := g.resolvePlayer(w, r)
	if !ok {
		return
	}
	e := g.ctrl.CurrentEngine()
	if e == nil {
		writeError(w, ErrNoMatch, "no open match")
		return
	}
	if e.Phase() != match.PhaseActive {
		writeError(w, ErrMatchNotActive, "match is not active")
		return
	}
	player := e.GetPlayer(playerID)
	if player == nil {
		writeError(w, ErrNotInMatch, "not in current match")
		return
	}

	var req struct {
		Action   string  `json:"action"`
		Angle    float64 `json:"angle"`
		AimAngle float64 `json:"aimAngle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidAction, "malformed request body")
		return
	}

	if !player.Alive && req.Action != "stop" {
		if player.Eliminated {
			writeError(w, ErrEliminated, "eliminated from this match")
		} else {
			writeError(w, ErrDead, "waiting to respawn")
		}
		return
	}

	actions := e.Actions()
	switch req.Action {
	case "move":
		actions.Move(playerID, req.Angle)
	case "shoot":
		actions.Shoot(playerID, req.AimAngle, 1.0)
	case "melee":
		actions.Melee(playerID)
	case "pickup":
		actions.Pickup(playerID)
	case "stop":
		actions.Stop(playerID)
	default:
		writeError(w, ErrInvalidAction, "unknown action")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("gateway: response encode failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, kind ErrKind, message string) {
	status, ok := errKindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]interface{}{"success": false, "error": string(kind), "message": message})
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false, "error": string(ErrRateLimited), "message": "rate limited",
		"retryAfterMs": retryAfter.Milliseconds(),
	})
}

// round2 / round1 round broadcast output: positions to two decimals,
// angles to one.
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round1(v float64) float64 { return math.Round(v*10) / 10 }

func roundPlayerView(p match.PlayerView) match.PlayerView {
	p.X, p.Y, p.Z = round2(p.X), round2(p.Y), round2(p.Z)
	p.Angle = round1(p.Angle)
	return p
}

func roundPickupView(p match.PickupView) match.PickupView {
	p.X, p.Y, p.Z = round2(p.X), round2(p.Y), round2(p.Z)
	return p
}

func roundSnapshot(s match.Snapshot) match.Snapshot {
	players := make([]match.PlayerView, len(s.Players))
	for i, p := range s.Players {
		players[i] = roundPlayerView(p)
	}
	pickups := make([]match.PickupView, len(s.Pickups))
	for i, p := range s.Pickups {
		pickups[i] = roundPickupView(p)
	}
	s.Players = players
	s.Pickups = pickups
	return s
}

func roundAgentSnapshot(a match.AgentSnapshot) match.AgentSnapshot {
	a.Snapshot = roundSnapshot(a.Snapshot)
	if a.You != nil {
		you := roundPlayerView(*a.You)
		a.You = &you
	}
	return a
}
