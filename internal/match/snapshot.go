package match

import (
	"sort"

	"arena-shooter/internal/arena"
)

// PlayerView is one player's row in a broadcast snapshot.
type PlayerView struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Alive       bool    `json:"alive"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	Angle       float64 `json:"angle"`
	Health      int     `json:"health"`
	Lives       int     `json:"lives"`
	Weapon      string  `json:"weapon"`
	Ammo        int     `json:"ammo"`
	Kills       int     `json:"kills"`
	Score       int     `json:"score"`
	CharacterID string  `json:"characterId"`
	Moving      bool    `json:"moving"`
}

// PickupView is one pickup's row in a broadcast snapshot.
type PickupView struct {
	ID   string  `json:"id"`
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

// ArenaView describes the playable bounds and the shared movement speed,
// constant for the life of the match.
type ArenaView struct {
	MinX          float64 `json:"minX"`
	MaxX          float64 `json:"maxX"`
	MinZ          float64 `json:"minZ"`
	MaxZ          float64 `json:"maxZ"`
	MovementSpeed float64 `json:"movementSpeed"`
}

// Snapshot is the spectator broadcast and the basis for per-agent views. It
// is produced once at the end of every tick and published as an immutable
// value so readers never race the tick loop's next write.
type Snapshot struct {
	MatchID       string              `json:"matchId"`
	Phase         string              `json:"phase"`
	Tick          uint64              `json:"tick"`
	TimeRemaining float64             `json:"timeRemaining"`
	Arena         ArenaView           `json:"arena"`
	Players       []PlayerView        `json:"players"`
	Pickups       []PickupView        `json:"pickups"`
	Leaderboard   []LeaderboardEntry  `json:"leaderboard"`
	Obstacles     []arena.AABB        `json:"obstacles"`
}

// AgentSnapshot is the per-agent view: the shared snapshot with the calling
// agent split out into You and removed from Players.
type AgentSnapshot struct {
	Snapshot
	You *PlayerView `json:"you,omitempty"`
}

func playerView(p *Player) PlayerView {
	return PlayerView{
		ID: p.ID, Name: p.DisplayName, Alive: p.Alive,
		X: p.X, Y: p.Y, Z: p.Z, Angle: p.Angle,
		Health: p.Health, Lives: p.Lives,
		Weapon: p.Weapon, Ammo: p.Ammo,
		Kills: p.Kills, Score: p.Score(),
		CharacterID: p.CharacterID, Moving: p.Moving,
	}
}

func leaderboardEntry(p *Player) LeaderboardEntry {
	return LeaderboardEntry{
		ID: p.ID, Name: p.DisplayName, Kills: p.Kills, Deaths: p.Deaths, Lives: p.Lives,
		Alive: p.Alive, Score: p.Score(), SurvivalTime: p.SurvivalTime,
	}
}

// buildLeaderboard sorts by survival time desc, then kills desc, then score
// desc, the same ordering the lifecycle controller uses to settle a match.
func buildLeaderboard(players []*Player) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, len(players))
	for i, p := range players {
		entries[i] = leaderboardEntry(p)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.SurvivalTime != b.SurvivalTime {
			return a.SurvivalTime > b.SurvivalTime
		}
		if a.Kills != b.Kills {
			return a.Kills > b.Kills
		}
		return a.Score > b.Score
	})
	return entries
}

// ProduceSnapshot builds the spectator-facing snapshot from the current
// match state. orderedPlayers must be a stable-ordered slice (the engine
// keeps join order) so broadcasts don't jitter player ordering tick to tick.
func ProduceSnapshot(matchID, phase string, tick uint64, timeRemaining float64, arenaView ArenaView, orderedPlayers []*Player, pickups []*WeaponPickup, obstacles []arena.AABB) Snapshot {
	players := make([]PlayerView, len(orderedPlayers))
	for i, p := range orderedPlayers {
		players[i] = playerView(p)
	}

	pickupViews := make([]PickupView, 0, len(pickups))
	for _, pk := range pickups {
		if pk.Taken {
			continue
		}
		pickupViews = append(pickupViews, PickupView{ID: pk.ID, Type: pk.Type, X: pk.X, Y: pk.Y, Z: pk.Z})
	}

	return Snapshot{
		MatchID: matchID, Phase: phase, Tick: tick, TimeRemaining: timeRemaining,
		Arena: arenaView, Players: players, Pickups: pickupViews,
		Leaderboard: buildLeaderboard(orderedPlayers), Obstacles: obstacles,
	}
}

// ForAgent splits the calling agent's row out into You, removing it from
// Players. If playerID isn't present (spectator or stale view), You is nil
// and the full player list is left intact.
func (s Snapshot) ForAgent(playerID string) AgentSnapshot {
	out := AgentSnapshot{Snapshot: s}
	if playerID == "" {
		return out
	}
	filtered := make([]PlayerView, 0, len(s.Players))
	for _, pv := range s.Players {
		if pv.ID == playerID {
			v := pv
			out.You = &v
			continue
		}
		filtered = append(filtered, pv)
	}
	out.Players = filtered
	return out
}
