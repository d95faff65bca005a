package match

// EventType distinguishes the one-shot events broadcast on the spectator
// channel alongside the per-tick snapshot, using a typed
// event-log envelope but sized for live broadcast rather than replay.
type EventType string

const (
	EventShot      EventType = "shot"
	EventHit       EventType = "hit"
	EventMatchEnd  EventType = "matchEnd"
	EventLobbyOpen EventType = "lobbyOpen"
)

// Event is the envelope pushed over the shooter channel: Type selects which
// of the payload fields is populated.
type Event struct {
	Type EventType `json:"type"`

	Shot      *ShotEvent      `json:"shot,omitempty"`
	Hit       *HitEvent       `json:"hit,omitempty"`
	MatchEnd  *MatchEndEvent  `json:"matchEnd,omitempty"`
	LobbyOpen *LobbyOpenEvent `json:"lobbyOpen,omitempty"`
}

// ShotEvent reports one fired pellet's tracer, hit or miss.
type ShotEvent struct {
	FromX     float64 `json:"fromX"`
	FromZ     float64 `json:"fromZ"`
	ToX       float64 `json:"toX"`
	ToZ       float64 `json:"toZ"`
	Weapon    string  `json:"weapon"`
	ShooterID string  `json:"shooterId"`
	Hit       bool    `json:"hit"`
}

// HitEvent reports one resolved hit's damage outcome.
type HitEvent struct {
	VictimID string  `json:"victimId"`
	Damage   int     `json:"damage"`
	Weapon   string  `json:"weapon"`
	KillerID string  `json:"killerId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Killed   bool    `json:"killed"`
}

// LeaderboardEntry is one row of the final or running leaderboard.
type LeaderboardEntry struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Kills        int     `json:"kills"`
	Deaths       int     `json:"deaths"`
	Lives        int     `json:"lives"`
	Alive        bool    `json:"alive"`
	Score        int     `json:"score"`
	SurvivalTime float64 `json:"survivalTime"`
}

// MatchEndEvent reports the final standings of a finished match.
type MatchEndEvent struct {
	MatchID     string              `json:"matchId"`
	Leaderboard []LeaderboardEntry  `json:"leaderboard"`
	WinnerID    string              `json:"winnerId,omitempty"`
	IsDraw      bool                `json:"isDraw"`
}

// LobbyOpenEvent announces a new lobby accepting joins.
type LobbyOpenEvent struct {
	MatchID string `json:"matchId"`
}

func newShotEvent(e ShotEvent) Event         { return Event{Type: EventShot, Shot: &e} }
func newHitEvent(e HitEvent) Event           { return Event{Type: EventHit, Hit: &e} }
func newMatchEndEvent(e MatchEndEvent) Event { return Event{Type: EventMatchEnd, MatchEnd: &e} }

// NewLobbyOpenEvent builds the lobbyOpen broadcast. Exported because, unlike
// the engine's own shot/hit/matchEnd events, lobbyOpen is emitted by the
// lifecycle controller the moment it instantiates a fresh Match.
func NewLobbyOpenEvent(matchID string) Event {
	return Event{Type: EventLobbyOpen, LobbyOpen: &LobbyOpenEvent{MatchID: matchID}}
}
