package lifecycle

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"arena-shooter/internal/config"
)

// AgentJoin is one row recorded into match_players at join time.
type AgentJoin struct {
	AgentName   string
	APIKey      string
	PlayerID    string
	MatchID     string
	GameType    string
	StrategyTag string
}

// FinalScore is one agent's closing line, recorded into match_players at
// match end.
type FinalScore struct {
	AgentName string
	Score     int
	Kills     int
	Deaths    int
}

// MatchEndRecord is the full match-end write: the matches row plus every
// participant's final score.
type MatchEndRecord struct {
	MatchID         string
	WinnerAgentName string
	EndedAt         time.Time
	FinalScores     []FinalScore
	GameType        string
}

// Store is the persistence sink the lifecycle controller writes through.
// Every method is best-effort: callers log and continue on error rather
// than stalling a tick.
type Store interface {
	EnsureMatchExists(ctx context.Context, id, gameType string) error
	RecordAgentJoin(ctx context.Context, join AgentJoin) error
	RecordMatchEnd(ctx context.Context, end MatchEndRecord) error
	GetHighestMatchID(ctx context.Context, gameType string) (int, error)
	Close()
}

// noopStore is used when DATABASE_URL is unset: persistence silently no-ops
// and match ids start from 1.
type noopStore struct{}

func (noopStore) EnsureMatchExists(context.Context, string, string) error       { return nil }
func (noopStore) RecordAgentJoin(context.Context, AgentJoin) error              { return nil }
func (noopStore) RecordMatchEnd(context.Context, MatchEndRecord) error          { return nil }
func (noopStore) GetHighestMatchID(context.Context, string) (int, error)        { return 0, nil }
func (noopStore) Close()                                                       {}

// pgStore is the append-only Postgres sink for the matches/match_players
// tables.
type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore connects to cfg.DatabaseURL, or returns a no-op store if it's
// empty, persistence is optional infrastructure, never load-bearing for
// the simulation itself.
func NewStore(ctx context.Context, cfg config.PersistenceConfig) (Store, error) {
	if cfg.DatabaseURL == "" {
		log.Println("lifecycle: DATABASE_URL unset, persistence disabled")
		return noopStore{}, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &pgStore{pool: pool}, nil
}

func (s *pgStore) Close() { s.pool.Close() }

func (s *pgStore) EnsureMatchExists(ctx context.Context, id, gameType string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO matches (id, game_type) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`, id, gameType)
	return err
}

func (s *pgStore) RecordAgentJoin(ctx context.Context, j AgentJoin) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO match_players (match_id, player_id, agent_name, strategy_tag)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (match_id, agent_name) DO NOTHING`,
		j.MatchID, j.PlayerID, j.AgentName, j.StrategyTag)
	return err
}

func (s *pgStore) RecordMatchEnd(ctx context.Context, end MatchEndRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE matches SET winner_name = $2, ended_at = $3 WHERE id = $1`,
		end.MatchID, nullIfEmpty(end.WinnerAgentName), end.EndedAt); err != nil {
		return err
	}
	for _, fs := range end.FinalScores {
		if _, err := tx.Exec(ctx, `
			UPDATE match_players SET score = $3, kills = $4, deaths = $5
			WHERE match_id = $1 AND agent_name = $2`,
			end.MatchID, fs.AgentName, fs.Score, fs.Kills, fs.Deaths); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *pgStore) GetHighestMatchID(ctx context.Context, gameType string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(CAST(SUBSTRING(id FROM '[0-9]+$') AS INTEGER)), 0)
		FROM matches WHERE game_type = $1`, gameType).Scan(&n)
	return n, err
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
