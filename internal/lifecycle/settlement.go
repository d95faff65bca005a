package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"arena-shooter/internal/config"
)

// MatchResult is the payload resolveMatch sends once a match finishes.
type MatchResult struct {
	MatchID            string
	WinnerAgentNames    []string
	WinnerAgentWallets  []string
	IsDraw              bool
}

// Settlement is the external betting collaborator the lifecycle controller
// notifies across a match's lifecycle. Every call is best-effort: failures
// are logged, never propagated back into the tick loop.
type Settlement interface {
	OpenBetting(ctx context.Context, matchID string, agentNames []string, closeable bool) error
	AddBettingAgent(ctx context.Context, matchID, name string) error
	CloseBetting(ctx context.Context, matchID string) error
	ResolveMatch(ctx context.Context, result MatchResult) error
}

type noopSettlement struct{}

func (noopSettlement) OpenBetting(context.Context, string, []string, bool) error { return nil }
func (noopSettlement) AddBettingAgent(context.Context, string, string) error     { return nil }
func (noopSettlement) CloseBetting(context.Context, string) error               { return nil }
func (noopSettlement) ResolveMatch(context.Context, MatchResult) error          { return nil }

// httpSettlement is a thin bounded-timeout REST client: marshal body, bounded
// client, treat any status >=400 as an error.
type httpSettlement struct {
	baseURL string
	client  *http.Client
}

// NewSettlement returns a no-op client when cfg.BaseURL is empty,
// settlement notifications are optional, never load-bearing for the match.
func NewSettlement(cfg config.SettlementConfig) Settlement {
	if cfg.BaseURL == "" {
		log.Println("lifecycle: SETTLEMENT_URL unset, settlement notifications disabled")
		return noopSettlement{}
	}
	return &httpSettlement{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (s *httpSettlement) post(ctx context.Context, path string, body interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("settlement %s returned %d: %s", path, resp.StatusCode, string(respBody))
	}
	return nil
}

func (s *httpSettlement) OpenBetting(ctx context.Context, matchID string, agentNames []string, closeable bool) error {
	return s.post(ctx, "/openBetting", map[string]interface{}{
		"matchId": matchID, "agentNames": agentNames, "closeable": closeable,
	})
}

func (s *httpSettlement) AddBettingAgent(ctx context.Context, matchID, name string) error {
	return s.post(ctx, "/addBettingAgent", map[string]interface{}{"matchId": matchID, "name": name})
}

func (s *httpSettlement) CloseBetting(ctx context.Context, matchID string) error {
	return s.post(ctx, "/closeBetting", map[string]interface{}{"matchId": matchID})
}

func (s *httpSettlement) ResolveMatch(ctx context.Context, result MatchResult) error {
	return s.post(ctx, "/resolveMatch", map[string]interface{}{
		"matchId":            result.MatchID,
		"winnerAgentNames":   result.WinnerAgentNames,
		"winnerAgentWallets": result.WinnerAgentWallets,
		"isDraw":             result.IsDraw,
	})
}

// fireAndForget runs a settlement call on its own goroutine with a bounded
// timeout, logging failure rather than letting a slow collaborator stall
// the caller (the tick loop, or a join handler).
func fireAndForget(timeout time.Duration, label string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Printf("lifecycle: %s failed: %v", label, err)
		}
	}()
}
