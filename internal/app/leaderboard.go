package app

import (
	"context"
	"sort"

	"livequiz/internal/domain"
)

// Leaderboard recomputes cumulative scores from the recorded responses of
// runs with order <= upToOrder. Scores are never persisted; they are always
// derivable from responses, so the board stays consistent by construction.
// Participants without responses appear with score zero. Ordering is score
// descending, then display name ascending, which is deterministic because
// display names are unique within a session.
func (e *Engine) Leaderboard(ctx context.Context, sessionID string, upToOrder int) ([]domain.LeaderboardEntry, error) {
	participants, err := e.store.Participants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	responses, err := e.store.ResponsesUpToOrder(ctx, sessionID, upToOrder)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]int, len(participants))
	for _, resp := range responses {
		scores[resp.ParticipantID] += domain.Points(resp.Correct, resp.LatencyMS)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, domain.LeaderboardEntry{
			ID:    p.ID,
			Name:  p.DisplayName,
			Score: scores[p.ID],
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}
