package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/openfantasy/leagueserver/internal/model"
	"github.com/openfantasy/leagueserver/internal/repository"
	"github.com/redis/go-redis/v9"
)

type LeaderboardService interface {
	// GetLeaderboard returns the ordered standings for a league and gameweek.
	// force bypasses the cache; includeDetails keeps the per-gameweek point
	// breakdown on each row.
	GetLeaderboard(ctx context.Context, leagueID uuid.UUID, gameweek int, force, includeDetails bool) ([]model.LeaderboardEntry, error)
	ReplaceStandings(ctx context.Context, leagueID uuid.UUID, gameweek int, entries []model.LeaderboardEntry) error
}

type leaderboardService struct {
	repo     repository.LeaderboardRepository
	rdb      *redis.Client
	cacheTTL time.Duration
}

func NewLeaderboardService(repo repository.LeaderboardRepository, rdb *redis.Client, cacheTTL time.Duration) LeaderboardService {
	return &leaderboardService{
		repo:     repo,
		rdb:      rdb,
		cacheTTL: cacheTTL,
	}
}

func cacheKey(leagueID uuid.UUID, gameweek int) string {
	return fmt.Sprintf("leaderboard:%s:gw%d", leagueID, gameweek)
}

func (s *leaderboardService) GetLeaderboard(ctx context.Context, leagueID uuid.UUID, gameweek int, force, includeDetails bool) ([]model.LeaderboardEntry, error) {
	if !force {
		if cached, ok := s.readCache(ctx, leagueID, gameweek); ok {
			return stripDetails(cached, includeDetails), nil
		}
	}

	entries, err := s.repo.GetEntries(ctx, leagueID, gameweek)
	if err != nil {
		return nil, err
	}

	s.writeCache(ctx, leagueID, gameweek, entries)

	return stripDetails(entries, includeDetails), nil
}

func (s *leaderboardService) ReplaceStandings(ctx context.Context, leagueID uuid.UUID, gameweek int, entries []model.LeaderboardEntry) error {
	if err := s.repo.ReplaceEntries(ctx, leagueID, gameweek, entries); err != nil {
		return err
	}

	// Stale cache entries would otherwise survive until TTL.
	if s.rdb != nil {
		if err := s.rdb.Del(ctx, cacheKey(leagueID, gameweek)).Err(); err != nil {
			log.Printf("failed to invalidate leaderboard cache: %v", err)
		}
	}

	return nil
}

// readCache is best-effort: any Redis problem reads as a miss.
func (s *leaderboardService) readCache(ctx context.Context, leagueID uuid.UUID, gameweek int) ([]model.LeaderboardEntry, bool) {
	if s.rdb == nil {
		return nil, false
	}

	raw, err := s.rdb.Get(ctx, cacheKey(leagueID, gameweek)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("leaderboard cache read failed: %v", err)
		}
		return nil, false
	}

	var entries []model.LeaderboardEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		log.Printf("leaderboard cache corrupt, ignoring: %v", err)
		return nil, false
	}

	return entries, true
}

func (s *leaderboardService) writeCache(ctx context.Context, leagueID uuid.UUID, gameweek int, entries []model.LeaderboardEntry) {
	if s.rdb == nil {
		return
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}

	if err := s.rdb.Set(ctx, cacheKey(leagueID, gameweek), raw, s.cacheTTL).Err(); err != nil {
		log.Printf("leaderboard cache write failed: %v", err)
	}
}

func stripDetails(entries []model.LeaderboardEntry, includeDetails bool) []model.LeaderboardEntry {
	if includeDetails {
		return entries
	}

	out := make([]model.LeaderboardEntry, len(entries))
	copy(out, entries)
	for i := range out {
		out[i].GameweekPoints = 0
	}
	return out
}
