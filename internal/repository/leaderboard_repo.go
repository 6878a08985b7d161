package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/openfantasy/leagueserver/internal/model"
	"gorm.io/gorm"
)

type LeaderboardRepository interface {
	GetEntries(ctx context.Context, leagueID uuid.UUID, gameweek int) ([]model.LeaderboardEntry, error)
	ReplaceEntries(ctx context.Context, leagueID uuid.UUID, gameweek int, entries []model.LeaderboardEntry) error
}

type leaderboardRepository struct {
	db *gorm.DB
}

func NewLeaderboardRepository(db *gorm.DB) LeaderboardRepository {
	return &leaderboardRepository{db: db}
}

func (r *leaderboardRepository) GetEntries(ctx context.Context, leagueID uuid.UUID, gameweek int) ([]model.LeaderboardEntry, error) {
	var entries []model.LeaderboardEntry
	if err := r.db.WithContext(ctx).
		Where("league_id = ? AND gameweek = ?", leagueID, gameweek).
		Order("rank ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}

	return entries, nil
}

// ReplaceEntries swaps the full standings for one (league, gameweek) in a
// single transaction, so readers never observe a half-written ranking.
func (r *leaderboardRepository) ReplaceEntries(ctx context.Context, leagueID uuid.UUID, gameweek int, entries []model.LeaderboardEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("league_id = ? AND gameweek = ?", leagueID, gameweek).
			Delete(&model.LeaderboardEntry{}).Error; err != nil {
			return err
		}

		if len(entries) == 0 {
			return nil
		}

		for i := range entries {
			entries[i].LeagueID = leagueID
			entries[i].Gameweek = gameweek
		}

		return tx.Create(&entries).Error
	})
}
