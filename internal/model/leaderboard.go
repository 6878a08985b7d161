package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LeaderboardEntry is one ranked row for a league and gameweek. Gameweek 0
// holds the overall season standings.
//
// Rank changes on every recalculation, so it is never used as row identity;
// see RowKey.
type LeaderboardEntry struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	LeagueID       uuid.UUID  `gorm:"type:uuid;not null;index:idx_lb_league_gw" json:"league_id"`
	Gameweek       int        `gorm:"not null;default:0;index:idx_lb_league_gw" json:"gameweek"`
	UserID         *uuid.UUID `gorm:"type:uuid" json:"user_id,omitempty"`
	LinkedTeamID   *uuid.UUID `gorm:"type:uuid" json:"linked_team_id,omitempty"`
	Username       string     `gorm:"size:50;not null" json:"username"`
	TeamName       string     `gorm:"size:100;not null" json:"team_name"`
	Rank           int        `gorm:"not null" json:"rank"`
	TotalPoints    int        `gorm:"not null;default:0" json:"total_points"`
	GameweekPoints int        `gorm:"not null;default:0" json:"gameweek_points"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e *LeaderboardEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// RowKey is the stable identity of the row across refreshes: the linked team
// when present, otherwise the entry ID.
func (e *LeaderboardEntry) RowKey() uuid.UUID {
	if e.LinkedTeamID != nil {
		return *e.LinkedTeamID
	}
	return e.ID
}
