package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LeagueState is the lifecycle tag of a league. Classification of memberships
// into active/completed derives from this field alone (with a legacy fallback,
// see LegacyStatusCompleted).
type LeagueState string

const (
	StateOpenForEntry      LeagueState = "OPEN_FOR_ENTRY"
	StateInProgress        LeagueState = "IN_PROGRESS"
	StateWaitingForUpdates LeagueState = "WAITING_FOR_UPDATES"
	StateFinalized         LeagueState = "FINALIZED"
)

// LegacyStatusCompleted marks completed leagues on rows created before the
// state column existed. Only consulted when State is empty.
const LegacyStatusCompleted = "COMPLETED"

type League struct {
	ID           uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string      `gorm:"size:100;not null" json:"name"`
	Description  string      `gorm:"type:text" json:"description"`
	State        LeagueState `gorm:"size:30;index" json:"state"`
	LegacyStatus *string     `gorm:"size:30" json:"legacy_status,omitempty"`
	InviteCode   string      `gorm:"size:12;uniqueIndex;not null" json:"invite_code"`
	EntryFee     int64       `gorm:"not null;default:0" json:"entry_fee"` // cents
	PrizePool    int64       `gorm:"not null;default:0" json:"prize_pool"`
	Season       string      `gorm:"size:20" json:"season"`
	OwnerID      uuid.UUID   `gorm:"type:uuid;not null" json:"owner_id"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (l *League) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

type LeagueMembership struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	LeagueID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_league_user" json:"league_id"`
	UserID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_league_user" json:"user_id"`
	TeamName     string     `gorm:"size:100;not null" json:"team_name"`
	LinkedTeamID *uuid.UUID `gorm:"type:uuid" json:"linked_team_id,omitempty"`
	JoinedAt     time.Time  `gorm:"autoCreateTime" json:"joined_at"`
	League       League     `gorm:"constraint:OnDelete:CASCADE" json:"league"`
}
