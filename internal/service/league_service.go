package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/openfantasy/leagueserver/internal/model"
	"github.com/openfantasy/leagueserver/internal/repository"
	"github.com/openfantasy/leagueserver/pkg/apperror"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Classification partitions a user's memberships by league state. A membership
// whose state is neither in the active set nor completed lands in Indeterminate
// and is excluded from every displayed count.
type Classification struct {
	Active        []model.LeagueMembership
	Completed     []model.LeagueMembership
	Indeterminate []model.LeagueMembership
}

// Classify assigns every membership to exactly one partition, preserving input
// order. The switch is exhaustive over known states so a future state cannot
// silently land in a count.
func Classify(memberships []model.LeagueMembership) Classification {
	var c Classification

	for _, m := range memberships {
		switch m.League.State {
		case model.StateOpenForEntry, model.StateInProgress, model.StateWaitingForUpdates:
			c.Active = append(c.Active, m)
		case model.StateFinalized:
			c.Completed = append(c.Completed, m)
		case "":
			// Legacy rows predate the state column.
			if m.League.LegacyStatus != nil && *m.League.LegacyStatus == model.LegacyStatusCompleted {
				c.Completed = append(c.Completed, m)
			} else {
				c.Indeterminate = append(c.Indeterminate, m)
			}
		default:
			c.Indeterminate = append(c.Indeterminate, m)
		}
	}

	return c
}

// ActiveLeagueCount counts distinct league IDs in the active partition only.
// Counting from the unpartitioned membership list inflated the dashboard
// number with leagues already moved to the completed view.
func (c Classification) ActiveLeagueCount() int {
	seen := make(map[uuid.UUID]struct{}, len(c.Active))
	for _, m := range c.Active {
		seen[m.LeagueID] = struct{}{}
	}
	return len(seen)
}

type CreateLeagueInput struct {
	Name        string `json:"name" binding:"required,min=3,max=100"`
	Description string `json:"description" binding:"max=2000"`
	EntryFee    int64  `json:"entry_fee" binding:"gte=0"`
	Season      string `json:"season" binding:"max=20"`
	TeamName    string `json:"team_name" binding:"required,max=100"`
}

type JoinLeagueInput struct {
	InviteCode string `json:"invite_code" binding:"required"`
	TeamName   string `json:"team_name" binding:"required,max=100"`
}

type MyLeaguesResponse struct {
	Active      []model.LeagueMembership `json:"active"`
	Completed   []model.LeagueMembership `json:"completed"`
	ActiveCount int                      `json:"active_count"`
}

type LeagueService interface {
	Create(ctx context.Context, ownerID uuid.UUID, input CreateLeagueInput) (*model.League, error)
	Join(ctx context.Context, userID uuid.UUID, input JoinLeagueInput) (*model.LeagueMembership, error)
	MyLeagues(ctx context.Context, userID uuid.UUID) (*MyLeaguesResponse, error)
	// Finalize closes a league: the season-standings winner receives the
	// prize pool and the state moves to FINALIZED.
	Finalize(ctx context.Context, leagueID uuid.UUID) (*model.League, error)
}

const actionCreateLeague = "create_league"

type leagueService struct {
	repo            repository.LeagueRepository
	standings       repository.LeaderboardRepository
	wallets         WalletService
	limiter         *ActionLimiter
	createRateLimit time.Duration
	sanitizer       *bluemonday.Policy
}

func NewLeagueService(repo repository.LeagueRepository, standings repository.LeaderboardRepository, wallets WalletService, rdb *redis.Client, createRateLimit time.Duration) LeagueService {
	return &leagueService{
		repo:            repo,
		standings:       standings,
		wallets:         wallets,
		limiter:         NewActionLimiter(rdb),
		createRateLimit: createRateLimit,
		sanitizer:       bluemonday.StrictPolicy(),
	}
}

func (s *leagueService) Create(ctx context.Context, ownerID uuid.UUID, input CreateLeagueInput) (*model.League, error) {
	allowed, err := s.limiter.Acquire(ctx, ownerID, actionCreateLeague, s.createRateLimit)
	if err != nil {
		return nil, err
	}
	if !allowed {
		msg := "you are creating leagues too quickly"
		if wait, err := s.limiter.Remaining(ctx, ownerID, actionCreateLeague); err == nil && wait > 0 {
			msg = fmt.Sprintf("you can create another league in %s", wait.Round(time.Second))
		}
		return nil, apperror.New(http.StatusTooManyRequests, msg, apperror.ErrRateLimitExceeded)
	}

	code, err := generateInviteCode(8)
	if err != nil {
		return nil, err
	}

	league := &model.League{
		Name:        strings.TrimSpace(input.Name),
		Description: s.sanitizer.Sanitize(input.Description),
		State:       model.StateOpenForEntry,
		InviteCode:  code,
		EntryFee:    input.EntryFee,
		Season:      input.Season,
		OwnerID:     ownerID,
	}

	// The creator joins their own league immediately; no entry fee for the owner.
	membership := &model.LeagueMembership{
		UserID:   ownerID,
		TeamName: strings.TrimSpace(input.TeamName),
	}

	if err := s.repo.Create(ctx, league, membership); err != nil {
		// A failed create should not burn the cooldown slot.
		_ = s.limiter.Release(ctx, ownerID, actionCreateLeague)
		return nil, err
	}

	return league, nil
}

func (s *leagueService) Join(ctx context.Context, userID uuid.UUID, input JoinLeagueInput) (*model.LeagueMembership, error) {
	league, err := s.repo.FindByInviteCode(ctx, strings.ToUpper(strings.TrimSpace(input.InviteCode)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.New(http.StatusNotFound, "no league found for that invite code", apperror.ErrNotFound)
		}
		return nil, err
	}

	if league.State != model.StateOpenForEntry {
		return nil, apperror.Validation("league is no longer open for entry")
	}

	if _, err := s.repo.FindMembership(ctx, league.ID, userID); err == nil {
		return nil, apperror.Validation("already a member of this league")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	membership := &model.LeagueMembership{
		LeagueID: league.ID,
		UserID:   userID,
		TeamName: strings.TrimSpace(input.TeamName),
	}

	if err := s.repo.Join(ctx, league, membership, league.EntryFee); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrInsufficientFunds
		}
		return nil, err
	}

	return membership, nil
}

func (s *leagueService) MyLeagues(ctx context.Context, userID uuid.UUID) (*MyLeaguesResponse, error) {
	memberships, err := s.repo.FindMembershipsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	c := Classify(memberships)

	resp := &MyLeaguesResponse{
		Active:      c.Active,
		Completed:   c.Completed,
		ActiveCount: c.ActiveLeagueCount(),
	}
	if resp.Active == nil {
		resp.Active = []model.LeagueMembership{}
	}
	if resp.Completed == nil {
		resp.Completed = []model.LeagueMembership{}
	}

	return resp, nil
}

func (s *leagueService) Finalize(ctx context.Context, leagueID uuid.UUID) (*model.League, error) {
	league, err := s.repo.FindByID(ctx, leagueID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.New(http.StatusNotFound, "league not found", apperror.ErrNotFound)
		}
		return nil, err
	}

	if league.State == model.StateFinalized {
		return nil, apperror.Validation("league is already finalized")
	}

	// Gameweek 0 is the overall season table; its leader takes the pool.
	entries, err := s.standings.GetEntries(ctx, leagueID, 0)
	if err != nil {
		return nil, err
	}

	if league.PrizePool > 0 && len(entries) > 0 && entries[0].UserID != nil {
		if err := s.wallets.PayPrize(ctx, *entries[0].UserID, league.PrizePool, leagueID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.UpdateState(ctx, leagueID, model.StateFinalized); err != nil {
		return nil, err
	}

	league.State = model.StateFinalized
	return league, nil
}

const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateInviteCode(length int) (string, error) {
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(inviteAlphabet))))
		if err != nil {
			return "", err
		}
		b[i] = inviteAlphabet[n.Int64()]
	}
	return string(b), nil
}
