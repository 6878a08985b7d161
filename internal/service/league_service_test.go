package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openfantasy/leagueserver/internal/model"
	"github.com/openfantasy/leagueserver/pkg/apperror"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func membership(leagueID uuid.UUID, state model.LeagueState, legacy *string) model.LeagueMembership {
	return model.LeagueMembership{
		LeagueID: leagueID,
		UserID:   uuid.New(),
		League: model.League{
			ID:           leagueID,
			State:        state,
			LegacyStatus: legacy,
		},
	}
}

func strPtr(s string) *string { return &s }

func TestClassify(t *testing.T) {
	league1 := uuid.New()
	league2 := uuid.New()
	league3 := uuid.New()

	tests := []struct {
		name              string
		memberships       []model.LeagueMembership
		wantActive        int
		wantCompleted     int
		wantIndeterminate int
		wantActiveCount   int
	}{
		{
			name: "all active states",
			memberships: []model.LeagueMembership{
				membership(league1, model.StateOpenForEntry, nil),
				membership(league2, model.StateInProgress, nil),
				membership(league3, model.StateWaitingForUpdates, nil),
			},
			wantActive:      3,
			wantActiveCount: 3,
		},
		{
			name: "finalized goes to completed",
			memberships: []model.LeagueMembership{
				membership(league1, model.StateFinalized, nil),
			},
			wantCompleted: 1,
		},
		{
			name: "legacy completed without state",
			memberships: []model.LeagueMembership{
				membership(league1, "", strPtr(model.LegacyStatusCompleted)),
			},
			wantCompleted: 1,
		},
		{
			name: "missing state and no legacy marker is indeterminate",
			memberships: []model.LeagueMembership{
				membership(league1, "", nil),
			},
			wantIndeterminate: 1,
		},
		{
			name: "unknown future state is indeterminate",
			memberships: []model.LeagueMembership{
				membership(league1, "SOME_NEW_STATE", nil),
			},
			wantIndeterminate: 1,
		},
		{
			name: "duplicate league counted once in active count",
			memberships: []model.LeagueMembership{
				membership(league1, model.StateInProgress, nil),
				membership(league1, model.StateInProgress, nil),
				membership(league2, model.StateFinalized, nil),
			},
			wantActive:      2,
			wantCompleted:   1,
			wantActiveCount: 1,
		},
		{
			name:        "empty input",
			memberships: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.memberships)
			require.Len(t, c.Active, tt.wantActive)
			require.Len(t, c.Completed, tt.wantCompleted)
			require.Len(t, c.Indeterminate, tt.wantIndeterminate)
			require.Equal(t, tt.wantActiveCount, c.ActiveLeagueCount())

			// Every membership lands in exactly one partition.
			total := len(c.Active) + len(c.Completed) + len(c.Indeterminate)
			require.Equal(t, len(tt.memberships), total)
			require.LessOrEqual(t, len(c.Active)+len(c.Completed), len(tt.memberships))
		})
	}
}

func TestClassifyPreservesInputOrder(t *testing.T) {
	leagues := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	memberships := []model.LeagueMembership{
		membership(leagues[0], model.StateInProgress, nil),
		membership(leagues[1], model.StateOpenForEntry, nil),
		membership(leagues[2], model.StateWaitingForUpdates, nil),
	}

	c := Classify(memberships)
	require.Len(t, c.Active, 3)
	for i, m := range c.Active {
		require.Equal(t, leagues[i], m.LeagueID)
	}
}

func TestActiveLeagueCountExcludesCompletedOnlyLeagues(t *testing.T) {
	active := uuid.New()
	finished := uuid.New()

	c := Classify([]model.LeagueMembership{
		membership(active, model.StateInProgress, nil),
		membership(finished, model.StateFinalized, nil),
	})

	// The count must never include leagues that only appear in the
	// completed partition.
	require.Equal(t, 1, c.ActiveLeagueCount())
}

type fakeLeagueRepo struct {
	league       *model.League
	findErr      error
	updatedState model.LeagueState
}

func (f *fakeLeagueRepo) Create(ctx context.Context, league *model.League, m *model.LeagueMembership) error {
	return nil
}

func (f *fakeLeagueRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.League, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.league, nil
}

func (f *fakeLeagueRepo) FindByInviteCode(ctx context.Context, code string) (*model.League, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLeagueRepo) FindMembershipsByUser(ctx context.Context, userID uuid.UUID) ([]model.LeagueMembership, error) {
	return nil, nil
}

func (f *fakeLeagueRepo) FindMembership(ctx context.Context, leagueID, userID uuid.UUID) (*model.LeagueMembership, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLeagueRepo) Join(ctx context.Context, league *model.League, m *model.LeagueMembership, fee int64) error {
	return nil
}

func (f *fakeLeagueRepo) UpdateState(ctx context.Context, leagueID uuid.UUID, state model.LeagueState) error {
	f.updatedState = state
	return nil
}

type fakeStandingsRepo struct {
	entries []model.LeaderboardEntry
}

func (f *fakeStandingsRepo) GetEntries(ctx context.Context, leagueID uuid.UUID, gameweek int) ([]model.LeaderboardEntry, error) {
	return f.entries, nil
}

func (f *fakeStandingsRepo) ReplaceEntries(ctx context.Context, leagueID uuid.UUID, gameweek int, entries []model.LeaderboardEntry) error {
	return nil
}

type fakeWalletService struct {
	prizeUser   uuid.UUID
	prizeAmount int64
	prizeCalls  int
}

func (f *fakeWalletService) Get(ctx context.Context, userID uuid.UUID) (*WalletResponse, error) {
	return nil, nil
}

func (f *fakeWalletService) Deposit(ctx context.Context, userID uuid.UUID, input WalletAmountInput) (*model.Wallet, error) {
	return nil, nil
}

func (f *fakeWalletService) Withdraw(ctx context.Context, userID uuid.UUID, input WalletAmountInput) (*model.Wallet, error) {
	return nil, nil
}

func (f *fakeWalletService) PayPrize(ctx context.Context, userID uuid.UUID, amount int64, leagueID uuid.UUID) error {
	f.prizeCalls++
	f.prizeUser = userID
	f.prizeAmount = amount
	return nil
}

func TestFinalizePaysWinnerAndClosesLeague(t *testing.T) {
	leagueID := uuid.New()
	winnerID := uuid.New()
	runnerUpID := uuid.New()

	repo := &fakeLeagueRepo{league: &model.League{ID: leagueID, State: model.StateInProgress, PrizePool: 5_000}}
	standings := &fakeStandingsRepo{entries: []model.LeaderboardEntry{
		{LeagueID: leagueID, Rank: 1, UserID: &winnerID, Username: "alice"},
		{LeagueID: leagueID, Rank: 2, UserID: &runnerUpID, Username: "bob"},
	}}
	wallets := &fakeWalletService{}

	svc := NewLeagueService(repo, standings, wallets, nil, time.Minute)

	league, err := svc.Finalize(context.Background(), leagueID)
	require.NoError(t, err)
	require.Equal(t, model.StateFinalized, league.State)
	require.Equal(t, model.StateFinalized, repo.updatedState)

	require.Equal(t, 1, wallets.prizeCalls)
	require.Equal(t, winnerID, wallets.prizeUser)
	require.Equal(t, int64(5_000), wallets.prizeAmount)
}

func TestFinalizeRejectsAlreadyFinalizedLeague(t *testing.T) {
	leagueID := uuid.New()
	repo := &fakeLeagueRepo{league: &model.League{ID: leagueID, State: model.StateFinalized}}
	wallets := &fakeWalletService{}

	svc := NewLeagueService(repo, &fakeStandingsRepo{}, wallets, nil, time.Minute)

	_, err := svc.Finalize(context.Background(), leagueID)
	require.ErrorIs(t, err, apperror.ErrValidation)
	require.Zero(t, wallets.prizeCalls)
}

func TestFinalizeWithoutStandingsSkipsPayout(t *testing.T) {
	leagueID := uuid.New()
	repo := &fakeLeagueRepo{league: &model.League{ID: leagueID, State: model.StateWaitingForUpdates, PrizePool: 5_000}}
	wallets := &fakeWalletService{}

	svc := NewLeagueService(repo, &fakeStandingsRepo{}, wallets, nil, time.Minute)

	league, err := svc.Finalize(context.Background(), leagueID)
	require.NoError(t, err)
	require.Equal(t, model.StateFinalized, league.State)
	require.Zero(t, wallets.prizeCalls)
}

func TestFinalizeUnknownLeague(t *testing.T) {
	repo := &fakeLeagueRepo{findErr: gorm.ErrRecordNotFound}
	svc := NewLeagueService(repo, &fakeStandingsRepo{}, &fakeWalletService{}, nil, time.Minute)

	_, err := svc.Finalize(context.Background(), uuid.New())
	require.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestGenerateInviteCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		code, err := generateInviteCode(8)
		require.NoError(t, err)
		require.Len(t, code, 8)
		for _, ch := range code {
			require.Contains(t, inviteAlphabet, string(ch))
		}
		seen[code] = struct{}{}
	}
	// 100 draws from a 32^8 space colliding would mean a broken generator.
	require.Len(t, seen, 100)
}
