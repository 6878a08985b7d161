package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/openfantasy/leagueserver/internal/model"
	"gorm.io/gorm"
)

type LeagueRepository interface {
	Create(ctx context.Context, league *model.League, ownerMembership *model.LeagueMembership) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.League, error)
	FindByInviteCode(ctx context.Context, code string) (*model.League, error)
	FindMembershipsByUser(ctx context.Context, userID uuid.UUID) ([]model.LeagueMembership, error)
	FindMembership(ctx context.Context, leagueID, userID uuid.UUID) (*model.LeagueMembership, error)
	// Join creates the membership and, when fee > 0, moves the entry fee from
	// the member's wallet into the league prize pool in the same transaction.
	Join(ctx context.Context, league *model.League, membership *model.LeagueMembership, fee int64) error
	UpdateState(ctx context.Context, leagueID uuid.UUID, state model.LeagueState) error
}

type leagueRepository struct {
	db *gorm.DB
}

func NewLeagueRepository(db *gorm.DB) LeagueRepository {
	return &leagueRepository{db: db}
}

func (r *leagueRepository) Create(ctx context.Context, league *model.League, ownerMembership *model.LeagueMembership) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(league).Error; err != nil {
			return err
		}

		if ownerMembership != nil {
			ownerMembership.LeagueID = league.ID
			if err := tx.Create(ownerMembership).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *leagueRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.League, error) {
	var league model.League
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&league).Error; err != nil {
		return nil, err
	}

	return &league, nil
}

func (r *leagueRepository) FindByInviteCode(ctx context.Context, code string) (*model.League, error) {
	var league model.League
	if err := r.db.WithContext(ctx).Where("invite_code = ?", code).First(&league).Error; err != nil {
		return nil, err
	}

	return &league, nil
}

func (r *leagueRepository) FindMembershipsByUser(ctx context.Context, userID uuid.UUID) ([]model.LeagueMembership, error) {
	var memberships []model.LeagueMembership
	if err := r.db.WithContext(ctx).
		Preload("League").
		Where("user_id = ?", userID).
		Order("joined_at ASC").
		Find(&memberships).Error; err != nil {
		return nil, err
	}

	return memberships, nil
}

func (r *leagueRepository) FindMembership(ctx context.Context, leagueID, userID uuid.UUID) (*model.LeagueMembership, error) {
	var membership model.LeagueMembership
	if err := r.db.WithContext(ctx).
		Where("league_id = ? AND user_id = ?", leagueID, userID).
		First(&membership).Error; err != nil {
		return nil, err
	}

	return &membership, nil
}

func (r *leagueRepository) Join(ctx context.Context, league *model.League, membership *model.LeagueMembership, fee int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(membership).Error; err != nil {
			return err
		}

		if fee <= 0 {
			return nil
		}

		res := tx.Model(&model.Wallet{}).
			Where("user_id = ? AND balance >= ?", membership.UserID, fee).
			Update("balance", gorm.Expr("balance - ?", fee))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		var wallet model.Wallet
		if err := tx.Where("user_id = ?", membership.UserID).First(&wallet).Error; err != nil {
			return err
		}

		txn := &model.WalletTransaction{
			WalletID:  wallet.ID,
			Type:      model.TxEntryFee,
			Amount:    -fee,
			Reference: league.ID.String(),
		}
		if err := tx.Create(txn).Error; err != nil {
			return err
		}

		return tx.Model(&model.League{}).
			Where("id = ?", league.ID).
			Update("prize_pool", gorm.Expr("prize_pool + ?", fee)).Error
	})
}

func (r *leagueRepository) UpdateState(ctx context.Context, leagueID uuid.UUID, state model.LeagueState) error {
	return r.db.WithContext(ctx).Model(&model.League{}).
		Where("id = ?", leagueID).
		Update("state", state).Error
}
