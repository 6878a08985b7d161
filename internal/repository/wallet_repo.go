package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/openfantasy/leagueserver/internal/model"
	"gorm.io/gorm"
)

type WalletRepository interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*model.Wallet, error)
	Transactions(ctx context.Context, walletID uuid.UUID, limit int) ([]model.WalletTransaction, error)
	// Apply records the transaction and adjusts the balance atomically.
	// A negative amount that would overdraw the wallet returns
	// gorm.ErrRecordNotFound (no matching row with sufficient balance).
	Apply(ctx context.Context, userID uuid.UUID, txn *model.WalletTransaction) error
}

type walletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*model.Wallet, error) {
	var wallet model.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		return nil, err
	}

	return &wallet, nil
}

func (r *walletRepository) Transactions(ctx context.Context, walletID uuid.UUID, limit int) ([]model.WalletTransaction, error) {
	var txns []model.WalletTransaction
	if err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txns).Error; err != nil {
		return nil, err
	}

	return txns, nil
}

func (r *walletRepository) Apply(ctx context.Context, userID uuid.UUID, txn *model.WalletTransaction) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var wallet model.Wallet
		if err := tx.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
			return err
		}

		query := tx.Model(&model.Wallet{}).Where("id = ?", wallet.ID)
		if txn.Amount < 0 {
			query = query.Where("balance >= ?", -txn.Amount)
		}

		res := query.Update("balance", gorm.Expr("balance + ?", txn.Amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		txn.WalletID = wallet.ID
		return tx.Create(txn).Error
	})
}
