package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/openfantasy/leagueserver/internal/model"
	"github.com/openfantasy/leagueserver/internal/repository"
	"github.com/openfantasy/leagueserver/pkg/apperror"
	"gorm.io/gorm"
)

type WalletAmountInput struct {
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	Reference string `json:"reference" binding:"max=100"`
}

type WalletResponse struct {
	Wallet       *model.Wallet             `json:"wallet"`
	Transactions []model.WalletTransaction `json:"transactions"`
}

type WalletService interface {
	Get(ctx context.Context, userID uuid.UUID) (*WalletResponse, error)
	Deposit(ctx context.Context, userID uuid.UUID, input WalletAmountInput) (*model.Wallet, error)
	Withdraw(ctx context.Context, userID uuid.UUID, input WalletAmountInput) (*model.Wallet, error)
	// PayPrize credits a prize to a member's wallet, e.g. when a league
	// finalizes and the pool is distributed.
	PayPrize(ctx context.Context, userID uuid.UUID, amount int64, leagueID uuid.UUID) error
}

type walletService struct {
	repo repository.WalletRepository
}

func NewWalletService(repo repository.WalletRepository) WalletService {
	return &walletService{repo: repo}
}

func (s *walletService) Get(ctx context.Context, userID uuid.UUID) (*WalletResponse, error) {
	wallet, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}

	txns, err := s.repo.Transactions(ctx, wallet.ID, 50)
	if err != nil {
		return nil, err
	}
	if txns == nil {
		txns = []model.WalletTransaction{}
	}

	return &WalletResponse{Wallet: wallet, Transactions: txns}, nil
}

func (s *walletService) Deposit(ctx context.Context, userID uuid.UUID, input WalletAmountInput) (*model.Wallet, error) {
	txn := &model.WalletTransaction{
		Type:      model.TxDeposit,
		Amount:    input.Amount,
		Reference: input.Reference,
	}

	if err := s.repo.Apply(ctx, userID, txn); err != nil {
		return nil, err
	}

	return s.repo.FindByUserID(ctx, userID)
}

func (s *walletService) Withdraw(ctx context.Context, userID uuid.UUID, input WalletAmountInput) (*model.Wallet, error) {
	txn := &model.WalletTransaction{
		Type:      model.TxWithdrawal,
		Amount:    -input.Amount,
		Reference: input.Reference,
	}

	if err := s.repo.Apply(ctx, userID, txn); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrInsufficientFunds
		}
		return nil, err
	}

	return s.repo.FindByUserID(ctx, userID)
}

func (s *walletService) PayPrize(ctx context.Context, userID uuid.UUID, amount int64, leagueID uuid.UUID) error {
	txn := &model.WalletTransaction{
		Type:      model.TxPrize,
		Amount:    amount,
		Reference: leagueID.String(),
	}

	return s.repo.Apply(ctx, userID, txn)
}
