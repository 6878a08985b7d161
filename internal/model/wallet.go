package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Wallet struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"` // cents
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

const (
	TxDeposit    = "deposit"
	TxWithdrawal = "withdrawal"
	TxEntryFee   = "entry_fee"
	TxPrize      = "prize"
)

// WalletTransaction is a ledger row. Amount is signed: positive amounts grow
// the balance, negative amounts shrink it.
type WalletTransaction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	WalletID  uuid.UUID `gorm:"type:uuid;not null;index" json:"wallet_id"`
	Type      string    `gorm:"size:20;not null" json:"type"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Reference string    `gorm:"size:100" json:"reference"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (t *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
