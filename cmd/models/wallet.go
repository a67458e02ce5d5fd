package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	TransactionEarn  = "earn"
	TransactionSpend = "spend"
)

// Wallet holds the current balance for one user. The balance is always the
// sum of earn transactions minus spend transactions and never goes negative.
type Wallet struct {
	gorm.Model
	UserID      uint      `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	Balance     float64   `gorm:"column:balance;not null;default:0" json:"balance"`
	LastUpdated time.Time `gorm:"column:last_updated" json:"last_updated"`
	User        *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// Transaction is the append-only audit record behind a wallet. Rows are
// never updated or deleted.
type Transaction struct {
	gorm.Model
	UserID uint    `gorm:"column:user_id;not null;index" json:"user_id"`
	Kind   string  `gorm:"column:kind;size:10;not null" json:"kind"`
	Amount float64 `gorm:"column:amount;not null" json:"amount"`
	User   *User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
