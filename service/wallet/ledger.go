package wallet

import (
	"errors"
	"time"

	"github.com/onvm-app/onvm-server/cmd/models"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount       = errors.New("amount must be a positive number")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Ledger maintains per-user balances and the append-only transaction log.
// Every mutation updates both inside one database transaction.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Balance returns the user's current balance, creating an empty wallet on
// first access.
func (l *Ledger) Balance(userID uint) (float64, error) {
	wallet, err := l.ensureWallet(l.db, userID)
	if err != nil {
		return 0, err
	}
	return wallet.Balance, nil
}

// Earn credits the wallet and appends an earn transaction.
func (l *Ledger) Earn(userID uint, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var newBalance float64
	err := l.db.Transaction(func(tx *gorm.DB) error {
		if _, err := l.ensureWallet(tx, userID); err != nil {
			return err
		}

		if err := tx.Model(&models.Wallet{}).
			Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"balance":      gorm.Expr("balance + ?", amount),
				"last_updated": time.Now(),
			}).Error; err != nil {
			return err
		}

		if err := tx.Create(&models.Transaction{
			UserID: userID,
			Kind:   models.TransactionEarn,
			Amount: amount,
		}).Error; err != nil {
			return err
		}

		return tx.Model(&models.Wallet{}).
			Where("user_id = ?", userID).
			Select("balance").
			Scan(&newBalance).Error
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Spend debits the wallet and appends a spend transaction. The decrement is
// a single conditional update so two concurrent spends cannot jointly
// overdraw: whichever statement matches zero rows loses.
func (l *Ledger) Spend(userID uint, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var newBalance float64
	err := l.db.Transaction(func(tx *gorm.DB) error {
		if _, err := l.ensureWallet(tx, userID); err != nil {
			return err
		}

		res := tx.Model(&models.Wallet{}).
			Where("user_id = ? AND balance >= ?", userID, amount).
			Updates(map[string]interface{}{
				"balance":      gorm.Expr("balance - ?", amount),
				"last_updated": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientBalance
		}

		if err := tx.Create(&models.Transaction{
			UserID: userID,
			Kind:   models.TransactionSpend,
			Amount: amount,
		}).Error; err != nil {
			return err
		}

		return tx.Model(&models.Wallet{}).
			Where("user_id = ?", userID).
			Select("balance").
			Scan(&newBalance).Error
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// History returns the user's transactions newest-first.
func (l *Ledger) History(userID uint) ([]models.Transaction, error) {
	var transactions []models.Transaction
	err := l.db.
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&transactions).Error
	return transactions, err
}

func (l *Ledger) ensureWallet(tx *gorm.DB, userID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	err := tx.Where(models.Wallet{UserID: userID}).
		Attrs(models.Wallet{Balance: 0, LastUpdated: time.Now()}).
		FirstOrCreate(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}
