package store

import (
	"encoding/hex"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
)

type Status uint

// The ordering here is load-bearing: recovery compares statuses to decide how
// far a swap progressed, so new statuses go at the end.
const (
	Unknown Status = iota
	Created
	Filled
	Verified
	Disclosed
	DestWithdrawn
	Settled
	SourceRefunded
	DestRefunded
	Aborted
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Filled:
		return "filled"
	case Verified:
		return "verified"
	case Disclosed:
		return "disclosed"
	case DestWithdrawn:
		return "dest withdrawn"
	case Settled:
		return "settled"
	case SourceRefunded:
		return "source refunded"
	case DestRefunded:
		return "dest refunded"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether a swap needs no further driving. Aborted and
// DestRefunded are not terminal: the user's source leg still has a refund
// pending, which recovery keeps driving until it lands.
func (s Status) Terminal() bool {
	return s == Settled || s == SourceRefunded
}

// Swap is the persisted record of one SwapIntent. The secret column is empty
// for swaps this process did not create.
type Swap struct {
	gorm.Model

	SwapID     string `gorm:"index:,unique"`
	SecretHash string `gorm:"index"`
	Secret     string

	SourceChain  string
	DestChain    string
	SourceLockID string
	DestLockID   string

	Recipient      string
	Token          string
	Amount         string
	SourceTimelock time.Time
	DestTimelock   time.Time

	Resolver string
	Status   Status
	Error    string
}

type Store interface {
	PutSwap(swap Swap) error

	UpdateStatus(swapID common.Hash, status Status, cause error) error

	// SetFill records the destination leg once a resolver fills. Amount is
	// the destination amount actually locked, which for auction fills is the
	// bid payment rather than the amount agreed at creation.
	SetFill(swapID common.Hash, destLockID common.Hash, destTimelock time.Time, resolver, amount string) error

	Secret(swapID common.Hash) (string, error)

	Swap(swapID common.Hash) (Swap, error)

	// Unfinished returns every swap not yet in a terminal status, for the
	// recovery pass after a restart.
	Unfinished() ([]Swap, error)
}

type store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) (Store, error) {
	if err := db.AutoMigrate(&Swap{}); err != nil {
		return nil, err
	}
	sqlDb, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDb.SetMaxIdleConns(5)
	sqlDb.SetMaxOpenConns(5)
	sqlDb.SetConnMaxIdleTime(10 * time.Minute)
	return &store{db: db}, nil
}

func (store *store) PutSwap(swap Swap) error {
	return store.db.Create(&swap).Error
}

func (store *store) UpdateStatus(swapID common.Hash, status Status, cause error) error {
	swap, err := store.Swap(swapID)
	if err != nil {
		return err
	}
	swap.Status = status
	if cause != nil {
		swap.Error = cause.Error()
	}
	return store.db.Save(&swap).Error
}

func (store *store) SetFill(swapID common.Hash, destLockID common.Hash, destTimelock time.Time, resolver, amount string) error {
	swap, err := store.Swap(swapID)
	if err != nil {
		return err
	}
	swap.DestLockID = key(destLockID)
	swap.DestTimelock = destTimelock
	swap.Resolver = resolver
	swap.Amount = amount
	swap.Status = Filled
	return store.db.Save(&swap).Error
}

func (store *store) Secret(swapID common.Hash) (string, error) {
	var swap Swap
	if err := store.db.Where("swap_id = ?", key(swapID)).First(&swap).Error; err != nil {
		return "", err
	}
	return swap.Secret, nil
}

func (store *store) Swap(swapID common.Hash) (Swap, error) {
	var swap Swap
	err := store.db.Where("swap_id = ?", key(swapID)).First(&swap).Error
	return swap, err
}

func (store *store) Unfinished() ([]Swap, error) {
	var swaps []Swap
	err := store.db.
		Where("status NOT IN ?", []Status{Settled, SourceRefunded}).
		Find(&swaps).Error
	return swaps, err
}

func key(id common.Hash) string {
	return hex.EncodeToString(id.Bytes())
}
