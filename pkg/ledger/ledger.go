package ledger

import (
	"context"
	"crypto/sha256"
	"math/big"
	"time"

	"github.com/crossmesh/fusion/pkg/signer"
	"github.com/ethereum/go-ethereum/common"
)

type LockState uint8

const (
	Locked LockState = iota + 1
	Withdrawn
	Refunded
)

func (s LockState) String() string {
	switch s {
	case Locked:
		return "locked"
	case Withdrawn:
		return "withdrawn"
	case Refunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state can never change again. Locks leave the
// Locked state exactly once and are retained afterwards as an audit record.
func (s LockState) Terminal() bool {
	return s == Withdrawn || s == Refunded
}

// Lock is a hashlock/timelock escrow entry on a single ledger. Secret is empty
// until the lock is withdrawn; after withdrawal it is readable by any observer
// of the ledger, which is the mechanism by which the secret crosses chains.
type Lock struct {
	ID        common.Hash
	Hashlock  common.Hash
	Secret    []byte
	Sender    string
	Recipient string
	Token     string
	Amount    *big.Int
	Timelock  time.Time
	State     LockState
}

// LockParams carries the arguments of CreateLock.
type LockParams struct {
	ID        common.Hash
	Hashlock  common.Hash
	Recipient string
	Token     string
	Amount    *big.Int
	Timelock  time.Time
}

// Adapter is the per-chain capability consumed by the escrow layer. One
// instance exists per participating chain. All mutating calls take an explicit
// signer context and are safe against re-submission: a retried call that lands
// twice cannot double-transfer because lock states are terminal once left.
type Adapter interface {
	// Name identifies the chain, used for logging and store records.
	Name() string

	// CreateLock escrows funds under a hashlock and an absolute timelock.
	// Fails with a validation error if the id is already used, the amount is
	// zero, or the timelock is not in the future.
	CreateLock(ctx context.Context, s *signer.Signer, params LockParams) error

	// Withdraw settles the lock to its recipient given the hashlock preimage.
	// Fails unless hash(secret) matches, the timelock has not expired and the
	// lock is still Locked. On success the secret becomes readable on chain.
	Withdraw(ctx context.Context, s *signer.Signer, id common.Hash, secret []byte) error

	// Refund returns the funds to the sender once the timelock has expired,
	// provided the lock is still Locked.
	Refund(ctx context.Context, s *signer.Signer, id common.Hash) error

	// GetLock is a pure read. Returns ErrLockNotFound if the id is unknown.
	GetLock(ctx context.Context, id common.Hash) (Lock, error)

	// Now returns the ledger's notion of time. Timelock comparisons always
	// use ledger time, never the local clock.
	Now(ctx context.Context) (time.Time, error)

	// Finalized reports whether the lock's creation has reached this chain's
	// finality. The predicate is adapter supplied and configured per chain.
	Finalized(ctx context.Context, id common.Hash) (bool, error)
}

// Hashlock derives the lock digest from a secret. Hashing is sha256 across
// every supported chain.
func Hashlock(secret []byte) common.Hash {
	return common.Hash(sha256.Sum256(secret))
}

// LockID derives a deterministic lock id from the hashlock and the sender, the
// same scheme the swap contracts use on chain.
func LockID(hashlock common.Hash, sender string) common.Hash {
	return common.Hash(sha256.Sum256(append(hashlock.Bytes(), []byte(sender)...)))
}
