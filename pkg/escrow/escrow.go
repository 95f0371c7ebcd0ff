// Package escrow drives a single lock's lifecycle on one ledger. The state
// machine is Locked → Withdrawn or Locked → Refunded, both terminal; the
// ledger enforces this, and the escrow layer additionally fails fast on
// deterministically doomed calls so no chain round trip is wasted on them.
package escrow

import (
	"bytes"
	"context"
	"crypto/sha256"
	"time"

	"github.com/crossmesh/fusion/pkg/ledger"
	"github.com/crossmesh/fusion/pkg/retry"
	"github.com/crossmesh/fusion/pkg/signer"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type Escrow struct {
	adapter ledger.Adapter
	signer  *signer.Signer
	policy  retry.Policy
	logger  *zap.Logger
}

// New wires an escrow state machine to one chain. The signer must be dedicated
// to this chain, since its sequence counter tracks a single ledger.
func New(adapter ledger.Adapter, s *signer.Signer, policy retry.Policy, logger *zap.Logger) *Escrow {
	return &Escrow{
		adapter: adapter,
		signer:  s,
		policy:  policy,
		logger:  logger.With(zap.String("ledger", adapter.Name())),
	}
}

func (e *Escrow) Adapter() ledger.Adapter {
	return e.adapter
}

func (e *Escrow) Signer() *signer.Signer {
	return e.signer
}

// Lock submits createLock after local validation. The params' timelock bounds
// the retry schedule: there is no point landing a lock that is already
// refundable.
func (e *Escrow) Lock(ctx context.Context, params ledger.LockParams) error {
	const op = "escrow.Lock"
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return ledger.Validationf(op, "%w", ledger.ErrZeroAmount)
	}
	if params.Hashlock == (common.Hash{}) {
		return ledger.Validationf(op, "empty hashlock")
	}
	if params.Recipient == "" {
		return ledger.Validationf(op, "empty recipient")
	}
	now, err := e.adapter.Now(ctx)
	if err != nil {
		return err
	}
	if !params.Timelock.After(now) {
		return ledger.Validationf(op, "%w: timelock %v, ledger time %v", ledger.ErrTimelockNotFuture, params.Timelock, now)
	}

	err = e.policy.Do(func() error {
		return e.adapter.CreateLock(ctx, e.signer, params)
	}, params.Timelock)
	if err != nil {
		return err
	}
	e.logger.Info("locked",
		zap.String("id", params.ID.Hex()),
		zap.String("amount", params.Amount.String()),
		zap.Time("timelock", params.Timelock))
	return nil
}

// Withdraw redeems the lock with the secret before its timelock.
func (e *Escrow) Withdraw(ctx context.Context, id common.Hash, secret []byte) error {
	const op = "escrow.Withdraw"
	lock, err := e.adapter.GetLock(ctx, id)
	if err != nil {
		return err
	}
	if lock.State != ledger.Locked {
		return ledger.Statef(op, "%w: %v is %v", ledger.ErrAlreadySettled, id, lock.State)
	}
	digest := sha256.Sum256(secret)
	if !bytes.Equal(digest[:], lock.Hashlock.Bytes()) {
		return ledger.Validationf(op, "%w", ledger.ErrHashlockMismatch)
	}
	now, err := e.adapter.Now(ctx)
	if err != nil {
		return err
	}
	if !now.Before(lock.Timelock) {
		return ledger.Deadlinef(op, "%w: timelock %v, ledger time %v", ledger.ErrTimelockExpired, lock.Timelock, now)
	}

	err = e.policy.Do(func() error {
		return e.adapter.Withdraw(ctx, e.signer, id, secret)
	}, lock.Timelock)
	if err != nil {
		return err
	}
	e.logger.Info("withdrawn", zap.String("id", id.Hex()))
	return nil
}

// Refund reclaims the lock once its timelock has expired. Refunds have no
// governing deadline of their own.
func (e *Escrow) Refund(ctx context.Context, id common.Hash) error {
	const op = "escrow.Refund"
	lock, err := e.adapter.GetLock(ctx, id)
	if err != nil {
		return err
	}
	if lock.State != ledger.Locked {
		return ledger.Statef(op, "%w: %v is %v", ledger.ErrAlreadySettled, id, lock.State)
	}
	now, err := e.adapter.Now(ctx)
	if err != nil {
		return err
	}
	if now.Before(lock.Timelock) {
		return ledger.Statef(op, "%w: timelock %v, ledger time %v", ledger.ErrTimelockNotExpired, lock.Timelock, now)
	}

	err = e.policy.Do(func() error {
		return e.adapter.Refund(ctx, e.signer, id)
	}, time.Time{})
	if err != nil {
		return err
	}
	e.logger.Info("refunded", zap.String("id", id.Hex()))
	return nil
}

// Get is a pure read of the lock.
func (e *Escrow) Get(ctx context.Context, id common.Hash) (ledger.Lock, error) {
	return e.adapter.GetLock(ctx, id)
}
