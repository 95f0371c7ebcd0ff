// Package sim implements an in-memory ledger used by the local daemon mode and
// the test suites. It models the parts of a real chain the swap core depends
// on: hashlock/timelock escrow semantics, per-signer sequence numbers, a
// ledger clock and a configurable finality delay.
package sim

import (
	"bytes"
	"context"
	"crypto/sha256"
	"math/big"
	"sync"
	"time"

	"github.com/crossmesh/fusion/pkg/ledger"
	"github.com/crossmesh/fusion/pkg/signer"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type Ledger struct {
	name     string
	finality time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	now       time.Time
	locks     map[common.Hash]*ledger.Lock
	createdAt map[common.Hash]time.Time
	balances  map[string]map[string]*big.Int
	sequences map[string]uint64
	faults    map[string]int
}

// New returns a simulated ledger whose clock starts at the given time. Locks
// are considered final once they have existed for the finality delay.
func New(name string, start time.Time, finality time.Duration, logger *zap.Logger) *Ledger {
	return &Ledger{
		name:      name,
		finality:  finality,
		logger:    logger,
		now:       start,
		locks:     map[common.Hash]*ledger.Lock{},
		createdAt: map[common.Hash]time.Time{},
		balances:  map[string]map[string]*big.Int{},
		sequences: map[string]uint64{},
		faults:    map[string]int{},
	}
}

func (l *Ledger) Name() string {
	return l.name
}

// Advance moves the ledger clock forward.
func (l *Ledger) Advance(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = l.now.Add(d)
}

// Fund credits an account, standing in for a faucet or prior deposit.
func (l *Ledger) Fund(token, account string, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(token, account, amount)
}

// Balance returns the account's balance for a token.
func (l *Ledger) Balance(token, account string) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	accounts, ok := l.balances[token]
	if !ok {
		return big.NewInt(0)
	}
	balance, ok := accounts[account]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

// FailNext injects transient failures into the next n calls of the named
// operation ("createLock", "withdraw", "refund"), for exercising retry paths.
func (l *Ledger) FailNext(op string, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults[op] = n
}

func (l *Ledger) CreateLock(ctx context.Context, s *signer.Signer, params ledger.LockParams) error {
	const op = "createLock"
	return l.submit(ctx, s, op, func() error {
		if _, ok := l.locks[params.ID]; ok {
			return ledger.Validationf(op, "%w: %v", ledger.ErrLockExists, params.ID)
		}
		if params.Amount == nil || params.Amount.Sign() <= 0 {
			return ledger.Validationf(op, "%w", ledger.ErrZeroAmount)
		}
		if !params.Timelock.After(l.now) {
			return ledger.Validationf(op, "%w: timelock %v, now %v", ledger.ErrTimelockNotFuture, params.Timelock, l.now)
		}
		if err := l.debit(params.Token, s.Address(), params.Amount); err != nil {
			return err
		}

		l.locks[params.ID] = &ledger.Lock{
			ID:        params.ID,
			Hashlock:  params.Hashlock,
			Sender:    s.Address(),
			Recipient: params.Recipient,
			Token:     params.Token,
			Amount:    new(big.Int).Set(params.Amount),
			Timelock:  params.Timelock,
			State:     ledger.Locked,
		}
		l.createdAt[params.ID] = l.now
		l.logger.Debug("lock created",
			zap.String("ledger", l.name),
			zap.String("id", params.ID.Hex()),
			zap.String("amount", params.Amount.String()))
		return nil
	})
}

func (l *Ledger) Withdraw(ctx context.Context, s *signer.Signer, id common.Hash, secret []byte) error {
	const op = "withdraw"
	return l.submit(ctx, s, op, func() error {
		lock, ok := l.locks[id]
		if !ok {
			return ledger.Statef(op, "%w: %v", ledger.ErrLockNotFound, id)
		}
		if lock.State != ledger.Locked {
			return ledger.Statef(op, "%w: %v is %v", ledger.ErrAlreadySettled, id, lock.State)
		}
		digest := sha256.Sum256(secret)
		if !bytes.Equal(digest[:], lock.Hashlock.Bytes()) {
			return ledger.Validationf(op, "%w", ledger.ErrHashlockMismatch)
		}
		if !l.now.Before(lock.Timelock) {
			return ledger.Statef(op, "%w: timelock %v, now %v", ledger.ErrTimelockExpired, lock.Timelock, l.now)
		}

		lock.State = ledger.Withdrawn
		lock.Secret = append([]byte(nil), secret...)
		l.credit(lock.Token, lock.Recipient, lock.Amount)
		l.logger.Debug("lock withdrawn",
			zap.String("ledger", l.name),
			zap.String("id", id.Hex()),
			zap.String("recipient", lock.Recipient))
		return nil
	})
}

func (l *Ledger) Refund(ctx context.Context, s *signer.Signer, id common.Hash) error {
	const op = "refund"
	return l.submit(ctx, s, op, func() error {
		lock, ok := l.locks[id]
		if !ok {
			return ledger.Statef(op, "%w: %v", ledger.ErrLockNotFound, id)
		}
		if lock.State != ledger.Locked {
			return ledger.Statef(op, "%w: %v is %v", ledger.ErrAlreadySettled, id, lock.State)
		}
		if l.now.Before(lock.Timelock) {
			return ledger.Statef(op, "%w: timelock %v, now %v", ledger.ErrTimelockNotExpired, lock.Timelock, l.now)
		}

		lock.State = ledger.Refunded
		l.credit(lock.Token, lock.Sender, lock.Amount)
		l.logger.Debug("lock refunded",
			zap.String("ledger", l.name),
			zap.String("id", id.Hex()))
		return nil
	})
}

func (l *Ledger) GetLock(ctx context.Context, id common.Hash) (ledger.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[id]
	if !ok {
		return ledger.Lock{}, ledger.ErrLockNotFound
	}
	out := *lock
	out.Amount = new(big.Int).Set(lock.Amount)
	out.Secret = append([]byte(nil), lock.Secret...)
	return out, nil
}

func (l *Ledger) Now(ctx context.Context) (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now, nil
}

func (l *Ledger) Finalized(ctx context.Context, id common.Hash) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	created, ok := l.createdAt[id]
	if !ok {
		return false, ledger.ErrLockNotFound
	}
	return !l.now.Before(created.Add(l.finality)), nil
}

// submit serializes a mutating call through the signer's sequence counter and
// enforces the ledger-side sequence check.
func (l *Ledger) submit(ctx context.Context, s *signer.Signer, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Submit(func(seq uint64) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if remaining := l.faults[op]; remaining > 0 {
			l.faults[op] = remaining - 1
			return ledger.Transientf(op, "rpc timeout (injected)")
		}
		if expected := l.sequences[s.Address()]; seq != expected {
			return ledger.Statef(op, "%w: got %d, want %d", ledger.ErrBadSequence, seq, expected)
		}
		if err := fn(); err != nil {
			return err
		}
		l.sequences[s.Address()]++
		return nil
	})
}

func (l *Ledger) credit(token, account string, amount *big.Int) {
	accounts, ok := l.balances[token]
	if !ok {
		accounts = map[string]*big.Int{}
		l.balances[token] = accounts
	}
	balance, ok := accounts[account]
	if !ok {
		balance = big.NewInt(0)
		accounts[account] = balance
	}
	balance.Add(balance, amount)
}

func (l *Ledger) debit(token, account string, amount *big.Int) error {
	accounts, ok := l.balances[token]
	if !ok {
		return ledger.Validationf("debit", "insufficient %v balance for %v", token, account)
	}
	balance, ok := accounts[account]
	if !ok || balance.Cmp(amount) < 0 {
		return ledger.Validationf("debit", "insufficient %v balance for %v", token, account)
	}
	balance.Sub(balance, amount)
	return nil
}
