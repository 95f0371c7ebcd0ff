package coordinator

import (
	"context"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/crossmesh/fusion/pkg/ledger"
	"github.com/crossmesh/fusion/pkg/store"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// WithdrawDest is the resolver's settlement step: redeeming the destination
// lock with the disclosed secret, which also publishes the secret on the
// destination ledger for anyone watching.
func (c *Coordinator) WithdrawDest(ctx context.Context, swapID common.Hash, secret []byte) error {
	intent, err := c.Intent(swapID)
	if err != nil {
		return err
	}
	if err := c.dest.Withdraw(ctx, intent.DestLockID, secret); err != nil {
		return err
	}
	return c.store.UpdateStatus(swapID, store.DestWithdrawn, nil)
}

// Sweep watches the destination ledger for the published secret and completes
// the source side on the user's behalf before T1. Swaps where disclosure
// happened but the user never withdraws would otherwise strand: the sweep is
// the coordinator's answer to that.
func (c *Coordinator) Sweep(ctx context.Context, swapID common.Hash) error {
	const op = "coordinator.Sweep"
	intent, err := c.Intent(swapID)
	if err != nil {
		return err
	}
	logger := c.logger.With(zap.String("swap", swapID.Hex()))

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		now, err := c.source.Adapter().Now(ctx)
		if err == nil && !now.Add(c.config.SettleMargin).Before(intent.SourceTimelock) {
			return ledger.Deadlinef(op,
				"insufficient time before source timelock %v, ledger time %v",
				intent.SourceTimelock, now)
		}

		dstLock, err := c.dest.Get(ctx, intent.DestLockID)
		if err == nil && dstLock.State == ledger.Withdrawn && len(dstLock.Secret) > 0 {
			logger.Info("secret observed on destination ledger, sweeping source leg")
			if err := c.source.Withdraw(ctx, intent.SourceLockID, dstLock.Secret); err != nil {
				return err
			}
			return c.store.UpdateStatus(swapID, store.Settled, nil)
		}

		select {
		case <-ctx.Done():
			return ledger.Deadlinef(op, "sweep cancelled: %v", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Settle runs the full post-fill happy path in one call: verify both legs,
// disclose to the resolver, redeem the destination lock on their behalf and
// sweep the source leg. Used by the local daemon mode where the coordinator
// operates both roles.
func (c *Coordinator) Settle(ctx context.Context, swapID common.Hash) error {
	if err := c.Verify(ctx, swapID); err != nil {
		return err
	}
	if err := c.Disclose(ctx, swapID); err != nil {
		return err
	}

	c.mu.Lock()
	secret := c.secrets[swapID]
	c.mu.Unlock()
	if err := c.WithdrawDest(ctx, swapID, secret); err != nil {
		return err
	}
	return c.Sweep(ctx, swapID)
}

// Refund reclaims whichever legs are still Locked after their own timelocks.
// It is safe to call at any point: legs that are not yet expired or already
// settled report state errors which are logged and skipped.
func (c *Coordinator) Refund(ctx context.Context, swapID common.Hash) error {
	intent, err := c.Intent(swapID)
	if err != nil {
		return err
	}
	logger := c.logger.With(zap.String("swap", swapID.Hex()))

	if intent.DestLockID != (common.Hash{}) {
		switch err := c.dest.Refund(ctx, intent.DestLockID); {
		case err == nil:
			if err := c.store.UpdateStatus(swapID, store.DestRefunded, nil); err != nil {
				return err
			}
		case ledger.IsState(err):
			logger.Debug("destination leg not refundable", zap.Error(err))
		default:
			return err
		}
	}

	switch err := c.source.Refund(ctx, intent.SourceLockID); {
	case err == nil:
		return c.store.UpdateStatus(swapID, store.SourceRefunded, nil)
	case ledger.IsState(err):
		logger.Debug("source leg not refundable", zap.Error(err))
		return nil
	default:
		return err
	}
}

// Recover reloads unfinished swaps from the store after a restart and
// re-drives each from where it stopped: pre-fill swaps only need their expiry
// watched, filled swaps re-enter verification, disclosed swaps re-enter the
// sweep, and aborted swaps stay on the refund path until the source leg comes
// home.
func (c *Coordinator) Recover(ctx context.Context) error {
	records, err := c.store.Unfinished()
	if err != nil {
		return err
	}

	for _, record := range records {
		intent, secret, err := intentFromRecord(record)
		if err != nil {
			c.logger.Error("skipping unrecoverable swap record",
				zap.String("swap", record.SwapID), zap.Error(err))
			continue
		}
		c.mu.Lock()
		c.intents[intent.ID] = intent
		if len(secret) > 0 {
			c.secrets[intent.ID] = secret
		}
		c.mu.Unlock()

		logger := c.logger.With(zap.String("swap", intent.ID.Hex()), zap.Stringer("status", record.Status))
		logger.Info("recovering swap")

		switch {
		case record.Status == store.Aborted || record.Status == store.DestRefunded:
			// disclosure never happened or the resolver already took their
			// leg back; the only thing left to drive is the source refund
			if err := c.Refund(ctx, intent.ID); err != nil {
				logger.Error("refund failed", zap.Error(err))
			}
		case record.Status >= store.Disclosed:
			if err := c.Sweep(ctx, intent.ID); err != nil {
				logger.Error("sweep failed, falling back to refund", zap.Error(err))
				if err := c.Refund(ctx, intent.ID); err != nil {
					logger.Error("refund failed", zap.Error(err))
				}
			}
		case record.Status >= store.Filled:
			if err := c.Settle(ctx, intent.ID); err != nil {
				logger.Error("settle failed, falling back to refund", zap.Error(err))
				if err := c.Refund(ctx, intent.ID); err != nil {
					logger.Error("refund failed", zap.Error(err))
				}
			}
		default:
			// waiting on a fill; refund if the source leg already expired
			if err := c.Refund(ctx, intent.ID); err != nil {
				logger.Error("refund failed", zap.Error(err))
			}
		}
	}
	return nil
}

func intentFromRecord(record store.Swap) (*Intent, []byte, error) {
	swapID, err := parseHash(record.SwapID)
	if err != nil {
		return nil, nil, err
	}
	sourceLockID, err := parseHash(record.SourceLockID)
	if err != nil {
		return nil, nil, err
	}
	hashlock, err := parseHash(record.SecretHash)
	if err != nil {
		return nil, nil, err
	}
	amount, ok := new(big.Int).SetString(record.Amount, 10)
	if !ok {
		return nil, nil, ledger.Validationf("recover", "bad amount %q", record.Amount)
	}

	intent := &Intent{
		ID:             swapID,
		SourceLockID:   sourceLockID,
		Hashlock:       hashlock,
		SourceTimelock: record.SourceTimelock,
		DestTimelock:   record.DestTimelock,
		DestRecipient:  record.Recipient,
		DestToken:      record.Token,
		DestAmount:     amount,
		Resolver:       record.Resolver,
		Verified:       record.Status >= store.Verified,
	}
	if record.DestLockID != "" {
		destLockID, err := parseHash(record.DestLockID)
		if err != nil {
			return nil, nil, err
		}
		intent.DestLockID = destLockID
	}

	var secret []byte
	if record.Secret != "" {
		secret, err = hex.DecodeString(record.Secret)
		if err != nil {
			return nil, nil, err
		}
	}
	return intent, secret, nil
}

func parseHash(s string) (common.Hash, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(raw) != common.HashLength {
		return common.Hash{}, ledger.Validationf("recover", "bad hash length %d", len(raw))
	}
	return common.BytesToHash(raw), nil
}
