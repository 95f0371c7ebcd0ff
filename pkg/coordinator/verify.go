package coordinator

import (
	"context"
	"time"

	"github.com/crossmesh/fusion/pkg/ledger"
	"github.com/crossmesh/fusion/pkg/store"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Verify polls both ledgers until each lock is observed at its chain's
// finality, then checks that the destination leg matches the agreed terms.
// The loop is cancellable through ctx, re-checks the destination timelock on
// every iteration, and aborts the disclosure path entirely once too little
// time remains to plausibly settle before it.
//
// A parameter mismatch is not retried: the locks are immutable, so a mismatch
// observed at finality is final, and the only remaining path for both parties
// is refund after their own timelocks.
func (c *Coordinator) Verify(ctx context.Context, swapID common.Hash) error {
	const op = "coordinator.Verify"

	// snapshot under the lock; a concurrent fill must not change the terms
	// this pass verifies against
	intent, err := c.Intent(swapID)
	if err != nil {
		return err
	}
	if intent.DestLockID == (common.Hash{}) {
		return ledger.Statef(op, "swap %v has no fill to verify", swapID.Hex())
	}
	logger := c.logger.With(zap.String("swap", swapID.Hex()))

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		now, err := c.dest.Adapter().Now(ctx)
		if err == nil && !now.Add(c.config.SettleMargin).Before(intent.DestTimelock) {
			abortErr := ledger.Deadlinef(op,
				"insufficient time before destination timelock %v, ledger time %v",
				intent.DestTimelock, now)
			c.abort(swapID, abortErr)
			return abortErr
		}

		done, err := c.probe(ctx, intent, logger)
		if err != nil {
			c.abort(swapID, err)
			return err
		}
		if done {
			c.mu.Lock()
			if tracked, ok := c.intents[swapID]; ok {
				tracked.Verified = true
			}
			c.mu.Unlock()
			if err := c.store.UpdateStatus(swapID, store.Verified, nil); err != nil {
				return err
			}
			logger.Info("swap verified")
			return nil
		}

		select {
		case <-ctx.Done():
			return ledger.Deadlinef(op, "verification cancelled: %v", ctx.Err())
		case <-ticker.C:
		}
	}
}

// probe performs one verification pass. It returns done=true when both locks
// are final, still Locked, and the destination leg matches the agreed
// (hashlock, recipient, token, amount) tuple. A mismatch is a hard error;
// transient read failures and not-yet-final locks leave the loop polling.
func (c *Coordinator) probe(ctx context.Context, intent Intent, logger *zap.Logger) (bool, error) {
	const op = "coordinator.Verify"

	srcFinal, err := c.source.Adapter().Finalized(ctx, intent.SourceLockID)
	if err != nil || !srcFinal {
		return false, nil
	}
	dstFinal, err := c.dest.Adapter().Finalized(ctx, intent.DestLockID)
	if err != nil || !dstFinal {
		return false, nil
	}

	srcLock, err := c.source.Get(ctx, intent.SourceLockID)
	if err != nil {
		return false, nil
	}
	dstLock, err := c.dest.Get(ctx, intent.DestLockID)
	if err != nil {
		return false, nil
	}

	if srcLock.State != ledger.Locked {
		return false, ledger.Statef(op, "source lock is %v", srcLock.State)
	}
	if dstLock.State != ledger.Locked {
		return false, ledger.Statef(op, "destination lock is %v", dstLock.State)
	}
	if srcLock.Hashlock != dstLock.Hashlock {
		return false, ledger.Validationf(op, "hashlock mismatch: source %v, destination %v",
			srcLock.Hashlock.Hex(), dstLock.Hashlock.Hex())
	}
	if dstLock.Recipient != intent.DestRecipient {
		return false, ledger.Validationf(op, "recipient mismatch: locked for %v, agreed %v",
			dstLock.Recipient, intent.DestRecipient)
	}
	if dstLock.Token != intent.DestToken {
		return false, ledger.Validationf(op, "token mismatch: locked %v, agreed %v",
			dstLock.Token, intent.DestToken)
	}
	if dstLock.Amount.Cmp(intent.DestAmount) != 0 {
		return false, ledger.Validationf(op, "amount mismatch: locked %v, agreed %v",
			dstLock.Amount, intent.DestAmount)
	}
	logger.Debug("both locks final and matching")
	return true, nil
}

// Disclose hands the secret to the registered resolver. This is the only
// place the secret leaves the coordinator, and it is gated on verification
// having succeeded.
func (c *Coordinator) Disclose(ctx context.Context, swapID common.Hash) error {
	const op = "coordinator.Disclose"
	intent, err := c.intent(swapID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	verified := intent.Verified
	resolver := intent.Resolver
	secret := c.secrets[swapID]
	c.mu.Unlock()

	if !verified {
		return ledger.Statef(op, "swap %v is not verified, refusing to disclose", swapID.Hex())
	}
	if len(secret) == 0 {
		return ledger.Statef(op, "swap %v was not created by this coordinator", swapID.Hex())
	}

	if err := c.disclose(swapID, resolver, secret); err != nil {
		return err
	}
	if err := c.store.UpdateStatus(swapID, store.Disclosed, nil); err != nil {
		return err
	}
	c.logger.Info("secret disclosed",
		zap.String("swap", swapID.Hex()),
		zap.String("resolver", resolver))
	return nil
}

// abort marks the swap dead for the disclosure path. Funds are untouched: the
// resolver's leg refunds after T2 and the user's after T1, which Refund drives.
func (c *Coordinator) abort(swapID common.Hash, cause error) {
	if err := c.store.UpdateStatus(swapID, store.Aborted, cause); err != nil {
		c.logger.Error("failed to record abort", zap.Error(err))
	}
	c.logger.Warn("swap aborted, refund is the only remaining path",
		zap.String("swap", swapID.Hex()),
		zap.Error(cause))
}
