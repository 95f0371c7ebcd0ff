// Package coordinator drives a pair of escrow state machines through the
// cross-chain atomic swap protocol: create, fill, verify, disclose, settle.
// The coordinator never hands the secret to the resolver before both legs
// verified, and every abort leaves the affected party with a live refund path.
package coordinator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/crossmesh/fusion/pkg/auction"
	"github.com/crossmesh/fusion/pkg/escrow"
	"github.com/crossmesh/fusion/pkg/ledger"
	"github.com/crossmesh/fusion/pkg/registry"
	"github.com/crossmesh/fusion/pkg/store"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// DiscloseFunc delivers the secret to the registered resolver over whatever
// out-of-band channel the deployment uses. The coordinator only invokes it
// from the success branch of verification.
type DiscloseFunc func(swapID common.Hash, resolver string, secret []byte) error

// Intent tracks one swap across both chains.
type Intent struct {
	ID           common.Hash
	SourceLockID common.Hash
	DestLockID   common.Hash // zero until a resolver fills
	Hashlock     common.Hash

	SourceTimelock time.Time // T1
	DestTimelock   time.Time // T2, strictly before T1 once filled

	// agreed destination-side terms the fill must match
	DestRecipient string
	DestToken     string
	DestAmount    *big.Int

	Resolver string
	Verified bool
}

type Config struct {
	// PollInterval between cross-chain verification probes.
	PollInterval time.Duration

	// SettleMargin is the minimum time that must remain before the destination
	// timelock for a planned action to still plausibly complete. Anything
	// closer aborts into the refund path instead.
	SettleMargin time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		SettleMargin: 30 * time.Second,
	}
}

type Coordinator struct {
	source   *escrow.Escrow
	dest     *escrow.Escrow
	registry registry.Registry
	store    store.Store
	config   Config
	disclose DiscloseFunc
	logger   *zap.Logger

	mu      sync.Mutex
	intents map[common.Hash]*Intent
	secrets map[common.Hash][]byte
}

func New(source, dest *escrow.Escrow, reg registry.Registry, str store.Store, config Config, disclose DiscloseFunc, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		source:   source,
		dest:     dest,
		registry: reg,
		store:    str,
		config:   config,
		disclose: disclose,
		logger:   logger.With(zap.String("service", "coordinator")),
		intents:  map[common.Hash]*Intent{},
		secrets:  map[common.Hash][]byte{},
	}
}

// CreateParams are the user's swap terms. SourceRecipient is the party
// expected to redeem the source leg, which the resolver registration is
// checked against at fill time.
type CreateParams struct {
	SourceRecipient string
	SourceToken     string
	SourceAmount    *big.Int

	DestRecipient string
	DestToken     string
	DestAmount    *big.Int

	SourceTimelock time.Time
}

// Create generates a fresh secret, locks the user's funds on the source chain
// under hash(secret) and records the intent. The secret stays with the
// coordinator until disclosure is permitted.
func (c *Coordinator) Create(ctx context.Context, params CreateParams) (Intent, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return Intent{}, err
	}
	hashlock := ledger.Hashlock(secret)
	lockID := ledger.LockID(hashlock, c.source.Signer().Address())

	err := c.source.Lock(ctx, ledger.LockParams{
		ID:        lockID,
		Hashlock:  hashlock,
		Recipient: params.SourceRecipient,
		Token:     params.SourceToken,
		Amount:    params.SourceAmount,
		Timelock:  params.SourceTimelock,
	})
	if err != nil {
		return Intent{}, err
	}

	intent := &Intent{
		ID:             lockID,
		SourceLockID:   lockID,
		Hashlock:       hashlock,
		SourceTimelock: params.SourceTimelock,
		DestRecipient:  params.DestRecipient,
		DestToken:      params.DestToken,
		DestAmount:     new(big.Int).Set(params.DestAmount),
	}

	c.mu.Lock()
	c.intents[lockID] = intent
	c.secrets[lockID] = secret
	c.mu.Unlock()

	record := store.Swap{
		SwapID:         hex.EncodeToString(lockID.Bytes()),
		SecretHash:     hex.EncodeToString(hashlock.Bytes()),
		Secret:         hex.EncodeToString(secret),
		SourceChain:    c.source.Adapter().Name(),
		DestChain:      c.dest.Adapter().Name(),
		SourceLockID:   hex.EncodeToString(lockID.Bytes()),
		Recipient:      params.DestRecipient,
		Token:          params.DestToken,
		Amount:         params.DestAmount.String(),
		SourceTimelock: params.SourceTimelock,
		Status:         store.Created,
	}
	if err := c.store.PutSwap(record); err != nil {
		return Intent{}, err
	}

	c.logger.Info("swap created",
		zap.String("swap", lockID.Hex()),
		zap.String("hashlock", hashlock.Hex()),
		zap.Time("sourceTimelock", params.SourceTimelock))
	return *intent, nil
}

// Fill registers the resolver and creates the mirrored destination lock with
// the same hashlock. Any fill whose timelock is not strictly before the source
// timelock is rejected: without that ordering the resolver could reveal the
// secret and still be front-run by the user's refund.
func (c *Coordinator) Fill(ctx context.Context, swapID common.Hash, resolver string, destTimelock time.Time) (common.Hash, error) {
	intent, err := c.intent(swapID)
	if err != nil {
		return common.Hash{}, err
	}
	if err := c.admitResolver(ctx, intent, resolver, destTimelock); err != nil {
		return common.Hash{}, err
	}

	c.mu.Lock()
	amount := new(big.Int).Set(intent.DestAmount)
	c.mu.Unlock()
	return c.fill(ctx, intent, resolver, destTimelock, amount)
}

// FillFromBid selects the fill amount through the Dutch auction: the
// resolver's accepted bid commits a price-proportional payment, which becomes
// the destination amount this swap is filled (and later verified) against.
// Admission runs before the bid, so a resolver who loses the registry race or
// brings a bad timelock consumes nothing from the auction and leaves the
// agreed terms untouched.
func (c *Coordinator) FillFromBid(ctx context.Context, swapID common.Hash, engine *auction.Engine, auctionID uint64, resolver string, fillAmount, expectedPrice *big.Int, destTimelock time.Time) (common.Hash, error) {
	intent, err := c.intent(swapID)
	if err != nil {
		return common.Hash{}, err
	}
	if err := c.admitResolver(ctx, intent, resolver, destTimelock); err != nil {
		return common.Hash{}, err
	}

	fill, err := engine.PlaceBid(auctionID, resolver, fillAmount, expectedPrice)
	if err != nil {
		return common.Hash{}, err
	}
	return c.fill(ctx, intent, resolver, destTimelock, fill.Payment)
}

// admitResolver checks the timelock ordering and takes the registry binding.
// A resolver already bound to this swap may come back as long as no
// destination lock exists yet, so a fill attempt that failed after
// registration (a rejected bid, a ledger error) can be retried.
func (c *Coordinator) admitResolver(ctx context.Context, intent *Intent, resolver string, destTimelock time.Time) error {
	const op = "coordinator.Fill"
	if !destTimelock.Before(intent.SourceTimelock) {
		return ledger.Validationf(op,
			"destination timelock %v must be strictly before source timelock %v",
			destTimelock, intent.SourceTimelock)
	}

	err := c.registry.Register(ctx, intent.ID, resolver)
	if err == nil {
		return nil
	}
	if errors.Is(err, registry.ErrAlreadyRegistered) {
		bound, ok, lookupErr := c.registry.Resolver(ctx, intent.ID)
		if lookupErr == nil && ok && bound == resolver && !c.hasFill(intent) {
			return nil
		}
	}
	return err
}

func (c *Coordinator) hasFill(intent *Intent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return intent.DestLockID != (common.Hash{})
}

// fill creates the destination lock for an admitted resolver. The tracked
// intent only changes once the lock exists, and the fill amount is persisted
// so recovery verifies against what was actually locked.
func (c *Coordinator) fill(ctx context.Context, intent *Intent, resolver string, destTimelock time.Time, amount *big.Int) (common.Hash, error) {
	destLockID := ledger.LockID(intent.Hashlock, resolver)
	err := c.dest.Lock(ctx, ledger.LockParams{
		ID:        destLockID,
		Hashlock:  intent.Hashlock,
		Recipient: intent.DestRecipient,
		Token:     intent.DestToken,
		Amount:    amount,
		Timelock:  destTimelock,
	})
	if err != nil {
		return common.Hash{}, err
	}

	c.mu.Lock()
	intent.DestLockID = destLockID
	intent.DestTimelock = destTimelock
	intent.DestAmount = new(big.Int).Set(amount)
	intent.Resolver = resolver
	c.mu.Unlock()

	if err := c.store.SetFill(intent.ID, destLockID, destTimelock, resolver, amount.String()); err != nil {
		return common.Hash{}, err
	}
	c.logger.Info("swap filled",
		zap.String("swap", intent.ID.Hex()),
		zap.String("resolver", resolver),
		zap.String("amount", amount.String()),
		zap.Time("destTimelock", destTimelock))
	return destLockID, nil
}

// Intent returns a copy of the tracked intent.
func (c *Coordinator) Intent(swapID common.Hash) (Intent, error) {
	intent, err := c.intent(swapID)
	if err != nil {
		return Intent{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := *intent
	out.DestAmount = new(big.Int).Set(intent.DestAmount)
	return out, nil
}

func (c *Coordinator) intent(swapID common.Hash) (*Intent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	intent, ok := c.intents[swapID]
	if !ok {
		return nil, ledger.Statef("coordinator", "unknown swap %v", swapID.Hex())
	}
	return intent, nil
}
