// Package auction implements Dutch-auction price discovery with partial
// fills. Price is a step function of ledger time, never client time: a buyer
// computes an expected price, and the engine enforces the real one at commit,
// rejecting bids placed against a stale price instead of retrying them.
package auction

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/crossmesh/fusion/pkg/ledger"
	"go.uber.org/zap"
)

var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrAuctionInactive = errors.New("auction inactive")
	ErrStalePrice      = errors.New("bid priced against a stale price")
	ErrNotSeller       = errors.New("only the seller may do this")
	ErrPartiallyFilled = errors.New("auction already has fills")
)

// Auction holds the live accounting of one sale. filled + remaining always
// equals startAmount, and the cached current price never increases.
type Auction struct {
	ID          uint64
	Seller      string
	Token       string
	StartAmount *big.Int
	MinAmount   *big.Int
	StartTime   time.Time
	Duration    time.Duration
	StepTime    time.Duration
	StepAmount  *big.Int

	Active          bool
	Sold            bool
	Buyer           string
	FilledAmount    *big.Int
	RemainingAmount *big.Int

	proceeds  *big.Int
	withdrawn *big.Int
}

// Fill records one accepted bid.
type Fill struct {
	AuctionID uint64
	Buyer     string
	Amount    *big.Int
	Price     *big.Int
	Payment   *big.Int
	At        time.Time
}

type Engine struct {
	clock  func() time.Time
	logger *zap.Logger

	mu       sync.Mutex
	counter  uint64
	auctions map[uint64]*Auction
}

// NewEngine builds an engine reading time from the given ledger clock.
func NewEngine(clock func() time.Time, logger *zap.Logger) *Engine {
	return &Engine{
		clock:    clock,
		logger:   logger,
		auctions: map[uint64]*Auction{},
	}
}

// CreateAuction escrows the seller's startAmount of token and opens the sale.
func (e *Engine) CreateAuction(seller, token string, startAmount, minAmount *big.Int, duration, stepTime time.Duration, stepAmount *big.Int) (uint64, error) {
	const op = "auction.Create"
	if startAmount == nil || startAmount.Sign() <= 0 {
		return 0, ledger.Validationf(op, "%w", ledger.ErrZeroAmount)
	}
	if minAmount == nil || minAmount.Sign() < 0 || minAmount.Cmp(startAmount) > 0 {
		return 0, ledger.Validationf(op, "minAmount must be within [0, startAmount]")
	}
	if duration <= 0 {
		return 0, ledger.Validationf(op, "duration must be positive")
	}
	if stepTime <= 0 {
		return 0, ledger.Validationf(op, "stepTime must be positive")
	}
	if stepAmount == nil || stepAmount.Sign() < 0 {
		return 0, ledger.Validationf(op, "stepAmount must not be negative")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.counter++
	a := &Auction{
		ID:          e.counter,
		Seller:      seller,
		Token:       token,
		StartAmount: new(big.Int).Set(startAmount),
		MinAmount:   new(big.Int).Set(minAmount),
		StartTime:   e.clock(),
		Duration:    duration,
		StepTime:    stepTime,
		StepAmount:  new(big.Int).Set(stepAmount),

		Active:          true,
		FilledAmount:    big.NewInt(0),
		RemainingAmount: new(big.Int).Set(startAmount),

		proceeds:  big.NewInt(0),
		withdrawn: big.NewInt(0),
	}
	e.auctions[a.ID] = a
	e.logger.Info("auction created",
		zap.Uint64("id", a.ID),
		zap.String("seller", seller),
		zap.String("startAmount", startAmount.String()),
		zap.String("minAmount", minAmount.String()))
	return a.ID, nil
}

// PriceAt computes the step-decayed price at the given ledger time. It is a
// monotonically non-increasing function of time, floored at minAmount, and is
// never re-evaluated retroactively.
func (a *Auction) PriceAt(now time.Time) *big.Int {
	elapsed := now.Sub(a.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > a.Duration {
		elapsed = a.Duration
	}
	steps := int64(elapsed / a.StepTime)
	decay := new(big.Int).Mul(a.StepAmount, big.NewInt(steps))
	price := new(big.Int).Sub(a.StartAmount, decay)
	if price.Cmp(a.MinAmount) < 0 {
		price.Set(a.MinAmount)
	}
	return price
}

// CurrentPrice evaluates PriceAt against the engine clock.
func (e *Engine) CurrentPrice(id uint64) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.auctions[id]
	if !ok {
		return nil, ledger.Statef("auction.CurrentPrice", "%w: %d", ErrAuctionNotFound, id)
	}
	return a.PriceAt(e.clock()), nil
}

// PriceAt exposes the pure price function for a known auction at a caller
// chosen time.
func (e *Engine) PriceAt(id uint64, now time.Time) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.auctions[id]
	if !ok {
		return nil, ledger.Statef("auction.PriceAt", "%w: %d", ErrAuctionNotFound, id)
	}
	return a.PriceAt(now), nil
}

// PlaceBid consumes fillAmount of the auction at the committed price. A nil
// fillAmount targets the whole remaining amount. When expectedPrice is given
// and the committed price is higher, the bid is rejected rather than settled
// at a worse price than the buyer signed for. Payment is proportional for
// partial fills: price * fill / startAmount.
func (e *Engine) PlaceBid(id uint64, buyer string, fillAmount, expectedPrice *big.Int) (Fill, error) {
	const op = "auction.PlaceBid"
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.auctions[id]
	if !ok {
		return Fill{}, ledger.Statef(op, "%w: %d", ErrAuctionNotFound, id)
	}
	now := e.clock()
	e.expire(a, now)
	if !a.Active {
		return Fill{}, ledger.Statef(op, "%w: %d", ErrAuctionInactive, id)
	}

	if fillAmount == nil {
		fillAmount = a.RemainingAmount
	}
	if fillAmount.Sign() <= 0 {
		return Fill{}, ledger.Validationf(op, "%w", ledger.ErrZeroAmount)
	}
	if fillAmount.Cmp(a.RemainingAmount) > 0 {
		return Fill{}, ledger.Validationf(op, "fill %v exceeds remaining %v", fillAmount, a.RemainingAmount)
	}

	price := a.PriceAt(now)
	if expectedPrice != nil && price.Cmp(expectedPrice) > 0 {
		return Fill{}, ledger.Statef(op, "%w: committed %v, expected %v", ErrStalePrice, price, expectedPrice)
	}

	// payment settles atomically with the accounting update below
	payment := new(big.Int).Mul(price, fillAmount)
	payment.Div(payment, a.StartAmount)

	fill := Fill{
		AuctionID: id,
		Buyer:     buyer,
		Amount:    new(big.Int).Set(fillAmount),
		Price:     price,
		Payment:   payment,
		At:        now,
	}
	a.FilledAmount.Add(a.FilledAmount, fillAmount)
	a.RemainingAmount.Sub(a.RemainingAmount, fillAmount)
	a.proceeds.Add(a.proceeds, payment)
	a.Buyer = buyer
	if a.RemainingAmount.Sign() == 0 {
		a.Active = false
		a.Sold = true
	}

	e.logger.Info("bid filled",
		zap.Uint64("id", id),
		zap.String("buyer", buyer),
		zap.String("fill", fill.Amount.String()),
		zap.String("price", price.String()),
		zap.Bool("sold", a.Sold))
	return fill, nil
}

// CancelAuction returns the escrowed amount to the seller. Allowed only before
// any fill has happened.
func (e *Engine) CancelAuction(id uint64, caller string) error {
	const op = "auction.Cancel"
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.auctions[id]
	if !ok {
		return ledger.Statef(op, "%w: %d", ErrAuctionNotFound, id)
	}
	if caller != a.Seller {
		return ledger.Statef(op, "%w", ErrNotSeller)
	}
	if !a.Active {
		return ledger.Statef(op, "%w: %d", ErrAuctionInactive, id)
	}
	if a.FilledAmount.Sign() != 0 {
		return ledger.Statef(op, "%w", ErrPartiallyFilled)
	}
	a.Active = false
	e.logger.Info("auction cancelled", zap.Uint64("id", id))
	return nil
}

// WithdrawProceeds pays the seller whatever accumulated since the last call.
// Safe to call repeatedly; the withdrawn balance never pays out twice.
func (e *Engine) WithdrawProceeds(id uint64, caller string) (*big.Int, error) {
	const op = "auction.WithdrawProceeds"
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.auctions[id]
	if !ok {
		return nil, ledger.Statef(op, "%w: %d", ErrAuctionNotFound, id)
	}
	if caller != a.Seller {
		return nil, ledger.Statef(op, "%w", ErrNotSeller)
	}
	payout := new(big.Int).Sub(a.proceeds, a.withdrawn)
	a.withdrawn.Add(a.withdrawn, payout)
	e.logger.Info("proceeds withdrawn", zap.Uint64("id", id), zap.String("amount", payout.String()))
	return payout, nil
}

// Get returns a copy of the auction's current accounting.
func (e *Engine) Get(id uint64) (Auction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.auctions[id]
	if !ok {
		return Auction{}, ledger.Statef("auction.Get", "%w: %d", ErrAuctionNotFound, id)
	}
	e.expire(a, e.clock())
	out := *a
	out.StartAmount = new(big.Int).Set(a.StartAmount)
	out.MinAmount = new(big.Int).Set(a.MinAmount)
	out.StepAmount = new(big.Int).Set(a.StepAmount)
	out.FilledAmount = new(big.Int).Set(a.FilledAmount)
	out.RemainingAmount = new(big.Int).Set(a.RemainingAmount)
	out.proceeds = new(big.Int).Set(a.proceeds)
	out.withdrawn = new(big.Int).Set(a.withdrawn)
	return out, nil
}

// expire flips an auction inactive once its duration has elapsed with amount
// still remaining. Evaluated lazily on access, like the on-chain contracts do.
func (e *Engine) expire(a *Auction, now time.Time) {
	if a.Active && now.After(a.StartTime.Add(a.Duration)) && a.RemainingAmount.Sign() > 0 {
		a.Active = false
	}
}
