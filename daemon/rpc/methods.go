package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/crossmesh/fusion/pkg/auction"
	"github.com/crossmesh/fusion/pkg/coordinator"
	"github.com/crossmesh/fusion/pkg/ledger"
	"github.com/crossmesh/fusion/pkg/store"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Core bundles the services the RPC methods operate on.
type Core struct {
	Coordinator *coordinator.Coordinator
	Auctions    *auction.Engine
	Store       store.Store
	Logger      *zap.Logger
}

// Methods returns every method the daemon serves.
func Methods(core Core) []Method {
	return []Method{
		createSwap{core},
		fillSwap{core},
		bidFill{core},
		settleSwap{core},
		refundSwap{core},
		getSwap{core},
		getSecret{core},
		createAuction{core},
		getPrice{core},
		placeBid{core},
		cancelAuction{core},
		withdrawProceeds{core},
		getAuction{core},
	}
}

func amount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

type createSwap struct{ core Core }

func (m createSwap) Name() string { return "createSwap" }

func (m createSwap) Query(params json.RawMessage) (json.RawMessage, error) {
	var req struct {
		SourceRecipient string `json:"sourceRecipient"`
		SourceToken     string `json:"sourceToken"`
		SourceAmount    string `json:"sourceAmount"`
		DestRecipient   string `json:"destRecipient"`
		DestToken       string `json:"destToken"`
		DestAmount      string `json:"destAmount"`
		SourceTimelock  int64  `json:"sourceTimelock"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	sourceAmount, err := amount(req.SourceAmount)
	if err != nil {
		return nil, err
	}
	destAmount, err := amount(req.DestAmount)
	if err != nil {
		return nil, err
	}

	intent, err := m.core.Coordinator.Create(context.Background(), coordinator.CreateParams{
		SourceRecipient: req.SourceRecipient,
		SourceToken:     req.SourceToken,
		SourceAmount:    sourceAmount,
		DestRecipient:   req.DestRecipient,
		DestToken:       req.DestToken,
		DestAmount:      destAmount,
		SourceTimelock:  time.Unix(req.SourceTimelock, 0),
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{
		"swapId":   intent.ID.Hex(),
		"hashlock": intent.Hashlock.Hex(),
	})
}

type fillSwap struct{ core Core }

func (m fillSwap) Name() string { return "fillSwap" }

func (m fillSwap) Query(params json.RawMessage) (json.RawMessage, error) {
	var req struct {
		SwapID       string `json:"swapId"`
		Resolver     string `json:"resolver"`
		DestTimelock int64  `json:"destTimelock"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	destLockID, err := m.core.Coordinator.Fill(context.Background(),
		common.HexToHash(req.SwapID), req.Resolver, time.Unix(req.DestTimelock, 0))
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"destLockId": destLockID.Hex()})
}

type bidFill struct{ core Core }

func (m bidFill) Name() string { return "bidFill" }

func (m bidFill) Query(params json.RawMessage) (json.RawMessage, error) {
	var req struct {
		SwapID        string `json:"swapId"`
		AuctionID     uint64 `json:"auctionId"`
		Resolver      string `json:"resolver"`
		FillAmount    string `json:"fillAmount,omitempty"`
		ExpectedPrice string `json:"expectedPrice,omitempty"`
		DestTimelock  int64  `json:"destTimelock"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	var fillAmount, expectedPrice *big.Int
	var err error
	if req.FillAmount != "" {
		if fillAmount, err = amount(req.FillAmount); err != nil {
			return nil, err
		}
	}
	if req.ExpectedPrice != "" {
		if expectedPrice, err = amount(req.ExpectedPrice); err != nil {
			return nil, err
		}
	}

	destLockID, err := m.core.Coordinator.FillFromBid(context.Background(),
		common.HexToHash(req.SwapID), m.core.Auctions, req.AuctionID, req.Resolver,
		fillAmount, expectedPrice, time.Unix(req.DestTimelock, 0))
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"destLockId": destLockID.Hex()})
}

type settleSwap struct{ core Core }

func (m settleSwap) Name() string { return "settleSwap" }

// Query starts settlement in the background; verification can poll for a long
// time, so the RPC call only acknowledges.
func (m settleSwap) Query(params json.RawMessage) (json.RawMessage, error) {
	var req struct {
		SwapID string `json:"swapId"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	swapID := common.HexToHash(req.SwapID)
	go func() {
		if err := m.core.Coordinator.Settle(context.Background(), swapID); err != nil {
			m.core.Logger.Error("settle failed", zap.String("swap", swapID.Hex()), zap.Error(err))
		}
	}()
	return json.Marshal(map[string]bool{"accepted": true})
}

type refundSwap struct{ core Core }

func (m refundSwap) Name() string { return "refundSwap" }

func (m refundSwap) Query(params json.RawMessage) (json.RawMessage, error) {
	var req struct {
		SwapID string `json:"swapId"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	if err := m.core.Coordinator.Refund(context.Background(), common.HexToHash(req.SwapID)); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]bool{"ok": true})
}

type getSwap struct{ core Core }

func (m getSwap) Name() string { return "getSwap" }

func (m getSwap) Query(params json.RawMessage) (json.RawMessage, error) {
	var req struct {
		SwapID string `json:"swapId"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	record, err := m.core.Store.Swap(common.HexToHash(req.SwapID))
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]interface{}{
		"swapId":         record.SwapID,
		"secretHash":     record.SecretHash,
		"sourceChain":    record.SourceChain,
		"destChain":      record.DestChain,
		"sourceLockId":   record.SourceLockID,
		"destLockId":     record.DestLockID,
		"recipient":      record.Recipient,
		"token":          record.Token,
		"amount":         record.Amount,
		"sourceTimelock": record.SourceTimelock.Unix(),
		"destTimelock":   record.DestTimelock.Unix(),
		"resolver":       record.Resolver,
		"status":         record.Status.String(),
		"error":          record.Error,
	})
}

type getSecret struct{ core Core }

func (m getSecret) Name() string { return "getSecret" }

// Query serves the secret to the resolver once the coordinator disclosed it.
// Aborted and refunded swaps either never reached disclosure or have nothing
// left to redeem, so their secret stays sealed in the store.
func (m getSecret) Query(params json.RawMessage) (json.RawMessage, error) {
	var req struct {
		SwapID string `json:"swapId"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	swapID := common.HexToHash(req.SwapID)
	record, err := m.core.Store.Swap(swapID)
	if err != nil {
		return nil, err
	}
	if record.Status < store.Disclosed || record.Status > store.Settled {
		return nil, ledger.Statef("rpc.getSecret",
			"swap %v is %v, secret is not disclosed", swapID.Hex(), record.Status)
	}
	secret, err := m.core.Store.Secret(swapID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"secret": secret})
}

type createAuction struct{ core Core }

func (m createAuction) Name() string { return "createAuction" }

func (m createAuction) Query(params json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Seller      string `json:"seller"`
		Token       string `json:"token"`
		StartAmount string `json:"startAmount"`
		MinAmount   string `json:"minAmount"`
		Duration    int64  `json:"duration"`
		StepTime    int64  `json:"stepTime"`
		StepAmount  string `json:"stepAmount"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	startAmount, err := amount(req.StartAmount)
	if err != nil {
		return nil, err
	}
	minAmount, err := amount(req.MinAmount)
	if err != nil {
		return nil, err
	}
	stepAmount, err := amount(req.StepAmount)
	if err != nil {
		return nil, err
	}

	id, err := m.core.Auctions.CreateAuction(req.Seller, req.Token, startAmount, minAmount,
		time.Duration(req.Duration)*time.Second, time.Duration(req.StepTime)*time.Second, stepAmount)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]uint64{"auctionId": id})
}

type getPrice struct{ core Core }

func (m getPrice) Name() string { return "getPrice" }

func (m getPrice) Query(params json.RawMessage) (json.RawMessage, error) {
	var req struct {
		AuctionID uint64 `json:"auctionId"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	price, err := m.core.Auctions.CurrentPrice(req.AuctionID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"price": price.String()})
}

type placeBid struct{ core Core }

func (m placeBid) Name() string { return "placeBid" }

func (m placeBid) Query(params json.RawMessage) (json.RawMessage, error) {
	var req struct {
		AuctionID     uint64 `json:"auctionId"`
		Buyer         string `json:"buyer"`
		FillAmount    string `json:"fillAmount,omitempty"`
		ExpectedPrice string `json:"expectedPrice,omitempty"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	var fillAmount, expectedPrice *big.Int
	var err error
	if req.FillAmount != "" {
		if fillAmount, err = amount(req.FillAmount); err != nil {
			return nil, err
		}
	}
	if req.ExpectedPrice != "" {
		if expectedPrice, err = amount(req.ExpectedPrice); err != nil {
			return nil, err
		}
	}

	fill, err := m.core.Auctions.PlaceBid(req.AuctionID, req.Buyer, fillAmount, expectedPrice)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{
		"amount":  fill.Amount.String(),
		"price":   fill.Price.String(),
		"payment": fill.Payment.String(),
	})
}

type cancelAuction struct{ core Core }

func (m cancelAuction) Name() string { return "cancelAuction" }

func (m cancelAuction) Query(params json.RawMessage) (json.RawMessage, error) {
	var req struct {
		AuctionID uint64 `json:"auctionId"`
		Caller    string `json:"caller"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	if err := m.core.Auctions.CancelAuction(req.AuctionID, req.Caller); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]bool{"ok": true})
}

type withdrawProceeds struct{ core Core }

func (m withdrawProceeds) Name() string { return "withdrawProceeds" }

func (m withdrawProceeds) Query(params json.RawMessage) (json.RawMessage, error) {
	var req struct {
		AuctionID uint64 `json:"auctionId"`
		Caller    string `json:"caller"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	payout, err := m.core.Auctions.WithdrawProceeds(req.AuctionID, req.Caller)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"amount": payout.String()})
}

type getAuction struct{ core Core }

func (m getAuction) Name() string { return "getAuction" }

func (m getAuction) Query(params json.RawMessage) (json.RawMessage, error) {
	var req struct {
		AuctionID uint64 `json:"auctionId"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	a, err := m.core.Auctions.Get(req.AuctionID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]interface{}{
		"id":              a.ID,
		"seller":          a.Seller,
		"token":           a.Token,
		"startAmount":     a.StartAmount.String(),
		"minAmount":       a.MinAmount.String(),
		"startTime":       a.StartTime.Unix(),
		"duration":        int64(a.Duration.Seconds()),
		"stepTime":        int64(a.StepTime.Seconds()),
		"stepAmount":      a.StepAmount.String(),
		"active":          a.Active,
		"sold":            a.Sold,
		"buyer":           a.Buyer,
		"filledAmount":    a.FilledAmount.String(),
		"remainingAmount": a.RemainingAmount.String(),
	})
}
