// Package evm adapts an on-chain HTLC escrow contract to the ledger.Adapter
// interface. Timelocks are absolute unix timestamps on chain and all timelock
// comparisons use block time, not the local clock.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/crossmesh/fusion/pkg/ledger"
	"github.com/crossmesh/fusion/pkg/signer"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const escrowABI = `[
	{"type":"function","name":"createLock","stateMutability":"nonpayable","inputs":[{"name":"id","type":"bytes32"},{"name":"recipient","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"hashlock","type":"bytes32"},{"name":"timelock","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"id","type":"bytes32"},{"name":"secret","type":"bytes"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"refund","stateMutability":"nonpayable","inputs":[{"name":"id","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"getLock","stateMutability":"view","inputs":[{"name":"id","type":"bytes32"}],"outputs":[{"name":"sender","type":"address"},{"name":"recipient","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"hashlock","type":"bytes32"},{"name":"timelock","type":"uint256"},{"name":"createdAt","type":"uint256"},{"name":"state","type":"uint8"}]},
	{"type":"event","name":"Withdrawn","inputs":[{"name":"id","type":"bytes32","indexed":true},{"name":"hashlock","type":"bytes32","indexed":true},{"name":"secret","type":"bytes","indexed":false}],"anonymous":false}
]`

// contract lock states, matching the solidity enum
const (
	stateInvalid uint8 = iota
	stateLocked
	stateWithdrawn
	stateRefunded
)

type Config struct {
	// Name identifies the chain in logs and store records, e.g. "sepolia".
	Name string

	// Contract is the deployed HTLC escrow address.
	Contract common.Address

	// Confirmations a lock needs before the coordinator treats it as final.
	Confirmations uint64
}

type Adapter struct {
	config   Config
	client   *ethclient.Client
	chainID  *big.Int
	abi      abi.ABI
	contract *bind.BoundContract
	logger   *zap.Logger
}

func New(config Config, client *ethclient.Client, logger *zap.Logger) (*Adapter, error) {
	parsed, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %v", err)
	}
	return &Adapter{
		config:   config,
		client:   client,
		chainID:  chainID,
		abi:      parsed,
		contract: bind.NewBoundContract(config.Contract, parsed, client, client, client),
		logger:   logger.With(zap.String("chain", config.Name)),
	}, nil
}

func (a *Adapter) Name() string {
	return a.config.Name
}

// SyncSequence aligns the signer's local counter with the chain's pending
// nonce, used once at startup before the first submission.
func (a *Adapter) SyncSequence(ctx context.Context, s *signer.Signer) error {
	nonce, err := a.client.PendingNonceAt(ctx, common.HexToAddress(s.Address()))
	if err != nil {
		return ledger.Transientf("evm.SyncSequence", "%v", err)
	}
	s.SetSequence(nonce)
	return nil
}

func (a *Adapter) CreateLock(ctx context.Context, s *signer.Signer, params ledger.LockParams) error {
	if !common.IsHexAddress(params.Recipient) {
		return ledger.Validationf("evm.CreateLock", "invalid recipient address: %v", params.Recipient)
	}
	if !common.IsHexAddress(params.Token) {
		return ledger.Validationf("evm.CreateLock", "invalid token address: %v", params.Token)
	}
	return a.transact(ctx, s, "createLock",
		params.ID,
		common.HexToAddress(params.Recipient),
		common.HexToAddress(params.Token),
		params.Amount,
		params.Hashlock,
		big.NewInt(params.Timelock.Unix()),
	)
}

func (a *Adapter) Withdraw(ctx context.Context, s *signer.Signer, id common.Hash, secret []byte) error {
	return a.transact(ctx, s, "withdraw", id, secret)
}

func (a *Adapter) Refund(ctx context.Context, s *signer.Signer, id common.Hash) error {
	return a.transact(ctx, s, "refund", id)
}

func (a *Adapter) GetLock(ctx context.Context, id common.Hash) (ledger.Lock, error) {
	sender, recipient, token, amount, hashlock, timelock, _, state, err := a.rawLock(ctx, id)
	if err != nil {
		return ledger.Lock{}, err
	}
	if state == stateInvalid {
		return ledger.Lock{}, ledger.ErrLockNotFound
	}

	lock := ledger.Lock{
		ID:        id,
		Hashlock:  hashlock,
		Sender:    sender.Hex(),
		Recipient: recipient.Hex(),
		Token:     token.Hex(),
		Amount:    amount,
		Timelock:  time.Unix(timelock.Int64(), 0),
	}
	switch state {
	case stateLocked:
		lock.State = ledger.Locked
	case stateWithdrawn:
		lock.State = ledger.Withdrawn
	case stateRefunded:
		lock.State = ledger.Refunded
	}

	// the secret is on chain in the Withdrawn event, recover it from the logs
	if lock.State == ledger.Withdrawn {
		secret, err := a.revealedSecret(ctx, id, hashlock)
		if err != nil {
			return ledger.Lock{}, err
		}
		lock.Secret = secret
	}
	return lock, nil
}

func (a *Adapter) Now(ctx context.Context) (time.Time, error) {
	header, err := a.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return time.Time{}, ledger.Transientf("evm.Now", "%v", err)
	}
	return time.Unix(int64(header.Time), 0), nil
}

func (a *Adapter) Finalized(ctx context.Context, id common.Hash) (bool, error) {
	_, _, _, _, _, _, createdAt, state, err := a.rawLock(ctx, id)
	if err != nil {
		return false, err
	}
	if state == stateInvalid {
		return false, ledger.ErrLockNotFound
	}
	header, err := a.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return false, ledger.Transientf("evm.Finalized", "%v", err)
	}
	confirmed := new(big.Int).Sub(header.Number, createdAt)
	return confirmed.Cmp(new(big.Int).SetUint64(a.config.Confirmations)) >= 0, nil
}

func (a *Adapter) rawLock(ctx context.Context, id common.Hash) (sender, recipient, token common.Address, amount *big.Int, hashlock common.Hash, timelock, createdAt *big.Int, state uint8, err error) {
	var out []interface{}
	if callErr := a.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getLock", id); callErr != nil {
		err = ledger.Transientf("evm.getLock", "%v", callErr)
		return
	}
	sender = out[0].(common.Address)
	recipient = out[1].(common.Address)
	token = out[2].(common.Address)
	amount = out[3].(*big.Int)
	hashlock = common.Hash(out[4].([32]byte))
	timelock = out[5].(*big.Int)
	createdAt = out[6].(*big.Int)
	state = out[7].(uint8)
	return
}

func (a *Adapter) revealedSecret(ctx context.Context, id, hashlock common.Hash) ([]byte, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{a.config.Contract},
		Topics: [][]common.Hash{
			{a.abi.Events["Withdrawn"].ID},
			{id},
			{hashlock},
		},
	}
	logs, err := a.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, ledger.Transientf("evm.revealedSecret", "%v", err)
	}
	for _, log := range logs {
		values, err := a.abi.Events["Withdrawn"].Inputs.NonIndexed().Unpack(log.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack Withdrawn event: %v", err)
		}
		return values[0].([]byte), nil
	}
	return nil, fmt.Errorf("secret not found in logs for %v", id.Hex())
}

// transact submits one mutating call under the signer's sequence lock, with
// the sequence used as the transaction nonce, and waits for it to be mined.
func (a *Adapter) transact(ctx context.Context, s *signer.Signer, method string, args ...interface{}) error {
	key, err := s.Key()
	if err != nil {
		return ledger.Validationf(method, "%v", err)
	}
	return s.Submit(func(seq uint64) error {
		opts, err := bind.NewKeyedTransactorWithChainID(key, a.chainID)
		if err != nil {
			return err
		}
		opts.Context = ctx
		opts.Nonce = new(big.Int).SetUint64(seq)

		// reverts and transport errors surface raw so the retry classifier
		// can tell them apart by shape
		tx, err := a.contract.Transact(opts, method, args...)
		if err != nil {
			return err
		}
		receipt, err := bind.WaitMined(ctx, a.client, tx)
		if err != nil {
			return err
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return ledger.Statef(method, "transaction %v reverted", tx.Hash())
		}
		a.logger.Info("transaction mined",
			zap.String("method", method),
			zap.String("tx-hash", receipt.TxHash.String()))
		return nil
	})
}
