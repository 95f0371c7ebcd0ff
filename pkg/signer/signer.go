package signer

import (
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is the signing context passed explicitly into every mutating ledger
// call. It owns a locally tracked sequence number: ledgers reject out-of-order
// or duplicate sequences, so all submissions from one signer are serialized
// here and the sequence only advances once the ledger accepts the call.
type Signer struct {
	key     *ecdsa.PrivateKey
	address string

	mu  sync.Mutex
	seq uint64
}

// New returns a signer whose address is derived from the given ECDSA key.
func New(key *ecdsa.PrivateKey) *Signer {
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}
}

// NewAccount returns a signer for a named ledger account. The key may be nil
// for ledgers which authenticate by account id, such as the simulated ledger.
func NewAccount(account string, key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, address: account}
}

func (s *Signer) Address() string {
	return s.address
}

// Key returns the underlying signing key, or an error when the signer was
// created without one.
func (s *Signer) Key() (*ecdsa.PrivateKey, error) {
	if s.key == nil {
		return nil, fmt.Errorf("signer %v has no signing key", s.address)
	}
	return s.key, nil
}

// Sequence returns the next sequence number which will be used.
func (s *Signer) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// SetSequence resets the local counter, used when re-syncing with the ledger
// after a restart.
func (s *Signer) SetSequence(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = seq
}

// Submit runs fn with the next sequence number while holding the signer lock,
// so no two mutating calls from this signer are ever in flight concurrently.
// The sequence advances only when fn succeeds; a failed submission may be
// re-submitted with the same sequence.
func (s *Signer) Submit(fn func(seq uint64) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.seq); err != nil {
		return err
	}
	s.seq++
	return nil
}
