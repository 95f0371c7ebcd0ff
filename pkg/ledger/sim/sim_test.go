package sim_test

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/crossmesh/fusion/pkg/ledger"
	"github.com/crossmesh/fusion/pkg/ledger/sim"
	"github.com/crossmesh/fusion/pkg/signer"
	"go.uber.org/zap"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Sim ledger", func() {
	var (
		ctx   context.Context
		chain *sim.Ledger
		alice *signer.Signer
	)

	const token = "usdc"

	secret := []byte("only alice knows this")

	BeforeEach(func() {
		ctx = context.Background()
		logger := zap.NewNop()
		start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		chain = sim.New("simnet", start, 10*time.Minute, logger)
		alice = signer.NewAccount("alice", nil)
		chain.Fund(token, "alice", big.NewInt(1_000_000))
	})

	lock := func() ledger.LockParams {
		now, err := chain.Now(ctx)
		Expect(err).Should(BeNil())
		hashlock := ledger.Hashlock(secret)
		params := ledger.LockParams{
			ID:        ledger.LockID(hashlock, "alice"),
			Hashlock:  hashlock,
			Recipient: "bob",
			Token:     token,
			Amount:    big.NewInt(500_000),
			Timelock:  now.Add(2 * time.Hour),
		}
		Expect(chain.CreateLock(ctx, alice, params)).Should(Succeed())
		return params
	}

	Context("finality", func() {
		It("should hold back finality for the configured delay", func() {
			params := lock()

			final, err := chain.Finalized(ctx, params.ID)
			Expect(err).Should(BeNil())
			Expect(final).Should(BeFalse())

			chain.Advance(10 * time.Minute)
			final, err = chain.Finalized(ctx, params.ID)
			Expect(err).Should(BeNil())
			Expect(final).Should(BeTrue())
		})

		It("should not know unobserved locks", func() {
			_, err := chain.Finalized(ctx, ledger.LockID(ledger.Hashlock(secret), "nobody"))
			Expect(err).Should(MatchError(ledger.ErrLockNotFound))
		})
	})

	Context("sequences", func() {
		It("should advance the signer sequence per accepted submission", func() {
			Expect(alice.Sequence()).Should(BeZero())
			params := lock()
			Expect(alice.Sequence()).Should(Equal(uint64(1)))

			chain.Advance(3 * time.Hour)
			Expect(chain.Refund(ctx, alice, params.ID)).Should(Succeed())
			Expect(alice.Sequence()).Should(Equal(uint64(2)))
		})

		It("should reject a signer whose sequence is out of sync", func() {
			desynced := signer.NewAccount("alice", nil)
			desynced.SetSequence(7)

			now, err := chain.Now(ctx)
			Expect(err).Should(BeNil())
			hashlock := ledger.Hashlock(secret)
			err = chain.CreateLock(ctx, desynced, ledger.LockParams{
				ID:        ledger.LockID(hashlock, "alice"),
				Hashlock:  hashlock,
				Recipient: "bob",
				Token:     token,
				Amount:    big.NewInt(1),
				Timelock:  now.Add(time.Hour),
			})
			Expect(errors.Is(err, ledger.ErrBadSequence)).Should(BeTrue())

			By("The failed submission does not burn the sequence")
			Expect(desynced.Sequence()).Should(Equal(uint64(7)))
		})

		It("should leave the sequence untouched by injected faults", func() {
			chain.FailNext("createLock", 1)
			now, err := chain.Now(ctx)
			Expect(err).Should(BeNil())
			hashlock := ledger.Hashlock(secret)
			params := ledger.LockParams{
				ID:        ledger.LockID(hashlock, "alice"),
				Hashlock:  hashlock,
				Recipient: "bob",
				Token:     token,
				Amount:    big.NewInt(1),
				Timelock:  now.Add(time.Hour),
			}
			err = chain.CreateLock(ctx, alice, params)
			Expect(ledger.IsTransient(err)).Should(BeTrue())
			Expect(alice.Sequence()).Should(BeZero())

			Expect(chain.CreateLock(ctx, alice, params)).Should(Succeed())
			Expect(alice.Sequence()).Should(Equal(uint64(1)))
		})
	})

	Context("cancelled contexts", func() {
		It("should refuse submissions on a dead context", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			hashlock := ledger.Hashlock(secret)
			err := chain.CreateLock(cancelled, alice, ledger.LockParams{
				ID:        ledger.LockID(hashlock, "alice"),
				Hashlock:  hashlock,
				Recipient: "bob",
				Token:     token,
				Amount:    big.NewInt(1),
				Timelock:  time.Now().Add(time.Hour),
			})
			Expect(err).Should(MatchError(context.Canceled))
		})
	})

	Context("the published secret", func() {
		It("should expose the secret on the withdrawn lock", func() {
			params := lock()
			bob := signer.NewAccount("bob", nil)
			Expect(chain.Withdraw(ctx, bob, params.ID, secret)).Should(Succeed())

			observed, err := chain.GetLock(ctx, params.ID)
			Expect(err).Should(BeNil())
			Expect(observed.Secret).Should(Equal(secret))
			Expect(chain.Balance(token, "bob").Cmp(big.NewInt(500_000))).Should(BeZero())
		})
	})
})
