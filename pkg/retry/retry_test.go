package retry_test

import (
	"errors"
	"fmt"
	"time"

	"github.com/crossmesh/fusion/pkg/ledger"
	"github.com/crossmesh/fusion/pkg/retry"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Classify", func() {
	It("should follow the ledger taxonomy when present", func() {
		Expect(retry.Classify(ledger.Transientf("op", "rpc timeout"))).Should(Equal(retry.Retriable))
		Expect(retry.Classify(ledger.Validationf("op", "bad amount"))).Should(Equal(retry.Fatal))
		Expect(retry.Classify(ledger.Statef("op", "already settled"))).Should(Equal(retry.Fatal))
		Expect(retry.Classify(ledger.Deadlinef("op", "too late"))).Should(Equal(retry.Fatal))
	})

	It("should recognize transient transport errors by shape", func() {
		for _, msg := range []string{
			"HTTP 429 Too Many Requests",
			"502 Bad Gateway",
			"i/o timeout",
			"read tcp: connection reset by peer",
			"unexpected EOF",
		} {
			Expect(retry.Classify(errors.New(msg))).Should(Equal(retry.Retriable), msg)
		}
	})

	It("should treat unknown errors as fatal", func() {
		Expect(retry.Classify(errors.New("execution reverted"))).Should(Equal(retry.Fatal))
		Expect(retry.Classify(errors.New("invalid argument"))).Should(Equal(retry.Fatal))
	})
})

var _ = Describe("Policy", func() {
	var policy retry.Policy

	BeforeEach(func() {
		policy = retry.Default()
		policy.InitialInterval = time.Millisecond
		policy.MaxInterval = 2 * time.Millisecond
	})

	Context("when failures are transient", func() {
		It("should retry until the call succeeds", func() {
			calls := 0
			err := policy.Do(func() error {
				calls++
				if calls < 3 {
					return ledger.Transientf("op", "rpc timeout")
				}
				return nil
			}, time.Time{})
			Expect(err).Should(BeNil())
			Expect(calls).Should(Equal(3))
		})

		It("should stop after the attempt budget", func() {
			policy.MaxAttempts = 3
			calls := 0
			err := policy.Do(func() error {
				calls++
				return ledger.Transientf("op", "rpc timeout")
			}, time.Time{})
			Expect(ledger.IsTransient(err)).Should(BeTrue())
			Expect(calls).Should(Equal(3))
		})
	})

	Context("when the failure is fatal", func() {
		It("should surface it without another attempt", func() {
			calls := 0
			err := policy.Do(func() error {
				calls++
				return ledger.Statef("op", "%w", ledger.ErrAlreadySettled)
			}, time.Time{})
			Expect(ledger.IsState(err)).Should(BeTrue())
			Expect(calls).Should(Equal(1))
		})
	})

	Context("when a deadline governs the call", func() {
		It("should not attempt at all past the deadline", func() {
			calls := 0
			err := policy.Do(func() error {
				calls++
				return nil
			}, time.Now().Add(-time.Second))
			Expect(ledger.IsDeadline(err)).Should(BeTrue())
			Expect(calls).Should(BeZero())
		})

		It("should stop retrying when the next attempt would land too late", func() {
			now := time.Unix(1700000000, 0)
			policy.Clock = func() time.Time { return now }
			policy.InitialInterval = time.Minute
			policy.MaxInterval = time.Hour
			policy.MaxAttempts = 10

			calls := 0
			err := policy.Do(func() error {
				calls++
				return ledger.Transientf("op", "rpc timeout")
			}, now.Add(30*time.Second))

			Expect(ledger.IsDeadline(err)).Should(BeTrue())
			Expect(calls).Should(Equal(1))
		})

		It("should run freely under a zero deadline", func() {
			calls := 0
			err := policy.Do(func() error {
				calls++
				if calls < 2 {
					return fmt.Errorf("503 service unavailable")
				}
				return nil
			}, time.Time{})
			Expect(err).Should(BeNil())
			Expect(calls).Should(Equal(2))
		})
	})
})
