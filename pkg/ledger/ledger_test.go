package ledger_test

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/crossmesh/fusion/pkg/ledger"
	"github.com/ethereum/go-ethereum/common"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Hashlock", func() {
	It("should commit to the sha256 of the secret", func() {
		secret := []byte("the quick brown fox")
		digest := sha256.Sum256(secret)
		Expect(ledger.Hashlock(secret)).Should(Equal(common.Hash(digest)))
	})
})

var _ = Describe("LockID", func() {
	It("should be deterministic and sender-scoped", func() {
		hashlock := ledger.Hashlock([]byte("secret"))
		Expect(ledger.LockID(hashlock, "alice")).Should(Equal(ledger.LockID(hashlock, "alice")))
		Expect(ledger.LockID(hashlock, "alice")).ShouldNot(Equal(ledger.LockID(hashlock, "bob")))

		other := ledger.Hashlock([]byte("another secret"))
		Expect(ledger.LockID(hashlock, "alice")).ShouldNot(Equal(ledger.LockID(other, "alice")))
	})
})

var _ = Describe("LockState", func() {
	It("should treat only withdrawn and refunded as terminal", func() {
		Expect(ledger.Locked.Terminal()).Should(BeFalse())
		Expect(ledger.Withdrawn.Terminal()).Should(BeTrue())
		Expect(ledger.Refunded.Terminal()).Should(BeTrue())
	})
})

var _ = Describe("Error taxonomy", func() {
	It("should classify through wrapping", func() {
		err := ledger.Transientf("createLock", "rpc timeout")
		wrapped := fmt.Errorf("submitting: %w", err)
		Expect(ledger.IsTransient(wrapped)).Should(BeTrue())
		Expect(ledger.IsValidation(wrapped)).Should(BeFalse())
	})

	It("should keep sentinel errors reachable through errors.Is", func() {
		err := ledger.Statef("withdraw", "%w: lock is withdrawn", ledger.ErrAlreadySettled)
		Expect(errors.Is(err, ledger.ErrAlreadySettled)).Should(BeTrue())
		Expect(ledger.IsState(err)).Should(BeTrue())
	})

	It("should name its operation in the message", func() {
		err := ledger.Validationf("createLock", "%w", ledger.ErrZeroAmount)
		Expect(err.Error()).Should(ContainSubstring("createLock"))
	})
})
