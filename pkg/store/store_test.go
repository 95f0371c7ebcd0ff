package store_test

import (
	"encoding/hex"
	"errors"
	"time"

	"github.com/crossmesh/fusion/pkg/store"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Store", func() {
	var str store.Store

	swapID := common.HexToHash("0x01")
	destLockID := common.HexToHash("0x02")

	put := func() {
		err := str.PutSwap(store.Swap{
			SwapID:         hex.EncodeToString(swapID.Bytes()),
			SecretHash:     "aa",
			Secret:         "bb",
			SourceChain:    "bitcoinish",
			DestChain:      "ethereumish",
			SourceLockID:   hex.EncodeToString(swapID.Bytes()),
			Recipient:      "alice",
			Token:          "usdc",
			Amount:         "2500000",
			SourceTimelock: time.Now().Add(2 * time.Hour),
			Status:         store.Created,
		})
		Expect(err).Should(BeNil())
	}

	BeforeEach(func() {
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: glogger.Default.LogMode(glogger.Silent),
		})
		Expect(err).Should(BeNil())
		str, err = store.NewStore(db)
		Expect(err).Should(BeNil())
	})

	It("should round-trip a swap record", func() {
		put()
		swap, err := str.Swap(swapID)
		Expect(err).Should(BeNil())
		Expect(swap.Amount).Should(Equal("2500000"))
		Expect(swap.Status).Should(Equal(store.Created))

		secret, err := str.Secret(swapID)
		Expect(err).Should(BeNil())
		Expect(secret).Should(Equal("bb"))
	})

	It("should reject a duplicate swap id", func() {
		put()
		err := str.PutSwap(store.Swap{
			SwapID: hex.EncodeToString(swapID.Bytes()),
			Status: store.Created,
		})
		Expect(err).ShouldNot(BeNil())
	})

	It("should record the fill leg with the locked amount", func() {
		put()
		destTimelock := time.Now().Add(time.Hour).UTC()
		Expect(str.SetFill(swapID, destLockID, destTimelock, "resolver-1", "2300000")).Should(Succeed())

		swap, err := str.Swap(swapID)
		Expect(err).Should(BeNil())
		Expect(swap.Status).Should(Equal(store.Filled))
		Expect(swap.Resolver).Should(Equal("resolver-1"))
		Expect(swap.DestLockID).Should(Equal(hex.EncodeToString(destLockID.Bytes())))
		Expect(swap.DestTimelock.Unix()).Should(Equal(destTimelock.Unix()))

		By("The amount follows the fill, not the creation terms")
		Expect(swap.Amount).Should(Equal("2300000"))
	})

	It("should keep the failure cause with the status", func() {
		put()
		Expect(str.UpdateStatus(swapID, store.Aborted, errors.New("amount mismatch"))).Should(Succeed())

		swap, err := str.Swap(swapID)
		Expect(err).Should(BeNil())
		Expect(swap.Status).Should(Equal(store.Aborted))
		Expect(swap.Error).Should(ContainSubstring("amount mismatch"))
	})

	It("should list only unfinished swaps for recovery", func() {
		put()
		other := common.HexToHash("0x03")
		Expect(str.PutSwap(store.Swap{
			SwapID: hex.EncodeToString(other.Bytes()),
			Status: store.Created,
		})).Should(Succeed())
		Expect(str.UpdateStatus(other, store.Settled, nil)).Should(Succeed())

		unfinished, err := str.Unfinished()
		Expect(err).Should(BeNil())
		Expect(unfinished).Should(HaveLen(1))
		Expect(unfinished[0].SwapID).Should(Equal(hex.EncodeToString(swapID.Bytes())))
	})

	It("should keep aborted swaps in the recovery set", func() {
		put()
		Expect(str.UpdateStatus(swapID, store.Aborted, errors.New("verification timed out"))).Should(Succeed())

		unfinished, err := str.Unfinished()
		Expect(err).Should(BeNil())
		Expect(unfinished).Should(HaveLen(1))
		Expect(unfinished[0].Status).Should(Equal(store.Aborted))
	})

	It("should treat exactly the settled and source-refunded statuses as terminal", func() {
		for status, terminal := range map[store.Status]bool{
			store.Created:        false,
			store.Filled:         false,
			store.Verified:       false,
			store.Disclosed:      false,
			store.DestWithdrawn:  false,
			store.Settled:        true,
			store.SourceRefunded: true,
			store.DestRefunded:   false,
			store.Aborted:        false,
		} {
			Expect(status.Terminal()).Should(Equal(terminal), status.String())
		}
	})
})
