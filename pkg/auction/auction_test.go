package auction_test

import (
	"math/big"
	"time"

	"github.com/crossmesh/fusion/pkg/auction"
	"github.com/crossmesh/fusion/pkg/ledger"
	"go.uber.org/zap"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Auction engine", func() {
	var (
		now    time.Time
		engine *auction.Engine
	)

	clock := func() time.Time { return now }

	create := func() uint64 {
		id, err := engine.CreateAuction("seller", "usdc",
			big.NewInt(1000), big.NewInt(100),
			time.Hour, 5*time.Minute, big.NewInt(50))
		Expect(err).Should(BeNil())
		return id
	}

	BeforeEach(func() {
		now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		logger, err := zap.NewDevelopment()
		Expect(err).Should(BeNil())
		engine = auction.NewEngine(clock, logger)
	})

	Context("when creating an auction", func() {
		It("should reject a zero start amount", func() {
			_, err := engine.CreateAuction("seller", "usdc", big.NewInt(0), big.NewInt(0), time.Hour, time.Minute, big.NewInt(1))
			Expect(ledger.IsValidation(err)).Should(BeTrue())
		})

		It("should reject a floor above the start amount", func() {
			_, err := engine.CreateAuction("seller", "usdc", big.NewInt(100), big.NewInt(200), time.Hour, time.Minute, big.NewInt(1))
			Expect(ledger.IsValidation(err)).Should(BeTrue())
		})

		It("should open the auction with the full amount remaining", func() {
			id := create()
			a, err := engine.Get(id)
			Expect(err).Should(BeNil())
			Expect(a.Active).Should(BeTrue())
			Expect(a.RemainingAmount.Cmp(big.NewInt(1000))).Should(BeZero())
			Expect(a.FilledAmount.Sign()).Should(BeZero())
		})
	})

	Context("when reading the price", func() {
		It("should decay in steps of stepAmount", func() {
			id := create()

			By("Price starts at startAmount")
			price, err := engine.CurrentPrice(id)
			Expect(err).Should(BeNil())
			Expect(price.Cmp(big.NewInt(1000))).Should(BeZero())

			By("After 900s three steps have elapsed")
			now = now.Add(900 * time.Second)
			price, err = engine.CurrentPrice(id)
			Expect(err).Should(BeNil())
			Expect(price.Cmp(big.NewInt(850))).Should(BeZero())
		})

		It("should never drop below the floor", func() {
			id := create()
			now = now.Add(time.Hour)
			price, err := engine.CurrentPrice(id)
			Expect(err).Should(BeNil())
			Expect(price.Cmp(big.NewInt(100))).Should(BeZero())

			By("Price stays at the floor past the duration")
			now = now.Add(24 * time.Hour)
			price, err = engine.PriceAt(id, now)
			Expect(err).Should(BeNil())
			Expect(price.Cmp(big.NewInt(100))).Should(BeZero())
		})

		It("should never increase over time", func() {
			id := create()
			a, err := engine.Get(id)
			Expect(err).Should(BeNil())

			prev := a.PriceAt(now)
			for i := 0; i < 100; i++ {
				now = now.Add(77 * time.Second)
				price := a.PriceAt(now)
				Expect(price.Cmp(prev) <= 0).Should(BeTrue())
				prev = price
			}
		})
	})

	Context("when placing bids", func() {
		It("should sell out across partial fills and then reject further bids", func() {
			id := create()

			By("First bid takes 300 units")
			fill, err := engine.PlaceBid(id, "buyer1", big.NewInt(300), nil)
			Expect(err).Should(BeNil())
			Expect(fill.Amount.Cmp(big.NewInt(300))).Should(BeZero())
			Expect(fill.Payment.Cmp(big.NewInt(300))).Should(BeZero())

			a, err := engine.Get(id)
			Expect(err).Should(BeNil())
			Expect(a.RemainingAmount.Cmp(big.NewInt(700))).Should(BeZero())
			Expect(a.Sold).Should(BeFalse())

			By("Second bid takes the remaining 700 units")
			_, err = engine.PlaceBid(id, "buyer2", big.NewInt(700), nil)
			Expect(err).Should(BeNil())

			a, err = engine.Get(id)
			Expect(err).Should(BeNil())
			Expect(a.RemainingAmount.Sign()).Should(BeZero())
			Expect(a.FilledAmount.Cmp(big.NewInt(1000))).Should(BeZero())
			Expect(a.Sold).Should(BeTrue())
			Expect(a.Active).Should(BeFalse())

			By("A third bid fails against the inactive auction")
			_, err = engine.PlaceBid(id, "buyer3", big.NewInt(1), nil)
			Expect(ledger.IsState(err)).Should(BeTrue())
		})

		It("should keep filled plus remaining equal to startAmount", func() {
			id := create()
			for _, amount := range []int64{113, 7, 380, 500} {
				_, err := engine.PlaceBid(id, "buyer", big.NewInt(amount), nil)
				Expect(err).Should(BeNil())
				a, err := engine.Get(id)
				Expect(err).Should(BeNil())
				sum := new(big.Int).Add(a.FilledAmount, a.RemainingAmount)
				Expect(sum.Cmp(a.StartAmount)).Should(BeZero())
			}
		})

		It("should pay proportionally at the committed price", func() {
			id := create()
			now = now.Add(900 * time.Second)

			fill, err := engine.PlaceBid(id, "buyer", big.NewInt(400), nil)
			Expect(err).Should(BeNil())
			Expect(fill.Price.Cmp(big.NewInt(850))).Should(BeZero())
			// 850 * 400 / 1000
			Expect(fill.Payment.Cmp(big.NewInt(340))).Should(BeZero())
		})

		It("should reject a bid priced against a stale quote", func() {
			id := create()
			By("Bidder signed for a cheaper price than the engine commits")
			stale := big.NewInt(900)
			_, err := engine.PlaceBid(id, "buyer", big.NewInt(100), stale)
			Expect(ledger.IsState(err)).Should(BeTrue())
			Expect(err.Error()).Should(ContainSubstring("stale"))

			By("The auction is untouched by the rejected bid")
			a, err := engine.Get(id)
			Expect(err).Should(BeNil())
			Expect(a.FilledAmount.Sign()).Should(BeZero())
		})

		It("should accept a bid whose expected price matches the committed price", func() {
			id := create()
			now = now.Add(900 * time.Second)
			_, err := engine.PlaceBid(id, "buyer", big.NewInt(100), big.NewInt(850))
			Expect(err).Should(BeNil())
		})

		It("should fill the whole remaining amount when no fill amount is given", func() {
			id := create()
			_, err := engine.PlaceBid(id, "buyer1", big.NewInt(250), nil)
			Expect(err).Should(BeNil())

			fill, err := engine.PlaceBid(id, "buyer2", nil, nil)
			Expect(err).Should(BeNil())
			Expect(fill.Amount.Cmp(big.NewInt(750))).Should(BeZero())

			a, err := engine.Get(id)
			Expect(err).Should(BeNil())
			Expect(a.Sold).Should(BeTrue())
		})

		It("should reject a fill larger than the remaining amount", func() {
			id := create()
			_, err := engine.PlaceBid(id, "buyer", big.NewInt(1001), nil)
			Expect(ledger.IsValidation(err)).Should(BeTrue())
		})

		It("should reject bids after the duration elapses unsold", func() {
			id := create()
			now = now.Add(time.Hour + time.Second)
			_, err := engine.PlaceBid(id, "buyer", big.NewInt(100), nil)
			Expect(ledger.IsState(err)).Should(BeTrue())

			a, err := engine.Get(id)
			Expect(err).Should(BeNil())
			Expect(a.Active).Should(BeFalse())
			Expect(a.Sold).Should(BeFalse())
		})
	})

	Context("when cancelling", func() {
		It("should only allow the seller", func() {
			id := create()
			err := engine.CancelAuction(id, "someone else")
			Expect(ledger.IsState(err)).Should(BeTrue())
			Expect(engine.CancelAuction(id, "seller")).Should(Succeed())

			a, err := engine.Get(id)
			Expect(err).Should(BeNil())
			Expect(a.Active).Should(BeFalse())
		})

		It("should refuse once any fill happened", func() {
			id := create()
			_, err := engine.PlaceBid(id, "buyer", big.NewInt(1), nil)
			Expect(err).Should(BeNil())

			err = engine.CancelAuction(id, "seller")
			Expect(ledger.IsState(err)).Should(BeTrue())
		})
	})

	Context("when withdrawing proceeds", func() {
		It("should pay each unit of proceeds exactly once", func() {
			id := create()
			fill1, err := engine.PlaceBid(id, "buyer", big.NewInt(300), nil)
			Expect(err).Should(BeNil())

			payout, err := engine.WithdrawProceeds(id, "seller")
			Expect(err).Should(BeNil())
			Expect(payout.Cmp(fill1.Payment)).Should(BeZero())

			By("A second withdraw with nothing new accrued pays zero")
			payout, err = engine.WithdrawProceeds(id, "seller")
			Expect(err).Should(BeNil())
			Expect(payout.Sign()).Should(BeZero())

			By("Later fills accrue fresh proceeds")
			now = now.Add(10 * time.Minute)
			fill2, err := engine.PlaceBid(id, "buyer", big.NewInt(700), nil)
			Expect(err).Should(BeNil())
			payout, err = engine.WithdrawProceeds(id, "seller")
			Expect(err).Should(BeNil())
			Expect(payout.Cmp(fill2.Payment)).Should(BeZero())
		})

		It("should only pay the seller", func() {
			id := create()
			_, err := engine.WithdrawProceeds(id, "intruder")
			Expect(ledger.IsState(err)).Should(BeTrue())
		})
	})
})
