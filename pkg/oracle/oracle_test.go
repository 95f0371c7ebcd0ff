package oracle_test

import (
	"context"

	"github.com/crossmesh/fusion/pkg/oracle"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Static feed", func() {
	feed := oracle.Static{
		"match-42": {Result: true, Confidence: 90},
	}

	It("should return the same outcome for the same event", func() {
		first, err := feed.Outcome(context.Background(), "match-42")
		Expect(err).Should(BeNil())
		second, err := feed.Outcome(context.Background(), "match-42")
		Expect(err).Should(BeNil())
		Expect(first).Should(Equal(second))
		Expect(first.Result).Should(BeTrue())
		Expect(first.Confidence).Should(Equal(uint8(90)))
	})

	It("should error on unknown events", func() {
		_, err := feed.Outcome(context.Background(), "match-7")
		Expect(err).ShouldNot(BeNil())
	})

	It("should honor a cancelled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := feed.Outcome(ctx, "match-42")
		Expect(err).Should(MatchError(context.Canceled))
	})
})
