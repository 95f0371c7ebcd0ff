package daemon

import (
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"

	"github.com/crossmesh/fusion/pkg/ledger/sim"
	"go.uber.org/zap"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Daemon", func() {
	Context("when building a sim-backed escrow", func() {
		It("should seed the configured balances", func() {
			esc, err := buildEscrow(ChainConfig{
				Kind:    "sim",
				Name:    "simnet",
				Account: "alice",
				Funds: []Fund{
					{Token: "wbtc", Account: "alice", Amount: "1000000"},
					{Token: "usdc", Account: "resolver-1", Amount: "5000000"},
				},
			}, zap.NewNop())
			Expect(err).Should(BeNil())

			chain, ok := esc.Adapter().(*sim.Ledger)
			Expect(ok).Should(BeTrue())
			Expect(chain.Balance("wbtc", "alice").Cmp(big.NewInt(1_000_000))).Should(BeZero())
			Expect(chain.Balance("usdc", "resolver-1").Cmp(big.NewInt(5_000_000))).Should(BeZero())
		})

		It("should reject an unparseable fund amount", func() {
			_, err := buildEscrow(ChainConfig{
				Kind:  "sim",
				Name:  "simnet",
				Funds: []Fund{{Token: "wbtc", Account: "alice", Amount: "lots"}},
			}, zap.NewNop())
			Expect(err).ShouldNot(BeNil())
			Expect(err.Error()).Should(ContainSubstring("lots"))
		})

		It("should reject an unknown chain kind", func() {
			_, err := buildEscrow(ChainConfig{Kind: "utxo"}, zap.NewNop())
			Expect(err).ShouldNot(BeNil())
		})
	})

	Context("when loading the config file", func() {
		It("should carry the sim funds through", func() {
			raw, err := json.Marshal(Config{
				Addr: "localhost:8080",
				Source: ChainConfig{
					Kind:    "sim",
					Name:    "simnet",
					Account: "alice",
					Funds:   []Fund{{Token: "wbtc", Account: "alice", Amount: "1000000"}},
				},
				Dest: ChainConfig{Kind: "sim", Name: "simnet2", Account: "resolver-1"},
			})
			Expect(err).Should(BeNil())
			path := filepath.Join(GinkgoT().TempDir(), "config.json")
			Expect(os.WriteFile(path, raw, 0o600)).Should(Succeed())

			config, err := LoadConfig(path)
			Expect(err).Should(BeNil())
			Expect(config.Source.Funds).Should(HaveLen(1))
			Expect(config.Source.Funds[0].Amount).Should(Equal("1000000"))
		})
	})
})
