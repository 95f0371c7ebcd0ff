package commands

import (
	"encoding/json"
	"fmt"

	"github.com/crossmesh/fusion/rpcclient"
	"github.com/spf13/cobra"
)

func FillSwap(rpcClient rpcclient.Client) *cobra.Command {
	var (
		swapID       string
		resolver     string
		destTimelock int64
	)
	var cmd = &cobra.Command{
		Use:   "fill",
		Short: "Fill a swap by locking the destination leg",
		Run: func(c *cobra.Command, args []string) {
			resp, err := rpcClient.FillSwap(rpcclient.RequestFillSwap{
				SwapID:       swapID,
				Resolver:     resolver,
				DestTimelock: destTimelock,
			})
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to send request: %w", err))
			}

			var result struct {
				DestLockID string `json:"destLockId"`
			}
			if err := json.Unmarshal(resp, &result); err != nil {
				cobra.CheckErr(fmt.Errorf("failed to unmarshal response: %w", err))
			}
			fmt.Printf("successfully filled swap, destination lock %s\n", result.DestLockID)
		},
	}
	cmd.Flags().StringVar(&swapID, "swap", "", "swap id to fill")
	cmd.MarkFlagRequired("swap")
	cmd.Flags().StringVar(&resolver, "resolver", "", "resolver address locking the destination leg")
	cmd.MarkFlagRequired("resolver")
	cmd.Flags().Int64Var(&destTimelock, "dest-timelock", 0, "destination timelock as a unix timestamp, strictly before the source timelock")
	cmd.MarkFlagRequired("dest-timelock")
	return cmd
}

func BidFill(rpcClient rpcclient.Client) *cobra.Command {
	var (
		swapID        string
		auctionID     uint64
		resolver      string
		fillAmount    string
		expectedPrice string
		destTimelock  int64
	)
	var cmd = &cobra.Command{
		Use:   "bidfill",
		Short: "Fill a swap at the current Dutch auction price",
		Run: func(c *cobra.Command, args []string) {
			resp, err := rpcClient.BidFill(rpcclient.RequestBidFill{
				SwapID:        swapID,
				AuctionID:     auctionID,
				Resolver:      resolver,
				FillAmount:    fillAmount,
				ExpectedPrice: expectedPrice,
				DestTimelock:  destTimelock,
			})
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to send request: %w", err))
			}

			var result struct {
				DestLockID string `json:"destLockId"`
			}
			if err := json.Unmarshal(resp, &result); err != nil {
				cobra.CheckErr(fmt.Errorf("failed to unmarshal response: %w", err))
			}
			fmt.Printf("successfully filled swap through auction, destination lock %s\n", result.DestLockID)
		},
	}
	cmd.Flags().StringVar(&swapID, "swap", "", "swap id to fill")
	cmd.MarkFlagRequired("swap")
	cmd.Flags().Uint64Var(&auctionID, "auction", 0, "auction selling the swap")
	cmd.MarkFlagRequired("auction")
	cmd.Flags().StringVar(&resolver, "resolver", "", "resolver address locking the destination leg")
	cmd.MarkFlagRequired("resolver")
	cmd.Flags().StringVar(&fillAmount, "fill-amount", "", "amount of the auction to consume, full remaining if omitted")
	cmd.Flags().StringVar(&expectedPrice, "expected-price", "", "price the bid was signed against, rejected when stale")
	cmd.Flags().Int64Var(&destTimelock, "dest-timelock", 0, "destination timelock as a unix timestamp")
	cmd.MarkFlagRequired("dest-timelock")
	return cmd
}
