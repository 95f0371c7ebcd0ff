package commands

import (
	"fmt"

	"github.com/crossmesh/fusion/rpcclient"
	"github.com/spf13/cobra"
)

func SettleSwap(rpcClient rpcclient.Client) *cobra.Command {
	var swapID string
	var cmd = &cobra.Command{
		Use:   "settle",
		Short: "Verify, disclose and sweep a filled swap",
		Run: func(c *cobra.Command, args []string) {
			if _, err := rpcClient.SettleSwap(rpcclient.RequestSwapID{SwapID: swapID}); err != nil {
				cobra.CheckErr(fmt.Errorf("failed to send request: %w", err))
			}
			fmt.Println("settlement started, watch the swap status with `get`")
		},
	}
	cmd.Flags().StringVar(&swapID, "swap", "", "swap id to settle")
	cmd.MarkFlagRequired("swap")
	return cmd
}

func RefundSwap(rpcClient rpcclient.Client) *cobra.Command {
	var swapID string
	var cmd = &cobra.Command{
		Use:   "refund",
		Short: "Refund whichever legs of a swap have expired",
		Run: func(c *cobra.Command, args []string) {
			if _, err := rpcClient.RefundSwap(rpcclient.RequestSwapID{SwapID: swapID}); err != nil {
				cobra.CheckErr(fmt.Errorf("failed to send request: %w", err))
			}
			fmt.Println("refund submitted")
		},
	}
	cmd.Flags().StringVar(&swapID, "swap", "", "swap id to refund")
	cmd.MarkFlagRequired("swap")
	return cmd
}

func GetSecret(rpcClient rpcclient.Client) *cobra.Command {
	var swapID string
	var cmd = &cobra.Command{
		Use:   "secret",
		Short: "Fetch the disclosed secret of a swap",
		Run: func(c *cobra.Command, args []string) {
			resp, err := rpcClient.GetSecret(rpcclient.RequestSwapID{SwapID: swapID})
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to send request: %w", err))
			}
			fmt.Println(string(resp))
		},
	}
	cmd.Flags().StringVar(&swapID, "swap", "", "swap id to fetch the secret for")
	cmd.MarkFlagRequired("swap")
	return cmd
}

func GetSwap(rpcClient rpcclient.Client) *cobra.Command {
	var swapID string
	var cmd = &cobra.Command{
		Use:   "get",
		Short: "Show the stored state of a swap",
		Run: func(c *cobra.Command, args []string) {
			resp, err := rpcClient.GetSwap(rpcclient.RequestSwapID{SwapID: swapID})
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to send request: %w", err))
			}
			fmt.Println(string(resp))
		},
	}
	cmd.Flags().StringVar(&swapID, "swap", "", "swap id to look up")
	cmd.MarkFlagRequired("swap")
	return cmd
}
