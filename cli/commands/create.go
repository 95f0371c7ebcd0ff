package commands

import (
	"encoding/json"
	"fmt"

	"github.com/crossmesh/fusion/rpcclient"
	"github.com/spf13/cobra"
)

func CreateSwap(rpcClient rpcclient.Client) *cobra.Command {
	var (
		sourceRecipient string
		sourceToken     string
		sourceAmount    string
		destRecipient   string
		destToken       string
		destAmount      string
		sourceTimelock  int64
	)
	var cmd = &cobra.Command{
		Use:   "create",
		Short: "Create a swap and lock the source leg",
		Run: func(c *cobra.Command, args []string) {
			resp, err := rpcClient.CreateSwap(rpcclient.RequestCreateSwap{
				SourceRecipient: sourceRecipient,
				SourceToken:     sourceToken,
				SourceAmount:    sourceAmount,
				DestRecipient:   destRecipient,
				DestToken:       destToken,
				DestAmount:      destAmount,
				SourceTimelock:  sourceTimelock,
			})
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to send request: %w", err))
			}

			var result struct {
				SwapID   string `json:"swapId"`
				Hashlock string `json:"hashlock"`
			}
			if err := json.Unmarshal(resp, &result); err != nil {
				cobra.CheckErr(fmt.Errorf("failed to unmarshal response: %w", err))
			}
			fmt.Printf("successfully created swap %s with hashlock %s\n", result.SwapID, result.Hashlock)
		},
	}
	cmd.Flags().StringVar(&sourceRecipient, "source-recipient", "", "resolver address redeeming the source leg")
	cmd.MarkFlagRequired("source-recipient")
	cmd.Flags().StringVar(&sourceToken, "source-token", "", "token locked on the source chain")
	cmd.MarkFlagRequired("source-token")
	cmd.Flags().StringVar(&sourceAmount, "source-amount", "", "amount locked on the source chain")
	cmd.MarkFlagRequired("source-amount")
	cmd.Flags().StringVar(&destRecipient, "dest-recipient", "", "address receiving the destination leg")
	cmd.MarkFlagRequired("dest-recipient")
	cmd.Flags().StringVar(&destToken, "dest-token", "", "token expected on the destination chain")
	cmd.MarkFlagRequired("dest-token")
	cmd.Flags().StringVar(&destAmount, "dest-amount", "", "amount expected on the destination chain")
	cmd.MarkFlagRequired("dest-amount")
	cmd.Flags().Int64Var(&sourceTimelock, "source-timelock", 0, "source timelock as a unix timestamp")
	cmd.MarkFlagRequired("source-timelock")
	return cmd
}
