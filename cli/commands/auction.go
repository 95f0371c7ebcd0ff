package commands

import (
	"encoding/json"
	"fmt"

	"github.com/crossmesh/fusion/rpcclient"
	"github.com/spf13/cobra"
)

func CreateAuction(rpcClient rpcclient.Client) *cobra.Command {
	var (
		seller      string
		token       string
		startAmount string
		minAmount   string
		duration    int64
		stepTime    int64
		stepAmount  string
	)
	var cmd = &cobra.Command{
		Use:   "auction",
		Short: "Open a Dutch auction for a swap's destination leg",
		Run: func(c *cobra.Command, args []string) {
			resp, err := rpcClient.CreateAuction(rpcclient.RequestCreateAuction{
				Seller:      seller,
				Token:       token,
				StartAmount: startAmount,
				MinAmount:   minAmount,
				Duration:    duration,
				StepTime:    stepTime,
				StepAmount:  stepAmount,
			})
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to send request: %w", err))
			}

			var result struct {
				AuctionID uint64 `json:"auctionId"`
			}
			if err := json.Unmarshal(resp, &result); err != nil {
				cobra.CheckErr(fmt.Errorf("failed to unmarshal response: %w", err))
			}
			fmt.Printf("successfully created auction with id %d\n", result.AuctionID)
		},
	}
	cmd.Flags().StringVar(&seller, "seller", "", "seller address")
	cmd.MarkFlagRequired("seller")
	cmd.Flags().StringVar(&token, "token", "", "token on sale")
	cmd.MarkFlagRequired("token")
	cmd.Flags().StringVar(&startAmount, "start-amount", "", "starting price and amount on sale")
	cmd.MarkFlagRequired("start-amount")
	cmd.Flags().StringVar(&minAmount, "min-amount", "0", "price floor")
	cmd.Flags().Int64Var(&duration, "duration", 0, "auction duration in seconds")
	cmd.MarkFlagRequired("duration")
	cmd.Flags().Int64Var(&stepTime, "step-time", 0, "seconds per price step")
	cmd.MarkFlagRequired("step-time")
	cmd.Flags().StringVar(&stepAmount, "step-amount", "", "price decrease per step")
	cmd.MarkFlagRequired("step-amount")
	return cmd
}

func AuctionPrice(rpcClient rpcclient.Client) *cobra.Command {
	var auctionID uint64
	var cmd = &cobra.Command{
		Use:   "price",
		Short: "Show the current price of an auction",
		Run: func(c *cobra.Command, args []string) {
			resp, err := rpcClient.GetPrice(rpcclient.RequestAuctionID{AuctionID: auctionID})
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to send request: %w", err))
			}
			fmt.Println(string(resp))
		},
	}
	cmd.Flags().Uint64Var(&auctionID, "auction", 0, "auction id")
	cmd.MarkFlagRequired("auction")
	return cmd
}

func PlaceBid(rpcClient rpcclient.Client) *cobra.Command {
	var (
		auctionID     uint64
		buyer         string
		fillAmount    string
		expectedPrice string
	)
	var cmd = &cobra.Command{
		Use:   "bid",
		Short: "Bid on an auction at the current price",
		Run: func(c *cobra.Command, args []string) {
			resp, err := rpcClient.PlaceBid(rpcclient.RequestPlaceBid{
				AuctionID:     auctionID,
				Buyer:         buyer,
				FillAmount:    fillAmount,
				ExpectedPrice: expectedPrice,
			})
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to send request: %w", err))
			}
			fmt.Println(string(resp))
		},
	}
	cmd.Flags().Uint64Var(&auctionID, "auction", 0, "auction id")
	cmd.MarkFlagRequired("auction")
	cmd.Flags().StringVar(&buyer, "buyer", "", "buyer address")
	cmd.MarkFlagRequired("buyer")
	cmd.Flags().StringVar(&fillAmount, "fill-amount", "", "amount to consume, full remaining if omitted")
	cmd.Flags().StringVar(&expectedPrice, "expected-price", "", "price the bid was signed against")
	return cmd
}

func CancelAuction(rpcClient rpcclient.Client) *cobra.Command {
	var (
		auctionID uint64
		caller    string
	)
	var cmd = &cobra.Command{
		Use:   "cancel",
		Short: "Cancel an unfilled auction",
		Run: func(c *cobra.Command, args []string) {
			if _, err := rpcClient.CancelAuction(rpcclient.RequestAuctionCaller{
				AuctionID: auctionID,
				Caller:    caller,
			}); err != nil {
				cobra.CheckErr(fmt.Errorf("failed to send request: %w", err))
			}
			fmt.Println("auction cancelled")
		},
	}
	cmd.Flags().Uint64Var(&auctionID, "auction", 0, "auction id")
	cmd.MarkFlagRequired("auction")
	cmd.Flags().StringVar(&caller, "seller", "", "seller address")
	cmd.MarkFlagRequired("seller")
	return cmd
}

func WithdrawProceeds(rpcClient rpcclient.Client) *cobra.Command {
	var (
		auctionID uint64
		caller    string
	)
	var cmd = &cobra.Command{
		Use:   "proceeds",
		Short: "Withdraw accrued auction proceeds",
		Run: func(c *cobra.Command, args []string) {
			resp, err := rpcClient.WithdrawProceeds(rpcclient.RequestAuctionCaller{
				AuctionID: auctionID,
				Caller:    caller,
			})
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to send request: %w", err))
			}
			fmt.Println(string(resp))
		},
	}
	cmd.Flags().Uint64Var(&auctionID, "auction", 0, "auction id")
	cmd.MarkFlagRequired("auction")
	cmd.Flags().StringVar(&caller, "seller", "", "seller address")
	cmd.MarkFlagRequired("seller")
	return cmd
}

func GetAuction(rpcClient rpcclient.Client) *cobra.Command {
	var auctionID uint64
	var cmd = &cobra.Command{
		Use:   "auctions",
		Short: "Show the state of an auction",
		Run: func(c *cobra.Command, args []string) {
			resp, err := rpcClient.GetAuction(rpcclient.RequestAuctionID{AuctionID: auctionID})
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to send request: %w", err))
			}
			fmt.Println(string(resp))
		},
	}
	cmd.Flags().Uint64Var(&auctionID, "auction", 0, "auction id")
	cmd.MarkFlagRequired("auction")
	return cmd
}
