package cli

import (
	"os"

	"github.com/crossmesh/fusion/cli/commands"
	"github.com/crossmesh/fusion/daemon"
	"github.com/crossmesh/fusion/rpcclient"
	"github.com/spf13/cobra"
)

func Run(version string) error {
	var cmd = &cobra.Command{
		Use: "fusion - cross chain atomic swap coordinator",
		Run: func(c *cobra.Command, args []string) {
			c.HelpFunc()(c, args)
		},
		Version:           version,
		DisableAutoGenTag: true,
	}

	configPath := os.Getenv("FUSION_CONFIG")
	if configPath == "" {
		configPath = daemon.DefaultConfigPath()
	}
	config, err := daemon.LoadConfig(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		// no config yet; client commands still work against the defaults
		config = daemon.Config{Addr: "localhost:8080"}
	}

	rpcClient := rpcclient.NewClient(config.RPCUser, config.RPCPassword, "http", config.Addr)

	cmd.AddCommand(commands.Start(configPath))
	cmd.AddCommand(commands.CreateSwap(rpcClient))
	cmd.AddCommand(commands.FillSwap(rpcClient))
	cmd.AddCommand(commands.BidFill(rpcClient))
	cmd.AddCommand(commands.SettleSwap(rpcClient))
	cmd.AddCommand(commands.RefundSwap(rpcClient))
	cmd.AddCommand(commands.GetSwap(rpcClient))
	cmd.AddCommand(commands.GetSecret(rpcClient))
	cmd.AddCommand(commands.CreateAuction(rpcClient))
	cmd.AddCommand(commands.AuctionPrice(rpcClient))
	cmd.AddCommand(commands.PlaceBid(rpcClient))
	cmd.AddCommand(commands.CancelAuction(rpcClient))
	cmd.AddCommand(commands.WithdrawProceeds(rpcClient))
	cmd.AddCommand(commands.GetAuction(rpcClient))

	return cmd.Execute()
}
