// ethcli is a small query tool over the client library, mostly useful for
// poking at a node during development.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/AugurProject/go-ethereum-client/ethclient"
	"github.com/AugurProject/go-ethereum-client/pkg/config"
	"github.com/AugurProject/go-ethereum-client/pkg/logger"
)

var (
	nodeURL    string
	configPath string
	debug      bool
)

func main() {
	root := &cobra.Command{
		Use:           "ethcli",
		Short:         "Query an Ethereum-compatible JSON-RPC node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&nodeURL, "node-url", "", "node endpoint, overrides the config file")
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logs")

	root.AddCommand(balanceCmd(), txCmd(), blockCmd(), tracesCmd(), tokenCmd(), transfersCmd())

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func newClient(ctx context.Context) (*ethclient.EthereumClient, error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger.Init(&logger.Options{Level: level, TimeFormat: time.RFC3339})

	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if nodeURL != "" {
			cfg.NodeURL = nodeURL
		}
		return ethclient.NewFromConfig(ctx, cfg)
	}
	if nodeURL == "" {
		return nil, fmt.Errorf("either --node-url or --config is required")
	}
	return ethclient.New(ctx, nodeURL)
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address: %s", s)
	}
	return common.HexToAddress(s), nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <address> [token...]",
		Short: "Native balance of an address, plus ERC20 balances for any tokens given",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			owner, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			tokens := make([]common.Address, 0, len(args)-1)
			for _, arg := range args[1:] {
				token, err := parseAddress(arg)
				if err != nil {
					return err
				}
				tokens = append(tokens, token)
			}

			balances, err := client.ERC20.Balances(cmd.Context(), owner, tokens)
			if err != nil {
				return err
			}
			for _, b := range balances {
				name := "ether"
				if b.TokenAddress != nil {
					name = b.TokenAddress.Hex()
				}
				fmt.Printf("%s\t%s\n", name, b.Balance)
			}
			return nil
		},
	}
}

func txCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tx <hash>",
		Short: "Transaction and receipt by hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			hash := common.HexToHash(args[0])

			tx, err := client.Transaction(cmd.Context(), hash)
			if err != nil {
				return err
			}
			if tx == nil {
				fmt.Println("transaction not found")
				return nil
			}
			if err := printJSON(tx); err != nil {
				return err
			}

			receipt, err := client.TransactionReceipt(cmd.Context(), hash)
			if err != nil {
				return err
			}
			if receipt == nil {
				fmt.Println("pending")
				return nil
			}
			return printJSON(receipt)
		},
	}
}

func blockCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "block <number>",
		Short: "Block by number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			number, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid block number: %s", args[0])
			}

			block, err := client.Block(cmd.Context(), number, full)
			if err != nil {
				return err
			}
			if block == nil {
				fmt.Println("block not found")
				return nil
			}
			return printJSON(block)
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "include full transaction objects")
	return cmd
}

func tracesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "traces <txhash>",
		Short: "Parity traces of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			traces, err := client.Traces.TraceTransaction(cmd.Context(), common.HexToHash(args[0]))
			if err != nil {
				return err
			}
			if traces == nil {
				fmt.Println("transaction not found")
				return nil
			}
			return printJSON(traces)
		},
	}
}

func tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <address>",
		Short: "ERC20 token metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			token, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			info, err := client.ERC20.Info(cmd.Context(), token)
			if err != nil {
				return err
			}
			fmt.Printf("%s (%s), %d decimals\n", info.Name, info.Symbol, info.Decimals)
			return nil
		},
	}
}

func transfersCmd() *cobra.Command {
	var fromBlock uint64
	var tokenFlag string
	cmd := &cobra.Command{
		Use:   "transfers <address>",
		Short: "ERC20/ERC721 transfer history of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			owner, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			opts := ethclient.TransferHistoryOptions{}
			if tokenFlag != "" {
				token, err := parseAddress(tokenFlag)
				if err != nil {
					return err
				}
				opts.TokenAddress = &token
			}

			events, err := client.ERC20.TransferHistory(cmd.Context(), []common.Address{owner}, fromBlock, opts)
			if err != nil {
				return err
			}
			for _, e := range events {
				amount := e.Value
				if e.Kind == ethclient.TransferErc721 {
					amount = e.TokenID
				}
				fmt.Printf("block %d\t%s\t%s -> %s\t%s\n",
					e.BlockNumber, e.TokenAddress.Hex(), e.From.Hex(), e.To.Hex(), amount)
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&fromBlock, "from-block", 0, "scan from this block")
	cmd.Flags().StringVar(&tokenFlag, "token", "", "restrict to one token contract")
	return cmd
}
