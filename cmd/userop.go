package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-userop/core/chainio/aa"
	"github.com/AvaProtocol/ap-userop/core/config"
	"github.com/AvaProtocol/ap-userop/metrics"
	"github.com/AvaProtocol/ap-userop/pkg/eip1559"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/bundler"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/userop"
	"github.com/AvaProtocol/ap-userop/pkg/logger"
)

type userOpOption struct {
	BundlerURL string
	OpFile     string
	ChainID    uint64
	Sign       bool
	Timeout    time.Duration

	// SimpleAccount.execute arguments, used as callData when To is set
	To    string
	Value string
	Data  string
}

var (
	userOpOptions = userOpOption{}

	userOpCmd = &cobra.Command{
		Use:   "userop",
		Short: "Send user operations to an EIP-4337 bundler",
		Long: `The bundler at --bundler-url must serve the chain of the configured
network. Pass --chain-id to skip asking the network for it.`,
	}

	estimateCmd = &cobra.Command{
		Use:   "estimate",
		Short: "Estimate gas for the user operation in --op",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				op, err := s.loadOperation(userOpOptions.OpFile)
				if err != nil {
					return err
				}
				// network fields are read once and shared by the estimate and the cost
				op, err = op.Resolve(ctx)
				if err != nil {
					return err
				}
				gas, err := s.client.EstimateUserOperationGas(ctx, op)
				if err != nil {
					return err
				}

				concrete, err := op.Concrete(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{
					"preVerificationGas":   gas.PreVerificationGas.String(),
					"verificationGasLimit": gas.VerificationGasLimit.String(),
					"callGasLimit":         gas.CallGasLimit.String(),
					"totalGas":             gas.Total().String(),
					"maxCost":              formatEther(new(big.Int).Mul(gas.Total(), concrete.MaxFeePerGas)),
				})
			})
		},
	}

	sendCmd = &cobra.Command{
		Use:   "send",
		Short: "Send the user operation in --op, optionally signing it first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				op, err := s.loadOperation(userOpOptions.OpFile)
				if err != nil {
					return err
				}

				if userOpOptions.Sign {
					// the signed operation is the one sent, pending fields included
					concrete, err := op.Concrete(ctx)
					if err != nil {
						return err
					}
					sig, err := s.resolved.Identity.SignUserOp(concrete, s.client.Entrypoint(), s.client.ChainID())
					if err != nil {
						return err
					}
					concrete.Signature = sig
					op = concrete.ToStruct()
					s.log.Info("Signed user operation", "signer", s.resolved.Identity.Address().Hex(),
						"userOpHash", concrete.GetUserOpHash(s.client.Entrypoint(), s.client.ChainID()).Hex())
				}

				hash, err := s.client.SendUserOperation(ctx, op)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{"userOpHash": hash.Hex()})
			})
		},
	}

	getCmd = &cobra.Command{
		Use:   "get <userOpHash>",
		Short: "Show a user operation the bundler has seen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := parseHash(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, s *session) error {
				found, err := s.client.GetUserOperationByHash(ctx, hash)
				if err != nil {
					return err
				}
				if found == nil {
					return fmt.Errorf("unknown user operation %s", hash.Hex())
				}
				return printJSON(cmd, found)
			})
		},
	}

	receiptCmd = &cobra.Command{
		Use:   "receipt <userOpHash>",
		Short: "Show the receipt of a sent user operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := parseHash(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, s *session) error {
				receipt, err := s.client.GetUserOperationReceipt(ctx, hash)
				if err != nil {
					return err
				}
				if receipt == nil {
					return fmt.Errorf("no receipt for %s yet", hash.Hex())
				}
				return printJSON(cmd, receipt)
			})
		},
	}

	entrypointsCmd = &cobra.Command{
		Use:   "entrypoints",
		Short: "List the entrypoints the bundler supports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				entrypoints, err := s.client.SupportedEntryPoints(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, entrypoints)
			})
		},
	}
)

func init() {
	userOpCmd.PersistentFlags().StringVar(&userOpOptions.BundlerURL, "bundler-url", "", "JSON-RPC url of the bundler")
	userOpCmd.PersistentFlags().Uint64Var(&userOpOptions.ChainID, "chain-id", 0, "chain id of the network, read from the network when unset")
	userOpCmd.PersistentFlags().DurationVar(&userOpOptions.Timeout, "timeout", 30*time.Second, "deadline for the whole command")
	userOpCmd.MarkPersistentFlagRequired("bundler-url")

	for _, c := range []*cobra.Command{estimateCmd, sendCmd} {
		c.Flags().StringVar(&userOpOptions.OpFile, "op", "", "path to a json file holding the user operation")
		c.Flags().StringVar(&userOpOptions.To, "to", "", "build callData as SimpleAccount.execute to this address")
		c.Flags().StringVar(&userOpOptions.Value, "value", "0", "wei sent along with --to")
		c.Flags().StringVar(&userOpOptions.Data, "data", "0x", "hex calldata sent along with --to")
		c.MarkFlagRequired("op")
	}
	sendCmd.Flags().BoolVar(&userOpOptions.Sign, "sign", false, "sign the operation with the configured mnemonic before sending")

	for _, c := range []*cobra.Command{estimateCmd, sendCmd, getCmd, receiptCmd, entrypointsCmd} {
		registerConfigFlags(c.Flags())
		userOpCmd.AddCommand(c)
	}
	rootCmd.AddCommand(userOpCmd)
}

type session struct {
	log      logger.Logger
	resolved *config.Resolved
	client   *bundler.BundlerClient
}

// withSession resolves the configuration, connects to the bundler and runs fn
// once the bundler's chain id has been checked against the network's.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), userOpOptions.Timeout)
	defer cancel()

	log, err := newLogger()
	if err != nil {
		return err
	}
	rc := config.ContextFromEnv()
	rc.Logger = log
	resolved, err := config.Resolve(ctx, rawOptions(cmd.Flags()), rc)
	if err != nil {
		return err
	}
	defer resolved.Close()

	chainID := new(big.Int).SetUint64(userOpOptions.ChainID)
	if userOpOptions.ChainID == 0 {
		chainID, err = resolved.Endpoint.ChainID(ctx)
		if err != nil {
			return fmt.Errorf("cannot get chainId from %s: %w", resolved.Config.Network, err)
		}
	}

	client, err := bundler.NewBundlerClient(
		userOpOptions.BundlerURL,
		common.HexToAddress(resolved.Config.EntryPoint),
		chainID,
		bundler.WithLogger(log),
		bundler.WithMetrics(metrics.NewBundlerRpcMetrics(prometheus.NewRegistry())),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.ValidateChainID(ctx); err != nil {
		return err
	}
	return fn(ctx, &session{log: log, resolved: resolved, client: client})
}

// loadOperation reads a user operation from a json file. Numbers are taken as
// exact integers; everything else goes through as written.
func loadOperation(path string) (userop.Struct, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return userop.Struct{}, fmt.Errorf("unable to read --op %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return userop.Struct{}, fmt.Errorf("unable to parse --op %s: %w", path, err)
	}

	for key, v := range m {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		i, ok := new(big.Int).SetString(n.String(), 10)
		if !ok {
			return userop.Struct{}, fmt.Errorf("%s: %s is not an integer", key, n)
		}
		m[key] = i
	}
	return userop.StructFromMap(m)
}

// loadOperation reads the operation file and fills what it leaves out: callData
// from --to, the nonce from the entrypoint and fees from the network. Network
// values stay pending until the operation is sent.
func (s *session) loadOperation(path string) (userop.Struct, error) {
	op, err := loadOperation(path)
	if err != nil {
		return op, err
	}

	if userOpOptions.To != "" {
		callData, err := executeCallData(userOpOptions.To, userOpOptions.Value, userOpOptions.Data)
		if err != nil {
			return op, err
		}
		op.CallData = hexutil.Bytes(callData)
	}

	chain := s.resolved.Endpoint.Client()
	if sender, ok := op.Sender.(string); ok && op.Nonce == nil && common.IsHexAddress(sender) {
		op.Nonce = aa.PendingNonce(chain, s.client.Entrypoint(), common.HexToAddress(sender), nil)
	}
	return eip1559.FillFees(op, chain), nil
}

func executeCallData(to, value, data string) ([]byte, error) {
	if !common.IsHexAddress(to) {
		return nil, fmt.Errorf("--to %q is not an address", to)
	}
	wei, ok := new(big.Int).SetString(value, 10)
	if !ok || wei.Sign() < 0 {
		return nil, fmt.Errorf("--value %q is not a wei amount", value)
	}
	calldata, err := hexutil.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("--data: %w", err)
	}
	return aa.PackExecute(common.HexToAddress(to), wei, calldata)
}

func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%q is not a 32 byte hex hash", s)
	}
	return common.BytesToHash(b), nil
}

// formatEther renders a wei amount in ether.
func formatEther(wei *big.Int) string {
	return decimal.NewFromBigInt(wei, -18).String()
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
