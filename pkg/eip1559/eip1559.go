package eip1559

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AvaProtocol/ap-userop/pkg/erc4337/userop"
)

var (
	// minimum tip for bundler profitability, 2 gwei
	minTip = big.NewInt(2_000_000_000)
	// minimum maxFeePerGas for high base fee chains, 20 gwei
	minMaxFee = big.NewInt(20_000_000_000)
)

// FeeSource is the part of the chain API fee suggestion needs. *ethclient.Client
// satisfies it.
type FeeSource interface {
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

type Fees struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// SuggestFee suggests fees for a user operation included in the next few
// blocks.
func SuggestFee(ctx context.Context, client FeeSource) (*Fees, error) {
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, err
	}

	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}

	// 13% buffer on the tip
	buffer := new(big.Int).Div(tipCap, big.NewInt(100))
	buffer.Mul(buffer, big.NewInt(13))
	maxPriorityFeePerGas := new(big.Int).Add(tipCap, buffer)
	if maxPriorityFeePerGas.Cmp(minTip) < 0 {
		maxPriorityFeePerGas = new(big.Int).Set(minTip)
	}

	var maxFeePerGas *big.Int
	if baseFee := header.BaseFee; baseFee != nil {
		// maxFeePerGas = 2 * baseFee + maxPriorityFeePerGas, so the operation
		// survives the base fee doubling
		maxFeePerGas = new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), maxPriorityFeePerGas)
		if maxFeePerGas.Cmp(minMaxFee) < 0 {
			maxFeePerGas = new(big.Int).Set(minMaxFee)
		}
	} else {
		// pre EIP-1559 chain
		maxFeePerGas = new(big.Int).Set(maxPriorityFeePerGas)
	}

	return &Fees{MaxFeePerGas: maxFeePerGas, MaxPriorityFeePerGas: maxPriorityFeePerGas}, nil
}

// FillFees returns op with every absent fee field set to a pending suggestion.
// The fields share one SuggestFee call, made when the first of them resolves.
func FillFees(op userop.Struct, client FeeSource) userop.Struct {
	if op.MaxFeePerGas != nil && op.MaxPriorityFeePerGas != nil {
		return op
	}

	var (
		once sync.Once
		fees *Fees
		err  error
	)
	suggest := func(ctx context.Context) (*Fees, error) {
		once.Do(func() { fees, err = SuggestFee(ctx, client) })
		return fees, err
	}

	if op.MaxFeePerGas == nil {
		op.MaxFeePerGas = userop.PendingFunc(func(ctx context.Context) (any, error) {
			f, err := suggest(ctx)
			if err != nil {
				return nil, err
			}
			return f.MaxFeePerGas, nil
		})
	}
	if op.MaxPriorityFeePerGas == nil {
		op.MaxPriorityFeePerGas = userop.PendingFunc(func(ctx context.Context) (any, error) {
			f, err := suggest(ctx)
			if err != nil {
				return nil, err
			}
			return f.MaxPriorityFeePerGas, nil
		})
	}
	return op
}
