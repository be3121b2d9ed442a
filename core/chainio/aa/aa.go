package aa

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-userop/pkg/erc4337/userop"
)

// Only the methods a client needs to fill in a user operation.
const (
	entryPointABIJSON = `[{"inputs":[{"internalType":"address","name":"sender","type":"address"},{"internalType":"uint192","name":"key","type":"uint192"}],"name":"getNonce","outputs":[{"internalType":"uint256","name":"nonce","type":"uint256"}],"stateMutability":"view","type":"function"}]`

	simpleAccountABIJSON = `[{"inputs":[{"internalType":"address","name":"dest","type":"address"},{"internalType":"uint256","name":"value","type":"uint256"},{"internalType":"bytes","name":"func","type":"bytes"}],"name":"execute","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

	simpleFactoryABIJSON = `[{"inputs":[{"internalType":"address","name":"owner","type":"address"},{"internalType":"uint256","name":"salt","type":"uint256"}],"name":"createAccount","outputs":[{"internalType":"contract SimpleAccount","name":"ret","type":"address"}],"stateMutability":"nonpayable","type":"function"}]`
)

var (
	entryPointABI    = mustParseABI(entryPointABIJSON)
	simpleAccountABI = mustParseABI(simpleAccountABIJSON)
	simpleFactoryABI = mustParseABI(simpleFactoryABIJSON)

	defaultNonceKey = big.NewInt(0)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Errorf("invalid ABI: %w", err))
	}
	return parsed
}

// GetNonce asks the entrypoint for the next nonce of sender in the given key
// space. A nil key means key 0.
func GetNonce(ctx context.Context, caller bind.ContractCaller, entrypoint, sender common.Address, key *big.Int) (*big.Int, error) {
	if key == nil {
		key = defaultNonceKey
	}

	contract := bind.NewBoundContract(entrypoint, entryPointABI, caller, nil, nil)
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "getNonce", sender, key); err != nil {
		return nil, fmt.Errorf("cannot get nonce of %s: %w", sender.Hex(), err)
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// PendingNonce defers GetNonce until the operation is sent.
func PendingNonce(caller bind.ContractCaller, entrypoint, sender common.Address, key *big.Int) userop.Pending {
	return userop.PendingFunc(func(ctx context.Context) (any, error) {
		return GetNonce(ctx, caller, entrypoint, sender, key)
	})
}

// PackExecute generates the callData for SimpleAccount.execute.
func PackExecute(target common.Address, value *big.Int, calldata []byte) ([]byte, error) {
	if value == nil {
		value = new(big.Int)
	}
	return simpleAccountABI.Pack("execute", target, value, calldata)
}

// GetInitCode returns the initCode deploying a SimpleAccount for owner through
// factory: the factory address followed by the createAccount call.
func GetInitCode(factory, owner common.Address, salt *big.Int) ([]byte, error) {
	if salt == nil {
		salt = new(big.Int)
	}
	calldata, err := simpleFactoryABI.Pack("createAccount", owner, salt)
	if err != nil {
		return nil, err
	}
	return append(factory.Bytes(), calldata...), nil
}
