// Package userop holds the ERC-4337 user operation shapes shared by the bundler
// client and the signer, plus the conversion of operations into their JSON-RPC
// wire form.
package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	address, _ = abi.NewType("address", "", nil)
	uint256, _ = abi.NewType("uint256", "", nil)
	bytes32, _ = abi.NewType("bytes32", "", nil)

	// packArgs follows EntryPoint v0.6 UserOperationLib.pack: dynamic byte
	// fields are replaced by their keccak256 hash.
	packArgs = abi.Arguments{
		{Name: "sender", Type: address},
		{Name: "nonce", Type: uint256},
		{Name: "hashInitCode", Type: bytes32},
		{Name: "hashCallData", Type: bytes32},
		{Name: "callGasLimit", Type: uint256},
		{Name: "verificationGasLimit", Type: uint256},
		{Name: "preVerificationGas", Type: uint256},
		{Name: "maxFeePerGas", Type: uint256},
		{Name: "maxPriorityFeePerGas", Type: uint256},
		{Name: "hashPaymasterAndData", Type: bytes32},
	}
)

// UserOperation represents an EIP-4337 style transaction for a smart contract account.
// All values are concrete; see Struct for the form that may still carry pending values.
type UserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *big.Int       `json:"nonce"`
	InitCode             []byte         `json:"initCode"`
	CallData             []byte         `json:"callData"`
	CallGasLimit         *big.Int       `json:"callGasLimit"`
	VerificationGasLimit *big.Int       `json:"verificationGasLimit"`
	PreVerificationGas   *big.Int       `json:"preVerificationGas"`
	MaxFeePerGas         *big.Int       `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *big.Int       `json:"maxPriorityFeePerGas"`
	PaymasterAndData     []byte         `json:"paymasterAndData"`
	Signature            []byte         `json:"signature"`
}

// Pack returns the abi encoded operation without its signature, the preimage of
// the inner hash of GetUserOpHash.
func (op *UserOperation) Pack() []byte {
	packed, err := packArgs.Pack(
		op.Sender,
		orZero(op.Nonce),
		crypto.Keccak256Hash(op.InitCode),
		crypto.Keccak256Hash(op.CallData),
		orZero(op.CallGasLimit),
		orZero(op.VerificationGasLimit),
		orZero(op.PreVerificationGas),
		orZero(op.MaxFeePerGas),
		orZero(op.MaxPriorityFeePerGas),
		crypto.Keccak256Hash(op.PaymasterAndData),
	)
	if err != nil {
		// every argument is statically typed above
		panic(err)
	}
	return packed
}

// GetUserOpHash returns the hash the entrypoint uses to identify the operation
// and that the account owner signs.
func (op *UserOperation) GetUserOpHash(entrypoint common.Address, chainID *big.Int) common.Hash {
	return crypto.Keccak256Hash(
		crypto.Keccak256(op.Pack()),
		common.LeftPadBytes(entrypoint.Bytes(), 32),
		common.LeftPadBytes(orZero(chainID).Bytes(), 32),
	)
}

// ToStruct converts the operation into its loosely typed form so it can be sent
// through the bundler client.
func (op *UserOperation) ToStruct() Struct {
	return Struct{
		Sender:               op.Sender,
		Nonce:                orZero(op.Nonce),
		InitCode:             nonNilBytes(op.InitCode),
		CallData:             nonNilBytes(op.CallData),
		CallGasLimit:         orZero(op.CallGasLimit),
		VerificationGasLimit: orZero(op.VerificationGasLimit),
		PreVerificationGas:   orZero(op.PreVerificationGas),
		MaxFeePerGas:         orZero(op.MaxFeePerGas),
		MaxPriorityFeePerGas: orZero(op.MaxPriorityFeePerGas),
		PaymasterAndData:     nonNilBytes(op.PaymasterAndData),
		Signature:            nonNilBytes(op.Signature),
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func nonNilBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
