package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"

	"github.com/AvaProtocol/ap-userop/pkg/erc4337/userop"
)

// DefaultDerivationPath is the BIP-44 path of the first Ethereum account.
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

var ErrInvalidMnemonic = errors.New("invalid mnemonic phrase")

// Backend is the network a signing identity sends through. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// IdentityDerivationError reports a mnemonic file that could not be turned
// into a key.
type IdentityDerivationError struct {
	Path string
	Err  error
}

func (e *IdentityDerivationError) Error() string {
	return fmt.Sprintf("unable to read --mnemonic %s: %v", e.Path, e.Err)
}

func (e *IdentityDerivationError) Unwrap() error {
	return e.Err
}

// Identity is an externally owned account bound to a network backend. The key
// never leaves the struct.
type Identity struct {
	key     *ecdsa.PrivateKey
	address common.Address
	backend Backend
}

// DeriveSigningIdentity reads the mnemonic stored at path, derives the account
// at DefaultDerivationPath and binds it to backend.
func DeriveSigningIdentity(path string, backend Backend) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IdentityDerivationError{Path: path, Err: err}
	}

	key, err := KeyFromMnemonic(strings.TrimSpace(string(data)), DefaultDerivationPath)
	if err != nil {
		return nil, &IdentityDerivationError{Path: path, Err: err}
	}
	return NewIdentity(key, backend), nil
}

// KeyFromMnemonic derives the private key at the given BIP-32 path from a BIP-39
// phrase with an empty passphrase.
func KeyFromMnemonic(mnemonic, path string) (*ecdsa.PrivateKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	derivationPath, err := accounts.ParseDerivationPath(path)
	if err != nil {
		return nil, err
	}

	seed := bip39.NewSeed(mnemonic, "")
	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}
	for _, index := range derivationPath {
		key, err = key.Derive(index)
		if err != nil {
			return nil, err
		}
	}

	privateKey, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	return privateKey.ToECDSA(), nil
}

func NewIdentity(key *ecdsa.PrivateKey, backend Backend) *Identity {
	return &Identity{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		backend: backend,
	}
}

func (i *Identity) Address() common.Address {
	return i.address
}

func (i *Identity) Backend() Backend {
	return i.backend
}

// Connect returns the same account bound to another backend.
func (i *Identity) Connect(backend Backend) *Identity {
	return &Identity{key: i.key, address: i.address, backend: backend}
}

// SignMessage produces an EIP-191 personal signature over data.
func (i *Identity) SignMessage(data []byte) ([]byte, error) {
	return SignMessage(i.key, data)
}

// SignUserOp signs the userOpHash of op the way SimpleAccount validates it: an
// EIP-191 signature over the 32 byte hash.
func (i *Identity) SignUserOp(op *userop.UserOperation, entrypoint common.Address, chainID *big.Int) ([]byte, error) {
	hash := op.GetUserOpHash(entrypoint, chainID)
	return SignMessage(i.key, hash.Bytes())
}

// TransactOpts returns transaction options signing for this account on the
// backend's chain.
func (i *Identity) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if i.backend == nil {
		return nil, errors.New("signing identity is not connected to a network")
	}
	chainID, err := i.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot get chainId: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(i.key, chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}
