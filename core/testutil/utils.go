package testutil

import (
	"context"
	"errors"
	"math/big"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	// TestMnemonic is the well known development phrase of hardhat and anvil.
	TestMnemonic = "test test test test test test test test test test test junk"
	// TestMnemonicAddress is the first account derived from TestMnemonic.
	TestMnemonicAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

	EntrypointAddress = "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"
)

// ErrRejected is what FakeBundler answers when told to reject operations.
var ErrRejected = errors.New("AA21 didn't pay prefund")

func GetLogger() sdklogging.Logger {
	logger, err := sdklogging.NewZapLogger("development")
	if err != nil {
		panic(err)
	}
	return logger
}

// WriteFile writes content into a file under a fresh temp dir and returns its path.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// FakeBundler is an in-process stand-in for an EIP-4337 bundler. It answers the
// eth namespace methods the bundler client uses and records what it received.
type FakeBundler struct {
	// ChainID is what eth_chainId reports, as a hex quantity.
	ChainID *big.Int
	// Gas is returned verbatim by eth_estimateUserOperationGas.
	Gas map[string]any
	// Reject makes eth_sendUserOperation fail with ErrRejected.
	Reject bool

	chainIDCalls atomic.Int32
	gate         chan struct{}

	mu        sync.Mutex
	sent      []map[string]any
	estimated []map[string]any
	entries   []string
}

func NewFakeBundler(chainID int64) *FakeBundler {
	return &FakeBundler{
		ChainID: big.NewInt(chainID),
		Gas: map[string]any{
			"callGasLimit":       "0x5208",
			"preVerificationGas": "0xc350",
			"verificationGas":    "0x186a0",
		},
	}
}

// Hold makes eth_chainId block until the returned release function is called.
// It must be set up before the client is created.
func (b *FakeBundler) Hold() (release func()) {
	b.gate = make(chan struct{})
	var once sync.Once
	return func() { once.Do(func() { close(b.gate) }) }
}

// ChainIDCalls returns how many times eth_chainId was called.
func (b *FakeBundler) ChainIDCalls() int {
	return int(b.chainIDCalls.Load())
}

// Sent returns the operations received through eth_sendUserOperation.
func (b *FakeBundler) Sent() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]any(nil), b.sent...)
}

// Estimated returns the operations received through eth_estimateUserOperationGas.
func (b *FakeBundler) Estimated() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]any(nil), b.estimated...)
}

// Entrypoints returns the entrypoint argument of every operation request.
func (b *FakeBundler) Entrypoints() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.entries...)
}

// Server returns a JSON-RPC server exposing the bundler.
func (b *FakeBundler) Server(t *testing.T) *rpc.Server {
	t.Helper()
	server := rpc.NewServer()
	if err := server.RegisterName("eth", &fakeEthService{b: b}); err != nil {
		t.Fatalf("register fake bundler: %v", err)
	}
	t.Cleanup(server.Stop)
	return server
}

// Dial returns an in-process client connected to the bundler.
func (b *FakeBundler) Dial(t *testing.T) *rpc.Client {
	t.Helper()
	client := rpc.DialInProc(b.Server(t))
	t.Cleanup(client.Close)
	return client
}

// ServeHTTP exposes the bundler over HTTP and returns its URL.
func (b *FakeBundler) ServeHTTP(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(b.Server(t))
	t.Cleanup(srv.Close)
	return srv.URL
}

// fakeEthService carries the RPC methods; rpc lowercases the first letter, so
// SendUserOperation is served as eth_sendUserOperation.
type fakeEthService struct {
	b *FakeBundler
}

func (s *fakeEthService) ChainId(ctx context.Context) (*hexutil.Big, error) {
	s.b.chainIDCalls.Add(1)
	if s.b.gate != nil {
		select {
		case <-s.b.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return (*hexutil.Big)(s.b.ChainID), nil
}

func (s *fakeEthService) SendUserOperation(op map[string]any, entrypoint string) (common.Hash, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.b.Reject {
		return common.Hash{}, ErrRejected
	}
	s.b.sent = append(s.b.sent, op)
	s.b.entries = append(s.b.entries, entrypoint)
	return common.BigToHash(big.NewInt(int64(len(s.b.sent)))), nil
}

func (s *fakeEthService) EstimateUserOperationGas(op map[string]any, entrypoint string) (map[string]any, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.estimated = append(s.b.estimated, op)
	s.b.entries = append(s.b.entries, entrypoint)
	return s.b.Gas, nil
}

func (s *fakeEthService) SupportedEntryPoints() ([]string, error) {
	return []string{EntrypointAddress}, nil
}

func (s *fakeEthService) GetUserOperationByHash(hash common.Hash) (map[string]any, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	idx := new(big.Int).SetBytes(hash.Bytes()).Int64()
	if idx < 1 || idx > int64(len(s.b.sent)) {
		return nil, nil
	}
	return map[string]any{"userOperation": s.b.sent[idx-1], "entryPoint": EntrypointAddress}, nil
}

func (s *fakeEthService) GetUserOperationReceipt(hash common.Hash) (map[string]any, error) {
	return nil, nil
}

// FakeChain is an in-process stand-in for an execution client, enough for
// endpoint resolution and signer binding.
type FakeChain struct {
	ChainID *big.Int
}

func (c *FakeChain) Dial(t *testing.T) *rpc.Client {
	t.Helper()
	server := rpc.NewServer()
	if err := server.RegisterName("eth", &fakeChainService{c: c}); err != nil {
		t.Fatalf("register fake chain: %v", err)
	}
	client := rpc.DialInProc(server)
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return client
}

type fakeChainService struct {
	c *FakeChain
}

func (s *fakeChainService) ChainId() *hexutil.Big {
	return (*hexutil.Big)(s.c.ChainID)
}
