// Provide primitive to work with a bundler RPC
// Bundler RPC is stateless; the client only remembers whether the bundler runs
// on the chain the caller expects.
package bundler

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/oklog/ulid/v2"

	"github.com/AvaProtocol/ap-userop/metrics"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/userop"
	"github.com/AvaProtocol/ap-userop/pkg/logger"
)

// JSON-RPC methods of the eth namespace defined by EIP-4337.
const (
	MethodChainID                  = "eth_chainId"
	MethodSendUserOperation        = "eth_sendUserOperation"
	MethodEstimateUserOperationGas = "eth_estimateUserOperationGas"
	MethodGetUserOperationByHash   = "eth_getUserOperationByHash"
	MethodGetUserOperationReceipt  = "eth_getUserOperationReceipt"
	MethodSupportedEntryPoints     = "eth_supportedEntryPoints"
)

// Transport is the JSON-RPC channel the client talks through. *rpc.Client
// satisfies it.
type Transport interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// BundlerClient defines a client for interacting with an EIP-4337 bundler RPC endpoint.
//
// The bundler's chain id is checked once, in the background, when the client is
// created. Every operation waits for that check and fails with its error if the
// bundler runs on another chain. A client built with an empty URL is inert and
// refuses every operation with ErrNoBundler.
type BundlerClient struct {
	client     Transport
	closer     func()
	url        string
	entrypoint common.Address
	chainID    *big.Int

	logger  logger.Logger
	metrics metrics.BundlerMetrics

	// initDone is closed once initErr holds the outcome of the chain id check.
	initDone chan struct{}
	initErr  error
}

// Option customizes a BundlerClient.
type Option func(*BundlerClient)

func WithLogger(l logger.Logger) Option {
	return func(bc *BundlerClient) {
		bc.logger = logger.EnsureLogger(l)
	}
}

func WithMetrics(m metrics.BundlerMetrics) Option {
	return func(bc *BundlerClient) {
		if m != nil {
			bc.metrics = m
		}
	}
}

// NewBundlerClient creates a new BundlerClient that connects to the given URL and
// starts checking that the bundler runs on chainID.
func NewBundlerClient(url string, entrypoint common.Address, chainID *big.Int, opts ...Option) (*BundlerClient, error) {
	if url == "" {
		return newInertClient(entrypoint, chainID, opts), nil
	}

	// DialOptions picks the transport from the scheme, HTTP for most bundlers
	c, err := rpc.DialOptions(context.Background(), url)
	if err != nil {
		return nil, fmt.Errorf("error creating bundler client: %w", err)
	}
	bc := NewBundlerClientWithTransport(c, url, entrypoint, chainID, opts...)
	bc.closer = c.Close
	return bc, nil
}

// NewBundlerClientWithTransport is NewBundlerClient over an existing transport.
// url is only used in logs and errors. A nil transport yields an inert client.
func NewBundlerClientWithTransport(t Transport, url string, entrypoint common.Address, chainID *big.Int, opts ...Option) *BundlerClient {
	if isNilTransport(t) {
		return newInertClient(entrypoint, chainID, opts)
	}

	bc := &BundlerClient{
		client:     t,
		url:        url,
		entrypoint: entrypoint,
		chainID:    copyBig(chainID),
		logger:     logger.NewNoOpLogger(),
		metrics:    metrics.NoopMetrics{},
		initDone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(bc)
	}

	go bc.initialize()
	return bc
}

// isNilTransport also catches a nil pointer wrapped in the interface, such as
// a nil *rpc.Client.
func isNilTransport(t Transport) bool {
	if t == nil {
		return true
	}
	v := reflect.ValueOf(t)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice:
		return v.IsNil()
	}
	return false
}

func newInertClient(entrypoint common.Address, chainID *big.Int, opts []Option) *BundlerClient {
	bc := &BundlerClient{
		entrypoint: entrypoint,
		chainID:    copyBig(chainID),
		logger:     logger.NewNoOpLogger(),
		metrics:    metrics.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

func (bc *BundlerClient) initialize() {
	// the check is not tied to any caller, so it runs without deadline
	bc.initErr = bc.checkChainID(context.Background())
	if bc.initErr != nil {
		bc.logger.Error("bundler chain id check failed", "url", bc.url, "err", bc.initErr)
	} else {
		bc.logger.Debug("bundler chain id verified", "url", bc.url, "chainId", bc.chainID)
	}
	close(bc.initDone)
}

func (bc *BundlerClient) checkChainID(ctx context.Context) error {
	var raw json.RawMessage
	if err := bc.call(ctx, &raw, MethodChainID); err != nil {
		return err
	}
	bundlerChain, err := parseQuantity(raw)
	if err != nil {
		return fmt.Errorf("bundler %s returned an invalid chainId %s: %w", bc.url, string(raw), err)
	}
	if bundlerChain == nil {
		return fmt.Errorf("bundler %s returned no chainId", bc.url)
	}
	if bundlerChain.Cmp(bc.chainID) != 0 {
		return &ChainIDMismatchError{URL: bc.url, Bundler: bundlerChain, Expected: copyBig(bc.chainID)}
	}
	return nil
}

// Ready blocks until the chain id check has finished and returns its outcome.
// The check is never repeated: a mismatch is permanent for this client. ctx only
// bounds how long this caller waits.
func (bc *BundlerClient) Ready(ctx context.Context) error {
	if bc.initDone == nil {
		return ErrNoBundler
	}
	select {
	case <-bc.initDone:
		return bc.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ValidateChainID reports whether the bundler runs on the expected chain. It
// waits for the check started at construction rather than issuing a new query.
func (bc *BundlerClient) ValidateChainID(ctx context.Context) error {
	return bc.Ready(ctx)
}

// URL returns the bundler endpoint, empty for an inert client.
func (bc *BundlerClient) URL() string {
	return bc.url
}

// Entrypoint returns the entrypoint address sent along with every operation.
func (bc *BundlerClient) Entrypoint() common.Address {
	return bc.entrypoint
}

// ChainID returns the chain id the bundler is expected to run on.
func (bc *BundlerClient) ChainID() *big.Int {
	return copyBig(bc.chainID)
}

// Close closes the underlying RPC client connection when the client dialed it.
func (bc *BundlerClient) Close() {
	if bc.closer != nil {
		bc.closer()
	}
}

// SendUserOperation sends a UserOperation to the bundler and returns its userOpHash.
// Pending fields are resolved first and nothing is sent before the chain id check passed.
func (bc *BundlerClient) SendUserOperation(ctx context.Context, op userop.Struct) (common.Hash, error) {
	wire, err := bc.prepare(ctx, op)
	if err != nil {
		return common.Hash{}, err
	}

	var hash common.Hash
	if err := bc.call(ctx, &hash, MethodSendUserOperation, wire, bc.entrypointParam()); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// EstimateUserOperationGas estimates the gas required for a UserOperation.
// https://eips.ethereum.org/EIPS/eip-4337#rpc-methods-eth-namespace
// The operation may be partial: fields left nil are not sent, and the signature
// is ignored by the bundler although some require one of the right length.
func (bc *BundlerClient) EstimateUserOperationGas(ctx context.Context, op userop.Struct) (*GasEstimation, error) {
	wire, err := bc.prepare(ctx, op)
	if err != nil {
		return nil, err
	}

	var result gasEstimationResult
	if err := bc.call(ctx, &result, MethodEstimateUserOperationGas, wire, bc.entrypointParam()); err != nil {
		return nil, err
	}
	return result.toGasEstimation()
}

// GetUserOperationByHash fetches a UserOperation by its hash. It returns nil
// when the bundler does not know the hash.
func (bc *BundlerClient) GetUserOperationByHash(ctx context.Context, hash common.Hash) (map[string]any, error) {
	if err := bc.Ready(ctx); err != nil {
		return nil, err
	}
	var result map[string]any
	err := bc.call(ctx, &result, MethodGetUserOperationByHash, hash)
	return result, err
}

// GetUserOperationReceipt fetches the receipt of a UserOperation. It returns nil
// while the operation is not mined.
func (bc *BundlerClient) GetUserOperationReceipt(ctx context.Context, hash common.Hash) (map[string]any, error) {
	if err := bc.Ready(ctx); err != nil {
		return nil, err
	}
	var result map[string]any
	err := bc.call(ctx, &result, MethodGetUserOperationReceipt, hash)
	return result, err
}

// SupportedEntryPoints lists the entrypoints the bundler accepts operations for.
func (bc *BundlerClient) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	if err := bc.Ready(ctx); err != nil {
		return nil, err
	}
	var result []common.Address
	err := bc.call(ctx, &result, MethodSupportedEntryPoints)
	return result, err
}

// Some bundlers only match the entrypoint in its EIP-55 checksummed form.
func (bc *BundlerClient) entrypointParam() string {
	return bc.entrypoint.Hex()
}

func (bc *BundlerClient) prepare(ctx context.Context, op userop.Struct) (any, error) {
	if err := bc.Ready(ctx); err != nil {
		return nil, err
	}
	resolved, err := op.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return userop.HexlifyContext(ctx, resolved)
}

// call sends one request. Transport errors are returned as they are.
func (bc *BundlerClient) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	reqID := ulid.Make().String()
	bc.logger.Debug("sending bundler request", "reqId", reqID, "method", method, "url", bc.url, "params", args)

	if err := bc.client.CallContext(ctx, result, method, args...); err != nil {
		bc.metrics.IncBundlerRequest(method, metrics.StatusError)
		bc.logger.Debug("bundler request failed", "reqId", reqID, "method", method, "err", err)
		return err
	}
	bc.metrics.IncBundlerRequest(method, metrics.StatusSuccess)
	return nil
}
