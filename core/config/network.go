package config

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/AvaProtocol/ap-userop/pkg/logger"
)

const (
	// DefaultNetworkURL is where a bare network alias leads unless the resolve
	// context maps it elsewhere.
	DefaultNetworkURL = "https://ethereum-goerli.publicnode.com"
	// DefaultTestNetworkAlias selects the in-process network.
	DefaultTestNetworkAlias = "hardhat"
	// APIKeyEnv holds the RPC provider key substituted into alias URLs.
	APIKeyEnv = "INFURA_ID"

	apiKeyPlaceholder = "{apiKey}"
)

var aliasPattern = regexp.MustCompile(`^[\w-]+$`)

// ResolveContext carries everything the resolver would otherwise read from the
// process environment. Build it once at startup.
type ResolveContext struct {
	// APIKey replaces the {apiKey} placeholder of alias URLs.
	APIKey string
	// DefaultNetworkURL is used for aliases missing from Aliases.
	DefaultNetworkURL string
	// Aliases maps a bare network name to an RPC URL.
	Aliases map[string]string
	// TestNetworkAlias selects TestNetwork instead of a URL.
	TestNetworkAlias string
	// TestNetwork connects to an in-process network supplied by a test harness.
	TestNetwork func(ctx context.Context) (*rpc.Client, error)
	// Defaults replaces the built-in defaults layer when set.
	Defaults Layer
	Logger   logger.Logger
}

// ContextFromEnv reads the environment once. Nothing else in this package does.
func ContextFromEnv() ResolveContext {
	return ResolveContext{APIKey: os.Getenv(APIKeyEnv)}
}

func (rc ResolveContext) testNetworkAlias() string {
	if rc.TestNetworkAlias != "" {
		return rc.TestNetworkAlias
	}
	return DefaultTestNetworkAlias
}

// NetworkURL maps the network config value to the URL to dial. A bare token is
// an alias, anything else is already a URL.
func NetworkURL(network string, rc ResolveContext) string {
	if !aliasPattern.MatchString(network) {
		return network
	}

	url, ok := rc.Aliases[network]
	if !ok {
		url = rc.DefaultNetworkURL
	}
	if url == "" {
		url = DefaultNetworkURL
	}
	return strings.ReplaceAll(url, apiKeyPlaceholder, rc.APIKey)
}

// Endpoint is the JSON-RPC connection to the chain, used for the whole session.
type Endpoint struct {
	// URL is empty for the in-process network.
	URL       string
	InProcess bool

	rpc    *rpc.Client
	client *ethclient.Client
}

func newEndpoint(url string, inProcess bool, c *rpc.Client) *Endpoint {
	return &Endpoint{URL: url, InProcess: inProcess, rpc: c, client: ethclient.NewClient(c)}
}

// RPC returns the raw JSON-RPC client.
func (e *Endpoint) RPC() *rpc.Client {
	return e.rpc
}

// Client returns the typed eth API over the same connection.
func (e *Endpoint) Client() *ethclient.Client {
	return e.client
}

func (e *Endpoint) ChainID(ctx context.Context) (*big.Int, error) {
	return e.client.ChainID(ctx)
}

func (e *Endpoint) Close() {
	e.rpc.Close()
}

// ResolveNetworkEndpoint connects to the network named by the config. Dialing
// HTTP endpoints does not touch the network yet.
func ResolveNetworkEndpoint(ctx context.Context, network string, rc ResolveContext) (*Endpoint, error) {
	if network == rc.testNetworkAlias() {
		if rc.TestNetwork == nil {
			return nil, fmt.Errorf("network %q: %w", network, ErrNoTestNetwork)
		}
		c, err := rc.TestNetwork(ctx)
		if err != nil {
			return nil, fmt.Errorf("cannot connect to in-process network %q: %w", network, err)
		}
		return newEndpoint("", true, c), nil
	}

	url := NetworkURL(network, rc)
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to network %s: %w", url, err)
	}
	return newEndpoint(url, false, c), nil
}
