package config

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/ap-userop/core/testutil"
)

func TestNetworkURL(t *testing.T) {
	rc := ResolveContext{
		APIKey:  "k3y",
		Aliases: map[string]string{"sepolia": "https://sepolia.infura.io/v3/{apiKey}"},
	}

	tests := []struct {
		name    string
		network string
		rc      ResolveContext
		want    string
	}{
		{name: "mapped alias", network: "sepolia", rc: rc, want: "https://sepolia.infura.io/v3/k3y"},
		{name: "unmapped alias", network: "goerli", rc: rc, want: DefaultNetworkURL},
		{name: "context default", network: "mainnet", rc: ResolveContext{DefaultNetworkURL: "https://{apiKey}.example"}, want: "https://.example"},
		{name: "url kept verbatim", network: "http://localhost:8545", rc: rc, want: "http://localhost:8545"},
		{name: "url with placeholder untouched", network: "https://x/{apiKey}", rc: rc, want: "https://x/{apiKey}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NetworkURL(tt.network, tt.rc))
		})
	}
}

func TestResolveNetworkEndpointHTTP(t *testing.T) {
	endpoint, err := ResolveNetworkEndpoint(context.Background(), "http://127.0.0.1:1", ResolveContext{})
	require.NoError(t, err)
	defer endpoint.Close()

	assert.Equal(t, "http://127.0.0.1:1", endpoint.URL)
	assert.False(t, endpoint.InProcess)
	assert.NotNil(t, endpoint.RPC())
	assert.NotNil(t, endpoint.Client())
}

func TestResolveNetworkEndpointInProcess(t *testing.T) {
	chain := &testutil.FakeChain{ChainID: big.NewInt(31337)}

	t.Run("not attached", func(t *testing.T) {
		_, err := ResolveNetworkEndpoint(context.Background(), DefaultTestNetworkAlias, ResolveContext{})
		assert.ErrorIs(t, err, ErrNoTestNetwork)
	})

	t.Run("attached", func(t *testing.T) {
		rc := ResolveContext{TestNetwork: func(ctx context.Context) (*rpc.Client, error) {
			return chain.Dial(t), nil
		}}
		endpoint, err := ResolveNetworkEndpoint(context.Background(), DefaultTestNetworkAlias, rc)
		require.NoError(t, err)
		defer endpoint.Close()

		assert.True(t, endpoint.InProcess)
		assert.Empty(t, endpoint.URL)

		chainID, err := endpoint.ChainID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(31337), chainID.Int64())
	})

	t.Run("custom alias", func(t *testing.T) {
		called := false
		rc := ResolveContext{
			TestNetworkAlias: "anvil",
			TestNetwork: func(ctx context.Context) (*rpc.Client, error) {
				called = true
				return chain.Dial(t), nil
			},
		}
		endpoint, err := ResolveNetworkEndpoint(context.Background(), "anvil", rc)
		require.NoError(t, err)
		endpoint.Close()
		assert.True(t, called)
	})

	t.Run("harness failure", func(t *testing.T) {
		boom := errors.New("boom")
		rc := ResolveContext{TestNetwork: func(ctx context.Context) (*rpc.Client, error) {
			return nil, boom
		}}
		_, err := ResolveNetworkEndpoint(context.Background(), DefaultTestNetworkAlias, rc)
		assert.ErrorIs(t, err, boom)
	})
}

func TestContextFromEnv(t *testing.T) {
	t.Setenv(APIKeyEnv, "from-env")
	assert.Equal(t, "from-env", ContextFromEnv().APIKey)
}
