package aa

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	entrypoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	sender     = common.HexToAddress("0x804e49e8C4eDb560AE7c48B554f6d2e27Bb81557")
)

// fakeCaller answers every eth_call with result and records the call data.
type fakeCaller struct {
	result []byte
	err    error
	calls  []ethereum.CallMsg
}

func (c *fakeCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (c *fakeCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.calls = append(c.calls, call)
	return c.result, c.err
}

func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

func TestGetNonce(t *testing.T) {
	caller := &fakeCaller{result: common.LeftPadBytes(big.NewInt(42).Bytes(), 32)}

	nonce, err := GetNonce(context.Background(), caller, entrypoint, sender, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), nonce.Int64())

	require.Len(t, caller.calls, 1)
	call := caller.calls[0]
	assert.Equal(t, entrypoint, *call.To)
	assert.Equal(t, selector("getNonce(address,uint192)"), call.Data[:4])
	assert.Equal(t, common.LeftPadBytes(sender.Bytes(), 32), call.Data[4:36])
	assert.Equal(t, make([]byte, 32), call.Data[36:68])
}

func TestPendingNonce(t *testing.T) {
	caller := &fakeCaller{result: common.LeftPadBytes([]byte{7}, 32)}
	pending := PendingNonce(caller, entrypoint, sender, big.NewInt(3))
	assert.Empty(t, caller.calls)

	v, err := pending.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), v.(*big.Int).Int64())
	assert.Equal(t, byte(3), caller.calls[0].Data[67])

	failing := &fakeCaller{err: errors.New("execution reverted")}
	_, err = PendingNonce(failing, entrypoint, sender, nil).Resolve(context.Background())
	assert.ErrorContains(t, err, sender.Hex())
}

func TestPackExecute(t *testing.T) {
	target := common.HexToAddress("0x0000000000000000000000000000000000000001")
	data, err := PackExecute(target, big.NewInt(5), []byte{0xde, 0xad})
	require.NoError(t, err)

	assert.Equal(t, selector("execute(address,uint256,bytes)"), data[:4])
	assert.Equal(t, common.LeftPadBytes(target.Bytes(), 32), data[4:36])
	assert.Equal(t, common.LeftPadBytes([]byte{5}, 32), data[36:68])

	_, err = PackExecute(target, nil, nil)
	assert.NoError(t, err)
}

func TestGetInitCode(t *testing.T) {
	factory := common.HexToAddress("0x29adA1b5217242DEaBB142BC3b1bCfFdd56008e7")
	initCode, err := GetInitCode(factory, sender, nil)
	require.NoError(t, err)

	assert.Len(t, initCode, 20+4+64)
	assert.Equal(t, factory.Bytes(), initCode[:20])
	assert.Equal(t, selector("createAccount(address,uint256)"), initCode[20:24])
	assert.Equal(t, common.LeftPadBytes(sender.Bytes(), 32), initCode[24:56])
}
