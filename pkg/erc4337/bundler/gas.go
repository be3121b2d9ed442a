package bundler

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// GasEstimation holds the gas limits suggested by the bundler. VerificationGas
// and VerificationGasLimit carry the same value; bundlers name it either way.
type GasEstimation struct {
	PreVerificationGas   *big.Int
	VerificationGasLimit *big.Int
	CallGasLimit         *big.Int
	VerificationGas      *big.Int
}

type gasEstimationResult struct {
	PreVerificationGas   json.RawMessage `json:"preVerificationGas"`
	VerificationGasLimit json.RawMessage `json:"verificationGasLimit"`
	VerificationGas      json.RawMessage `json:"verificationGas"`
	CallGasLimit         json.RawMessage `json:"callGasLimit"`
}

func (r *gasEstimationResult) toGasEstimation() (*GasEstimation, error) {
	est := &GasEstimation{}
	fields := []struct {
		name string
		raw  json.RawMessage
		dst  **big.Int
	}{
		{"preVerificationGas", r.PreVerificationGas, &est.PreVerificationGas},
		{"verificationGasLimit", r.VerificationGasLimit, &est.VerificationGasLimit},
		{"verificationGas", r.VerificationGas, &est.VerificationGas},
		{"callGasLimit", r.CallGasLimit, &est.CallGasLimit},
	}
	for _, f := range fields {
		v, err := parseQuantity(f.raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s in gas estimation: %w", f.name, err)
		}
		*f.dst = v
	}

	if est.VerificationGas == nil {
		est.VerificationGas = est.VerificationGasLimit
	}
	if est.VerificationGasLimit == nil {
		est.VerificationGasLimit = est.VerificationGas
	}

	switch {
	case est.CallGasLimit == nil:
		return nil, fmt.Errorf("gas estimation is missing callGasLimit")
	case est.PreVerificationGas == nil:
		return nil, fmt.Errorf("gas estimation is missing preVerificationGas")
	case est.VerificationGas == nil:
		return nil, fmt.Errorf("gas estimation is missing verificationGas")
	}
	return est, nil
}

// Total is the sum of all three limits, the most gas the operation can be charged for.
func (g *GasEstimation) Total() *big.Int {
	total := new(big.Int).Add(g.PreVerificationGas, g.VerificationGas)
	return total.Add(total, g.CallGasLimit)
}

// parseQuantity reads a JSON-RPC quantity. Bundlers answer with hex strings, but
// some return decimal strings or plain numbers. Absent or null values yield nil.
func parseQuantity(raw json.RawMessage) (*big.Int, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil, nil
	}

	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return nil, err
		}
		if strings.HasPrefix(str, "0x") || strings.HasPrefix(str, "0X") {
			// leading zeros are common in bundler answers, hexutil.DecodeBig refuses them
			n, ok := new(big.Int).SetString(str[2:], 16)
			if !ok {
				return nil, hexutil.ErrSyntax
			}
			return n, nil
		}
		n, ok := new(big.Int).SetString(str, 10)
		if !ok {
			return nil, fmt.Errorf("%q is neither hex nor decimal", str)
		}
		return n, nil
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return nil, err
	}
	n, ok := new(big.Int).SetString(num.String(), 10)
	if !ok {
		return nil, fmt.Errorf("%s is not an integer", num)
	}
	return n, nil
}

func copyBig(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(n)
}
