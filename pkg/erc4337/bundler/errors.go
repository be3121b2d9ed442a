package bundler

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrNoBundler is returned by every operation of a client built without a URL.
// Reaching it means the caller used a bundler client it never configured.
var ErrNoBundler = errors.New("bundler client has no URL configured; it cannot send or estimate user operations")

// ChainIDMismatchError is the permanent outcome of a client whose bundler runs
// on another chain than the one the caller expects.
type ChainIDMismatchError struct {
	URL      string
	Bundler  *big.Int
	Expected *big.Int
}

func (e *ChainIDMismatchError) Error() string {
	return fmt.Sprintf("bundler %s is on chainId %s, but provider is on chainId %s", e.URL, e.Bundler, e.Expected)
}
