package multicall

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// TransportError reports that the read port failed or answered with a
// malformed batch. It aborts the whole invocation.
type TransportError struct {
	Target common.Address
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("multicall transport error calling %s: %v", e.Target.Hex(), e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
