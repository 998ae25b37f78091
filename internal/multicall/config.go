package multicall

import (
	"fmt"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
)

// Generation identifies which batching contract serves a block height.
type Generation int

const (
	GenerationNone Generation = iota
	GenerationV1
	GenerationV2
)

func (g Generation) String() string {
	switch g {
	case GenerationV1:
		return "v1"
	case GenerationV2:
		return "v2"
	default:
		return "none"
	}
}

// DefaultBatchSize is the maximum number of calls per batching-contract call.
const DefaultBatchSize = 150

// Config holds the deployment heights and addresses of the batching contracts
// for one network.
type Config struct {
	V1Block   uint64
	V1Address common.Address `validate:"required"`
	V2Block   uint64         `validate:"gtefield=V1Block"`
	V2Address common.Address `validate:"required"`
	BatchSize int            `validate:"gt=0"`
}

// MainnetConfig returns the Ethereum mainnet deployments.
func MainnetConfig() Config {
	return Config{
		V1Block:   7929876,
		V1Address: common.HexToAddress("0xeefBa1e63905eF1D7ACbA5a8513c70307C1cE441"),
		V2Block:   12336033,
		V2Address: common.HexToAddress("0x5BA1e12693Dc8F9c48aAD8770482f4739bEeD696"),
		BatchSize: DefaultBatchSize,
	}
}

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New()
	// common.Address is an array, so "required" needs a custom zero check.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if addr, ok := field.Interface().(common.Address); ok {
			if addr == (common.Address{}) {
				return ""
			}
			return addr.Hex()
		}
		return nil
	}, common.Address{})
	return v
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid multicall config: %w", err)
	}
	return nil
}

// GenerationAt returns the batching contract generation deployed at blockNumber.
func (c Config) GenerationAt(blockNumber uint64) Generation {
	switch {
	case blockNumber < c.V1Block:
		return GenerationNone
	case blockNumber < c.V2Block:
		return GenerationV1
	default:
		return GenerationV2
	}
}
