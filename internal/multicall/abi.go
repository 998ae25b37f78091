package multicall

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const multicallABIJSON = `[
  {
    "inputs": [
      {
        "components": [
          {"internalType": "address", "name": "target", "type": "address"},
          {"internalType": "bytes", "name": "callData", "type": "bytes"}
        ],
        "internalType": "struct Multicall.Call[]",
        "name": "calls",
        "type": "tuple[]"
      }
    ],
    "name": "aggregate",
    "outputs": [
      {"internalType": "uint256", "name": "blockNumber", "type": "uint256"},
      {"internalType": "bytes[]", "name": "returnData", "type": "bytes[]"}
    ],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bool", "name": "requireSuccess", "type": "bool"},
      {
        "components": [
          {"internalType": "address", "name": "target", "type": "address"},
          {"internalType": "bytes", "name": "callData", "type": "bytes"}
        ],
        "internalType": "struct Multicall2.Call[]",
        "name": "calls",
        "type": "tuple[]"
      }
    ],
    "name": "tryAggregate",
    "outputs": [
      {
        "components": [
          {"internalType": "bool", "name": "success", "type": "bool"},
          {"internalType": "bytes", "name": "returnData", "type": "bytes"}
        ],
        "internalType": "struct Multicall2.Result[]",
        "name": "returnData",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

var (
	multicallABI     abi.ABI
	multicallABIErr  error
	multicallABIOnce sync.Once
)

// MulticallABI returns the parsed aggregate/tryAggregate ABI.
func MulticallABI() (abi.ABI, error) {
	multicallABIOnce.Do(func() {
		multicallABI, multicallABIErr = abi.JSON(strings.NewReader(multicallABIJSON))
	})
	return multicallABI, multicallABIErr
}

// call mirrors the (address target, bytes callData) tuple.
type call struct {
	Target   common.Address `json:"target"`
	CallData []byte         `json:"callData"`
}

// tryResult mirrors the (bool success, bytes returnData) tuple.
type tryResult struct {
	Success    bool   `json:"success"`
	ReturnData []byte `json:"returnData"`
}

func toCalls(requests []Request) []call {
	calls := make([]call, len(requests))
	for i, req := range requests {
		calls[i] = call{Target: req.Target, CallData: req.Data}
	}
	return calls
}

func encodeAggregate(requests []Request) ([]byte, error) {
	parsed, err := MulticallABI()
	if err != nil {
		return nil, err
	}
	return parsed.Pack("aggregate", toCalls(requests))
}

func encodeTryAggregate(requests []Request) ([]byte, error) {
	parsed, err := MulticallABI()
	if err != nil {
		return nil, err
	}
	return parsed.Pack("tryAggregate", false, toCalls(requests))
}

func decodeAggregate(data []byte) ([][]byte, error) {
	parsed, err := MulticallABI()
	if err != nil {
		return nil, err
	}
	values, err := parsed.Unpack("aggregate", data)
	if err != nil {
		return nil, fmt.Errorf("unpack aggregate: %w", err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unpack aggregate: expected 2 outputs, got %d", len(values))
	}
	returnData, ok := values[1].([][]byte)
	if !ok {
		return nil, fmt.Errorf("unpack aggregate: unexpected return data type %T", values[1])
	}
	return returnData, nil
}

func decodeTryAggregate(data []byte) ([]tryResult, error) {
	parsed, err := MulticallABI()
	if err != nil {
		return nil, err
	}
	values, err := parsed.Unpack("tryAggregate", data)
	if err != nil {
		return nil, fmt.Errorf("unpack tryAggregate: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unpack tryAggregate: expected 1 output, got %d", len(values))
	}
	results, ok := abi.ConvertType(values[0], new([]tryResult)).(*[]tryResult)
	if !ok {
		return nil, fmt.Errorf("unpack tryAggregate: unexpected return data type %T", values[0])
	}
	return *results, nil
}
