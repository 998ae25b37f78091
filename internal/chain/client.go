package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// revertCode is the JSON-RPC error code geth uses for reverted calls.
const revertCode = 3

// Client wraps go-ethereum RPC and provides helper methods.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		tsCache:   make(map[uint64]uint64),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	id, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// HeaderByNumber returns the block header by number.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.ethClient.HeaderByNumber(ctx, number)
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	ts = header.Time
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

// BlockNumberAtOrBefore returns the last block whose timestamp is not after
// timestamp.
func (c *Client) BlockNumberAtOrBefore(ctx context.Context, timestamp uint64) (uint64, error) {
	latest, err := c.LatestBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	return searchBlock(ctx, 0, latest, timestamp, c.BlockTimestamp)
}

// CallContract performs an eth_call. A reverted call returns empty bytes and
// a nil error.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	out, err := c.ethClient.CallContract(ctx, msg, blockNumber)
	if err != nil {
		if isRevert(err) {
			return []byte{}, nil
		}
		return nil, err
	}
	return out, nil
}

// StorageAt reads one storage word of account.
func (c *Client) StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.StorageAt(ctx, account, key, blockNumber)
}

var revertMessages = []string{
	"execution reverted",
	"invalid opcode",
	"invalid jump destination",
	"out of gas",
	"stack underflow",
}

func isRevert(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertCode {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range revertMessages {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

type timestampFunc func(ctx context.Context, number uint64) (uint64, error)

func searchBlock(ctx context.Context, low, high, target uint64, blockTime timestampFunc) (uint64, error) {
	first, err := blockTime(ctx, low)
	if err != nil {
		return 0, err
	}
	if first > target {
		return 0, fmt.Errorf("timestamp %d is before block %d", target, low)
	}
	last, err := blockTime(ctx, high)
	if err != nil {
		return 0, err
	}
	if last <= target {
		return high, nil
	}

	// Invariant: time(low) <= target < time(high).
	for high-low > 1 {
		mid := low + (high-low)/2
		ts, err := blockTime(ctx, mid)
		if err != nil {
			return 0, err
		}
		if ts <= target {
			low = mid
		} else {
			high = mid
		}
	}
	return low, nil
}
