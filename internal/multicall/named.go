package multicall

import (
	"context"
	"sort"
)

// MulticallNamed is Multicall keyed by caller-chosen names. Requests are
// issued in sorted name order.
func (c *Client) MulticallNamed(ctx context.Context, requests map[string]Request, blockNumber uint64) (map[string]Response, error) {
	names := make([]string, 0, len(requests))
	for name := range requests {
		names = append(names, name)
	}
	sort.Strings(names)

	ordered := make([]Request, len(names))
	for i, name := range names {
		ordered[i] = requests[name]
	}
	responses, err := c.Multicall(ctx, ordered, blockNumber)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Response, len(names))
	for i, name := range names {
		out[name] = responses[i]
	}
	return out, nil
}
