package model

// BlockNumberRecord maps a unix timestamp to the last block at or before it.
type BlockNumberRecord struct {
	Timestamp   uint64 `json:"timestamp"`
	BlockNumber uint64 `json:"block_number"`
}
