package model

// FieldRecord is the row form of a discovered field, keyed by
// (chain, address, block, field).
type FieldRecord struct {
	ChainID      uint64 `json:"chain_id"`
	Name         string `json:"name,omitempty"`
	Address      string `json:"address"`
	BlockNumber  uint64 `json:"block_number"`
	Field        string `json:"field"`
	Value        string `json:"value,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}
