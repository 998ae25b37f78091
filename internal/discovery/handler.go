// Package discovery resolves the fields of a contract at a pinned block by
// running field handlers in dependency order.
package discovery

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"discoveryScope/internal/model"
)

// Handler knows how to obtain one field of a contract. Handlers carry no
// per-run state and are shared across runs.
type Handler interface {
	Field() string
	Dependencies() []string
	Execute(ctx context.Context, p Provider, address common.Address) (Result, error)
}

// MultiFieldHandler is a Handler that also contributes extra named fields,
// e.g. a struct return unpacked into one field per component.
type MultiFieldHandler interface {
	Handler
	Produces() []string
}

// Result is what a handler contributes to a snapshot: its own field value
// and, for multi-field handlers, the extra fields it declared.
type Result struct {
	Value model.Value
	Extra map[string]model.Value
}

func producedFields(h Handler) []string {
	if m, ok := h.(MultiFieldHandler); ok {
		return m.Produces()
	}
	return nil
}
