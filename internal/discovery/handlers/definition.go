package handlers

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"discoveryScope/internal/discovery"
)

// DefaultMaxLength bounds how many items an array handler reads.
const DefaultMaxLength = 100

// Definition is the configured form of a field handler.
type Definition struct {
	Type         string        `yaml:"type" validate:"required,oneof=call array storage"`
	Method       string        `yaml:"method" validate:"required_unless=Type storage"`
	Args         []interface{} `yaml:"args"`
	ExpectRevert bool          `yaml:"expectRevert"`
	Expand       bool          `yaml:"expand"`
	Length       interface{}   `yaml:"length"`
	MaxLength    int           `yaml:"maxLength" validate:"gte=0"`
	Indices      []int         `yaml:"indices" validate:"omitempty,dive,gte=0"`
	Slot         interface{}   `yaml:"slot"`
	Offset       int           `yaml:"offset" validate:"gte=0"`
	ReturnType   string        `yaml:"returnType" validate:"omitempty,oneof=address uint bytes"`
}

var definitionValidator = validator.New()

// Validate checks the definition's shape.
func (d Definition) Validate() error {
	return definitionValidator.Struct(d)
}

// FromDefinition builds the handler for field described by def.
func FromDefinition(field string, def Definition) (discovery.Handler, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("field %q: %w", field, err)
	}
	switch def.Type {
	case "call":
		return NewCallHandler(field, def)
	case "array":
		return NewArrayHandler(field, def)
	case "storage":
		return NewStorageHandler(field, def)
	default:
		return nil, fmt.Errorf("field %q: unknown handler type %q", field, def.Type)
	}
}
