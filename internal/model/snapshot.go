package model

import "sort"

// Value is a decoded field value in its canonical JSON form: string, bool,
// []Value or map[string]Value. Integers and addresses are strings.
type Value = interface{}

// ErrorKind classifies why a field has no value.
type ErrorKind string

const (
	ErrorKindHandler          ErrorKind = "handler"
	ErrorKindReverted         ErrorKind = "reverted"
	ErrorKindDecode           ErrorKind = "decode"
	ErrorKindDependencyFailed ErrorKind = "dependency_failed"
	ErrorKindCancelled        ErrorKind = "cancelled"
)

// FieldError is the recorded failure of a single field.
type FieldError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *FieldError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// FieldResult is the outcome of one field: a value or an error.
type FieldResult struct {
	Field string      `json:"field"`
	Value Value       `json:"value,omitempty"`
	Error *FieldError `json:"error,omitempty"`
}

// Failed reports whether the field carries an error.
func (r FieldResult) Failed() bool {
	return r.Error != nil
}

// Snapshot is the discovered state of one contract at one block.
type Snapshot struct {
	ChainID     uint64                 `json:"chain_id"`
	Name        string                 `json:"name,omitempty"`
	Address     string                 `json:"address"`
	BlockNumber uint64                 `json:"block_number"`
	Fields      map[string]FieldResult `json:"fields"`
}

// FieldNames returns the snapshot's field names in sorted order.
func (s Snapshot) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FailedFields returns the sorted names of fields that carry an error.
func (s Snapshot) FailedFields() []string {
	failed := make([]string, 0)
	for _, name := range s.FieldNames() {
		if s.Fields[name].Failed() {
			failed = append(failed, name)
		}
	}
	return failed
}
