package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"discoveryScope/internal/codec"
	"discoveryScope/internal/model"
	"discoveryScope/internal/multicall"
)

// ErrStorageUnavailable is returned by Provider.StorageAt when the engine
// was built without a storage reader.
var ErrStorageUnavailable = errors.New("storage reads are not available")

// DuplicateFieldError reports a field name declared more than once.
type DuplicateFieldError struct {
	Field string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("field %q is declared more than once", e.Field)
}

// DependencyCycleError reports a dependency that would close a cycle.
type DependencyCycleError struct {
	Field      string
	Dependency string
}

func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("dependency cycle: field %q depends on %q", e.Field, e.Dependency)
}

// UnknownDependencyError reports a dependency on a field no handler declares.
type UnknownDependencyError struct {
	Field      string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("field %q depends on unknown field %q", e.Field, e.Dependency)
}

// UndeclaredDependencyError is returned when a handler reads a field it did
// not declare as a dependency.
type UndeclaredDependencyError struct {
	Field      string
	Dependency string
}

func (e *UndeclaredDependencyError) Error() string {
	return fmt.Sprintf("field %q did not declare dependency %q", e.Field, e.Dependency)
}

// RevertedError reports a call that reverted or returned no data.
type RevertedError struct {
	Target common.Address
	Method string
}

func (e *RevertedError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("call to %s reverted", e.Target.Hex())
	}
	return fmt.Sprintf("call %s on %s reverted", e.Method, e.Target.Hex())
}

// DependencyFailedError is recorded for a field that was skipped because a
// field it depends on failed.
type DependencyFailedError struct {
	Field      string
	Dependency string
}

func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("dependency %q of %q failed", e.Dependency, e.Field)
}

// CancelledError is recorded for a field that did not complete before the
// run was cancelled.
type CancelledError struct {
	Field string
	Err   error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("field %q cancelled: %v", e.Field, e.Err)
}

func (e *CancelledError) Unwrap() error {
	return e.Err
}

func isTransport(err error) bool {
	var transportErr *multicall.TransportError
	return errors.As(err, &transportErr)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// fieldError classifies a handler failure into the recorded error kind.
func fieldError(err error) *model.FieldError {
	var (
		reverted  *RevertedError
		decodeErr *codec.DecodeError
		depErr    *DependencyFailedError
		cancelErr *CancelledError
	)
	kind := model.ErrorKindHandler
	switch {
	case errors.As(err, &cancelErr):
		kind = model.ErrorKindCancelled
	case errors.As(err, &depErr):
		kind = model.ErrorKindDependencyFailed
	case errors.As(err, &reverted):
		kind = model.ErrorKindReverted
	case errors.As(err, &decodeErr):
		kind = model.ErrorKindDecode
	}
	return &model.FieldError{Kind: kind, Message: err.Error()}
}
