package state

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("element not found")
	ErrIndexOutOfBounds = errors.New("index out of bounds")
	ErrNotSerializable  = errors.New("value is not serializable")
	ErrUnknownField     = errors.New("unknown field")
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrNoFactory        = errors.New("list has no element factory")
)

// DeserializeError reports where in a nested mapping a restore failed.
type DeserializeError struct {
	Path []string
	Err  error
}

func (e *DeserializeError) Error() string {
	return fmt.Sprintf("deserialize %s: %v", strings.Join(e.Path, "."), e.Err)
}

func (e *DeserializeError) Unwrap() error {
	return e.Err
}

func wrapDeserialize(name string, err error) error {
	var de *DeserializeError
	if errors.As(err, &de) {
		return &DeserializeError{Path: append([]string{name}, de.Path...), Err: de.Err}
	}
	return &DeserializeError{Path: []string{name}, Err: err}
}
