package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingArgument is returned by Arg when the request has too few arguments.
var ErrMissingArgument = errors.New("rpc: missing argument")

// Arg decodes the i-th positional argument into v.
func Arg(args []json.RawMessage, i int, v any) error {
	if i >= len(args) {
		return fmt.Errorf("%w %d", ErrMissingArgument, i)
	}
	if err := json.Unmarshal(args[i], v); err != nil {
		return fmt.Errorf("rpc: argument %d: %w", i, err)
	}
	return nil
}
