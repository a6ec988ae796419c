package model

import (
	"errors"
	"fmt"
)

var ErrMissingIdentity = errors.New("missing event identity")

// MalformedUpdateError descreve uma mensagem do canal que foi descartada.
// Nunca é fatal: a mensagem é registrada em log e o processamento continua.
type MalformedUpdateError struct {
	Kind string // evento do canal (batch_update, shard_data, ...)
	Err  error
}

func (e *MalformedUpdateError) Error() string {
	return fmt.Sprintf("malformed %s: %v", e.Kind, e.Err)
}

func (e *MalformedUpdateError) Unwrap() error { return e.Err }

// Malformed embrulha err como MalformedUpdateError
func Malformed(kind string, err error) error {
	return &MalformedUpdateError{Kind: kind, Err: err}
}
