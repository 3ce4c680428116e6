package veri

import (
	"fmt"

	"ruleveri/internal/sexp"
)

// ConfigError is a malformed specification or rule, fatal to the unit
// that touches it.
type ConfigError struct {
	Pos sexp.Pos
	Msg string
}

func (e *ConfigError) Error() string {
	if e.Pos.Line == 0 {
		return "configuration error: " + e.Msg
	}
	return fmt.Sprintf("%s: configuration error: %s", e.Pos, e.Msg)
}

// EncodingError is an expression the encoder cannot translate.
type EncodingError struct {
	Pos sexp.Pos
	Msg string
}

func (e *EncodingError) Error() string {
	if e.Pos.Line == 0 {
		return "encoding error: " + e.Msg
	}
	return fmt.Sprintf("%s: encoding error: %s", e.Pos, e.Msg)
}

func configErrorf(pos sexp.Pos, format string, args ...interface{}) error {
	return &ConfigError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func encodingErrorf(pos sexp.Pos, format string, args ...interface{}) error {
	return &EncodingError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
