// Package apierr defines the error taxonomy surfaced by the query engine.
// Every failure that crosses a component boundary is wrapped with a Kind so
// the dispatcher can map it onto the response envelope without string
// matching. Cancellation is never represented here: context errors pass
// through untouched.
package apierr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation           Kind = "validation"
	KindEmbeddingUnavailable Kind = "embedding_unavailable"
	KindGraphTransient       Kind = "graph_transient"
	KindGraphUnavailable     Kind = "graph_unavailable"
	KindLLMUnavailable       Kind = "llm_unavailable"
	KindTimeout              Kind = "timeout"
	KindNoEvidence           Kind = "no_evidence"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the taxonomy kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
