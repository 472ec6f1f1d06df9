// Package layers implements the decorator middleware that wraps a backend
// with cross-cutting behavior. A layer is a transformation from one
// capability-contract implementation to another with the same shape: it
// intercepts the operations it cares about and forwards the rest untouched.
//
// Layers receive only the inner accessor, never global state, so any layer
// works at any position in the stack and is testable against a mock inner
// backend. Order still matters to observable behavior: retry outside logging
// logs every attempt, retry inside logging logs once per call.
package layers

import "github.com/unistore/unistore/pkg/accessor"

// Layer wraps one accessor and produces another with the same contract.
// Implementations must not retain mutable state shared between calls except
// through explicitly thread-safe collaborators injected at construction.
type Layer interface {
	Wrap(inner accessor.Accessor) accessor.Accessor
}

// Apply folds an ordered list of layers around base. The first layer in the
// list ends up innermost, so Apply(b, l1, l2) serves calls through
// l2(l1(b)).
func Apply(base accessor.Accessor, ls ...Layer) accessor.Accessor {
	acc := base
	for _, l := range ls {
		acc = l.Wrap(acc)
	}
	return acc
}
