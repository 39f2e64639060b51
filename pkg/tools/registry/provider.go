// Package registry assembles capability sets into the immutable name to
// capability map consulted by the dispatcher and rendered into the tools
// field of every completion request.
//
// A set contributes capabilities through tools.Set. Sets may additionally
// implement CollectorSet to expose Prometheus collectors, and io.Closer to
// release connections when the registry is closed.
package registry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CollectorSet is implemented by capability sets that export their own
// metrics. The registry registers the collectors once, at build time.
type CollectorSet interface {
	Collectors() []prometheus.Collector
}

// ErrDuplicateCapability is wrapped by DuplicateCapabilityError.
var ErrDuplicateCapability = errors.New("duplicate capability name")

// DuplicateCapabilityError names the capability and both sets claiming it.
type DuplicateCapabilityError struct {
	Name   string
	First  string
	Second string
}

func (e *DuplicateCapabilityError) Error() string {
	return fmt.Sprintf("%s %q: registered by %q and %q", ErrDuplicateCapability, e.Name, e.First, e.Second)
}

func (e *DuplicateCapabilityError) Unwrap() error { return ErrDuplicateCapability }
