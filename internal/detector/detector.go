// Package detector finds the processes bound to a TCP port.
package detector

import (
	"context"
	"fmt"
	"slices"
)

// PortDetector lists the PIDs holding a TCP port. Implementations must be
// safe for concurrent use.
type PortDetector interface {
	// PIDs returns the unique PIDs bound to port in ascending order.
	PIDs(ctx context.Context, port int) ([]int, error)
	// Describe returns a human-readable description of the detection method.
	Describe() string
}

const (
	KindNet  = "net"
	KindLsof = "lsof"
)

// New returns the detector registered under kind.
func New(kind string, lsof LsofDetector) (PortDetector, error) {
	switch kind {
	case "", KindNet:
		return NetDetector{}, nil
	case KindLsof:
		return lsof, nil
	default:
		return nil, fmt.Errorf("unknown port detector %q", kind)
	}
}

func uniqueSorted(pids []int) []int {
	slices.Sort(pids)
	return slices.Compact(pids)
}
