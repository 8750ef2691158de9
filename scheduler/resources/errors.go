package resources

import (
	"fmt"
	"strings"
)

// ShortfallError means no node can ever provide what an item asks for.
// It is final for the item.
type ShortfallError struct {
	// Dimensions are the deficient resources, e.g. domain.DimCPUCores.
	Dimensions []string
	Details    []string
}

func (e *ShortfallError) Error() string {
	return "not enough resources: " + strings.Join(e.Details, "; ")
}

func (e *ShortfallError) add(dim, format string, args ...interface{}) {
	for _, d := range e.Dimensions {
		if d == dim {
			e.Details = append(e.Details, fmt.Sprintf(format, args...))
			return
		}
	}
	e.Dimensions = append(e.Dimensions, dim)
	e.Details = append(e.Details, fmt.Sprintf(format, args...))
}

func (e *ShortfallError) empty() bool {
	return len(e.Details) == 0
}

// InvariantError is what the manager panics with when its bookkeeping is
// misused: double claims, releases without a claim, over-capacity claims.
type InvariantError struct {
	msg string
}

func (e *InvariantError) Error() string {
	return "resource invariant violated: " + e.msg
}

func violation(format string, args ...interface{}) {
	panic(&InvariantError{msg: fmt.Sprintf(format, args...)})
}
