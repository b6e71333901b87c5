package ssaflow

import (
	"fmt"
	"go/token"
)

// InconsistencyError reports a violation of the Graph Adapter contract:
// malformed CFG or dominator input, a non-capturing use that no definition
// dominates, or a phi predecessor edge with no resolvable definition.
//
// It is fatal to the analysis of the unit. The engine never patches over it,
// because a wrong phi-input set would silently corrupt every downstream
// def-use edge.
type InconsistencyError struct {
	Unit   string
	Reason string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("ssaflow: inconsistent input for %s: %s", e.Unit, e.Reason)
}

// IncompleteReason says why a name is excluded from SSA construction.
type IncompleteReason int

const (
	// IncompleteGlobal marks a package-level variable. Globals are handled
	// flow-insensitively by the surrounding system.
	IncompleteGlobal IncompleteReason = iota
	// IncompleteField marks a struct field access. Heap and object-field
	// modeling is out of scope.
	IncompleteField
	// IncompleteEscaped marks a variable whose address is taken; its value
	// can change through the pointer, so SSA over it would be unsound.
	IncompleteEscaped
)

func (r IncompleteReason) String() string {
	switch r {
	case IncompleteGlobal:
		return "global"
	case IncompleteField:
		return "field"
	case IncompleteEscaped:
		return "escaped"
	}
	return "unknown"
}

// Incomplete marks a name for which no SSA result exists by design, as
// opposed to by failure. Callers can distinguish "out of scope" from
// "definitely no flow" through these markers.
type Incomplete struct {
	Name   string
	Reason IncompleteReason
	Pos    token.Pos
}

func (i Incomplete) String() string {
	return fmt.Sprintf("%s (%s)", i.Name, i.Reason)
}
