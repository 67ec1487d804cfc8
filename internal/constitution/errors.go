package constitution

import "fmt"

// ViolationKind classifies a constitutional rejection. Kinds map to
// stable reason codes surfaced to callers.
type ViolationKind string

const (
	// KindPrimeDirective marks harm-heuristic violations.
	KindPrimeDirective ViolationKind = "prime_directive_violation"

	// KindProhibited marks operations on the prohibited list.
	KindProhibited ViolationKind = "prohibited_operation"

	// KindConstraint marks generic constraint violations.
	KindConstraint ViolationKind = "constitutional_violation"

	// KindIntegrity marks an immutability fingerprint mismatch. Fatal
	// to the operation and logged at the highest severity.
	KindIntegrity ViolationKind = "constitution_integrity"
)

// ViolationError is a policy-level rejection carrying the specific
// rule so callers can explain it; never silently swallowed.
type ViolationError struct {
	// Kind classifies the violation.
	Kind ViolationKind

	// Article is the constraint article that was violated, if any.
	Article string

	// Detail is the human-readable explanation.
	Detail string
}

func (e *ViolationError) Error() string {
	if e.Article != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Article, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Is makes errors.Is match on the kind via the sentinel values below.
func (e *ViolationError) Is(target error) bool {
	other, ok := target.(*ViolationError)
	if !ok {
		return false
	}
	return other.Kind == e.Kind && other.Article == "" && other.Detail == ""
}

// Sentinels for errors.Is matching by kind.
var (
	ErrPrimeDirective = &ViolationError{Kind: KindPrimeDirective}
	ErrProhibited     = &ViolationError{Kind: KindProhibited}
	ErrConstraint     = &ViolationError{Kind: KindConstraint}
	ErrIntegrity      = &ViolationError{Kind: KindIntegrity}
)
