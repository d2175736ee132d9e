package domain

import "fmt"

// NotFoundError is returned when reference validation fails within linking
// helpers. Plain lookups report absence through a boolean instead.
type NotFoundError struct {
	Type RecordType
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Type, e.ID)
}

// InvalidKindError reports a record of the wrong kind passed to a linking
// call. This is a programmer error: callers must not retry, and no part of
// the mutation is applied.
type InvalidKindError struct {
	Arg  string
	Kind ItemKind
}

func (e InvalidKindError) Error() string {
	return fmt.Sprintf("argument %q is of the wrong kind: %s", e.Arg, e.Kind)
}
