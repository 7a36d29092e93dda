package booster

import "errors"

// Sentinel errors of the engine. Call sites wrap these with positional
// detail, so match with errors.Is rather than equality.
var (
	// ErrFormat reports a malformed or incomplete serialized model:
	// required fields absent, per-tree parallel arrays of inconsistent
	// length, or indices out of range.
	ErrFormat = errors.New("malformed model document")

	// ErrUnsupportedObjective reports a recognized learning objective the
	// engine refuses to guess a computation for.
	ErrUnsupportedObjective = errors.New("unsupported learning objective")

	// ErrCorruptTree reports a walk that exceeded the tree's node count
	// without reaching a leaf, meaning the child indices form a cycle.
	ErrCorruptTree = errors.New("corrupt tree")

	// ErrLoadIO reports an artifact that could not be fetched.
	ErrLoadIO = errors.New("model artifact fetch failed")

	// ErrLoadTimeout reports an artifact load that exceeded its deadline.
	ErrLoadTimeout = errors.New("model load timed out")
)
