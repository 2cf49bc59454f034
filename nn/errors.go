package nn

import "github.com/pkg/errors"

// Configuration and shape errors returned by the network. They are wrapped with context at the
// call site, so compare with errors.Is or errors.Cause.
var (
	ErrInvalidTopology     = errors.New("invalid network topology")
	ErrInvalidActivation   = errors.New("invalid activation kind")
	ErrInvalidCost         = errors.New("invalid cost kind")
	ErrShapeMismatch       = errors.New("vector length does not match layer size")
	ErrInvalidBatchSize    = errors.New("batch size must be positive")
	ErrInvalidTrainingSize = errors.New("training set size must be positive")
	ErrInvalidDropout      = errors.New("invalid dropout probability")
	ErrNonFinite           = errors.New("non-finite weight")
)
