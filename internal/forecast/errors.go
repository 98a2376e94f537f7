package forecast

import "errors"

// MinPoints is the hard floor for the regression window. Series shorter than
// this cannot be estimated by either path.
const MinPoints = 10

// ErrInsufficientData is returned when a price series has fewer than
// MinPoints points. It is the only error the engine surfaces to callers;
// faults inside the hybrid path are resolved internally by falling back to
// the fast estimate.
var ErrInsufficientData = errors.New("insufficient data for prediction")

// ErrDeadlineExceeded is returned by RunWithTimeout when the wrapped
// computation does not finish inside its budget. The late result, if any, is
// discarded.
var ErrDeadlineExceeded = errors.New("estimation deadline exceeded")
