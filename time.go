package guard

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// IsOutsideThresholdPeriod reports whether more than the given window (a
// time.Duration string like "24h") has passed since the reference time.
func IsOutsideThresholdPeriod(since time.Time, window string) (bool, error) {
	d, err := time.ParseDuration(window)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid threshold period").
			WithMetadata(map[string]any{"window": window})
	}
	return time.Since(since) > d, nil
}
