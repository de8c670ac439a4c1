//go:build !linux

package audioio

import (
	"fmt"
	"log/slog"
)

func newArecordSource(cfg Config, logger *slog.Logger) (Source, error) {
	return nil, fmt.Errorf("%w: arecord requires linux", ErrUnavailable)
}
