package httpserver

import (
	"context"

	"github.com/milad/metermon/internal/domain"
)

// StateReader is the small subset of the monitor we need, to keep tests
// simple. Both the in-process monitor and the gRPC client satisfy it.
type StateReader interface {
	State(ctx context.Context) (domain.Snapshot, error)
}
