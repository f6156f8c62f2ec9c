package simulator

import (
	"context"
	"fmt"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

// forkAllocator is the subset of the sandbox client the retry wrapper needs.
type forkAllocator interface {
	CreateFork(ctx context.Context) (domain.SandboxHandle, error)
}

// runWithRetry invokes produce once against existingForkID (empty means an
// ephemeral backend-chosen sandbox). If that attempt fails for any reason it
// allocates exactly one brand-new sandbox and invokes produce once more
// against it. A second failure propagates as-is; there is no third attempt,
// which bounds the cost of a systemically broken backend to one extra
// sandbox per transfer.
func runWithRetry[T any](ctx context.Context, forks forkAllocator, existingForkID string, produce func(ctx context.Context, forkID string) (T, error)) (T, error) {
	out, err := produce(ctx, existingForkID)
	if err == nil {
		return out, nil
	}

	var zero T

	fork, forkErr := forks.CreateFork(ctx)
	if forkErr != nil {
		return zero, fmt.Errorf("simulator: retry fork allocation: %w", forkErr)
	}

	out, err = produce(ctx, fork.ID)
	if err != nil {
		return zero, err
	}
	return out, nil
}
