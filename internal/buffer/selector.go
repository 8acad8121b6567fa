// Package buffer manages the emergency inventory of pre-rendered videos:
// candidate selection, claim-and-publish deployment, inventory health, and
// retention archiving.
package buffer

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/zerodaily/nexus/internal/pipeline/core"
	"github.com/zerodaily/nexus/internal/store"
)

// Selector picks the next buffer video to ship.
type Selector struct {
	buffers *store.BufferStore
}

// NewSelector creates a Selector over the buffer inventory.
func NewSelector(buffers *store.BufferStore) *Selector {
	return &Selector{buffers: buffers}
}

// Select returns the deployable buffer with the fewest prior deployments,
// oldest first on ties, along with the version token needed to claim it.
// An empty inventory is a CRITICAL failure: the date ships nothing.
func (s *Selector) Select(ctx context.Context) (*store.VersionedBuffer, error) {
	candidates, err := s.buffers.ListDeployable(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing deployable buffers: %w", err)
	}
	if len(candidates) == 0 {
		return nil, core.NewCritical(core.CodeBufferExhausted,
			"no buffer videos available for deployment", nil)
	}
	slices.SortStableFunc(candidates, func(a, b store.VersionedBuffer) int {
		if c := cmp.Compare(a.Buffer.DeploymentCount, b.Buffer.DeploymentCount); c != 0 {
			return c
		}
		return a.Buffer.CreatedDate.Compare(b.Buffer.CreatedDate)
	})
	return &candidates[0], nil
}
