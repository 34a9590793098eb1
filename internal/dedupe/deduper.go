package dedupe

import "context"

// Deduper remembers the ids of events that were already committed (redis, in-memory, bloom, etc.)
type Deduper interface {
	// Contains=true -> the event was committed before, processing can be skipped
	Contains(ctx context.Context, id string) (bool, error)
	// Add is called only after the event's writes were committed
	Add(ctx context.Context, id string) error
}

// Noop never reports a duplicate. Used when dedupe.backend=none.
type Noop struct{}

func (Noop) Contains(context.Context, string) (bool, error) { return false, nil }
func (Noop) Add(context.Context, string) error              { return nil }

var (
	_ Deduper = Noop{}
	_ Deduper = (*MemoryDedupe)(nil)
)
