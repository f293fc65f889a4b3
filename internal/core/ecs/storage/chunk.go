package storage

import "simkernel/internal/core/ecs"

// chunk is the unit of version stamping: a fixed-size array of slots plus
// one version counter, bumped on any write into the chunk (spec.md §4.2).
// Slot storage is allocated lazily on first write to keep unused chunks
// cheap, matching the teacher's memory-pool warm-growth philosophy.
type chunk struct {
	version ecs.GlobalVersion
	slots   []any
}

func newChunk(size int) *chunk {
	return &chunk{slots: make([]any, size)}
}

func (c *chunk) touch(v ecs.GlobalVersion) {
	c.version = v
}
