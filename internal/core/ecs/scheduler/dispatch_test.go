package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"simkernel/internal/core/ecs"
)

func TestRunWithZombieTolerance_ReturnsFnResultWhenFast(t *testing.T) {
	boom := errors.New("boom")
	err := runWithZombieTolerance(50*time.Millisecond, func() error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestRunWithZombieTolerance_TimesOutOnSlowFn(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	err := runWithZombieTolerance(5*time.Millisecond, func() error {
		<-release
		return nil
	})
	require.ErrorIs(t, err, ecs.ErrModuleTimeout)
}
