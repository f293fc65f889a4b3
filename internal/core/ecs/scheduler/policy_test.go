package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"simkernel/internal/core/ecs"
)

func TestPolicy_ValidateAcceptsOnlyTheThreeLegalCombinations(t *testing.T) {
	legal := []Policy{
		{Mode: ecs.Sync, DataStrategy: ecs.DirectStrategy},
		{Mode: ecs.FrameSynced, DataStrategy: ecs.GDBStrategy},
		{Mode: ecs.Async, DataStrategy: ecs.SoDStrategy},
	}
	for _, p := range legal {
		p := p
		require.NoError(t, p.Validate())
	}

	illegal := []Policy{
		{Mode: ecs.Sync, DataStrategy: ecs.GDBStrategy},
		{Mode: ecs.FrameSynced, DataStrategy: ecs.SoDStrategy},
		{Mode: ecs.Async, DataStrategy: ecs.DirectStrategy},
	}
	for _, p := range illegal {
		p := p
		err := p.Validate()
		require.Error(t, err)
		code, ok := ecs.Code(err)
		require.True(t, ok)
		require.Equal(t, ecs.CodeIllegalPolicyCombination, code)
	}
}

func TestPolicy_ValidateFillsDefaults(t *testing.T) {
	p := Policy{Mode: ecs.Sync, DataStrategy: ecs.DirectStrategy}
	require.NoError(t, p.Validate())
	require.Equal(t, 16, p.MaxRuntimeMs)
	require.Equal(t, 3, p.FailureThreshold)
	require.Equal(t, 1000, p.ResetTimeoutMs)
}
