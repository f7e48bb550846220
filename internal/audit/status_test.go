package audit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransition_ForwardOnly(t *testing.T) {
	t.Parallel()

	require.True(t, CanTransition(StatusQueued, StatusInProgress))
	require.True(t, CanTransition(StatusInProgress, StatusProcessing))
	require.True(t, CanTransition(StatusProcessing, StatusCompleted))
	require.True(t, CanTransition(StatusInProgress, StatusCompleted))
	require.True(t, CanTransition(StatusQueued, StatusFailed))

	require.False(t, CanTransition(StatusProcessing, StatusInProgress))
	require.False(t, CanTransition(StatusInProgress, StatusQueued))
	require.False(t, CanTransition(Status("bogus"), StatusCompleted))
}

func TestCanTransition_TerminalStatesAreFinal(t *testing.T) {
	t.Parallel()

	for _, terminal := range []Status{StatusCompleted, StatusFailed} {
		for _, next := range allStatuses {
			if next == terminal {
				require.True(t, CanTransition(terminal, next), "rewrite of %s", terminal)
				continue
			}
			require.False(t, CanTransition(terminal, next), "%s -> %s", terminal, next)
		}
	}
}

func TestPredecessors(t *testing.T) {
	t.Parallel()

	require.ElementsMatch(t,
		[]Status{StatusQueued, StatusInProgress, StatusProcessing, StatusCompleted},
		Predecessors(StatusCompleted),
	)
	require.Equal(t, []Status{StatusQueued}, Predecessors(StatusQueued))
}
