package supervisor

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePortFallsBackOnInvalidValues(t *testing.T) {
	require.Equal(t, 8090, ResolvePort(0))
	require.Equal(t, 8090, ResolvePort(-1))
	require.Equal(t, 8090, ResolvePort(70000))
	require.Equal(t, 9000, ResolvePort(9000))
}

func TestResolveWorkersFallsBackOnNonPositive(t *testing.T) {
	require.Equal(t, runtime.NumCPU(), ResolveWorkers(0))
	require.Equal(t, runtime.NumCPU(), ResolveWorkers(-5))
}

func TestResolveWorkersKeepsSmallPositiveValue(t *testing.T) {
	require.Equal(t, 2, ResolveWorkers(2))
}
