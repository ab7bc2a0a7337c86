package action

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewDelayAction())
	registry.Register(NewConditionalAction())

	act, ok := registry.Get(ACTION_TYPE_DELAY)
	require.True(t, ok)
	require.Equal(t, ACTION_TYPE_DELAY, act.GetName())

	_, ok = registry.Get("NO_SUCH_TYPE")
	require.False(t, ok)

	require.ElementsMatch(t, []string{ACTION_TYPE_DELAY, ACTION_TYPE_CONDITIONAL}, registry.Types())
}

func TestNumberParam(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"test float": func(t *testing.T) {
			v, ok := numberParam(map[string]any{"n": 1.5}, "n")
			require.True(t, ok)
			require.Equal(t, 1.5, v)
		},
		"test int": func(t *testing.T) {
			v, ok := numberParam(map[string]any{"n": 3}, "n")
			require.True(t, ok)
			require.Equal(t, 3.0, v)
		},
		"test numeric string": func(t *testing.T) {
			v, ok := numberParam(map[string]any{"n": "250"}, "n")
			require.True(t, ok)
			require.Equal(t, 250.0, v)
		},
		"test non numeric string": func(t *testing.T) {
			_, ok := numberParam(map[string]any{"n": "{user.count}"}, "n")
			require.False(t, ok)
		},
		"test missing": func(t *testing.T) {
			_, ok := numberParam(map[string]any{}, "n")
			require.False(t, ok)
		},
	} {
		t.Run(scenario, fn)
	}
}
