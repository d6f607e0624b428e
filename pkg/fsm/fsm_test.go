package fsm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type light int

const (
	red light = iota
	green
	amber
	broken
)

func (l light) String() string {
	return [...]string{"red", "green", "amber", "broken"}[l]
}

var lights = []light{red, green, amber, broken}

// paths from red to every state
var paths = map[light][]light{
	red:    nil,
	green:  {green},
	amber:  {green, amber},
	broken: {broken},
}

func trafficTable() fsm.Table[light] {
	return fsm.Table[light]{
		red:    {green, broken},
		green:  {amber, broken},
		amber:  {red, broken},
		broken: {red},
	}
}

func TestMachine_TransitionFollowsTable(t *testing.T) {
	table := trafficTable()

	for _, from := range lights {
		for _, to := range lights {
			m := fsm.New("traffic", table, red)
			for _, step := range paths[from] {
				require.NoError(t, m.Transition(step))
			}
			require.Equal(t, from, m.Current())

			err := m.Transition(to)
			if table.Allows(from, to) {
				assert.NoError(t, err, "%s -> %s", from, to)
				assert.True(t, m.Is(to))
				continue
			}

			var invalid *domain.InvalidTransitionError
			require.True(t, errors.As(err, &invalid), "%s -> %s", from, to)
			assert.Equal(t, from.String(), invalid.From)
			assert.Equal(t, to.String(), invalid.To)
			assert.Equal(t, "traffic", invalid.Machine)
			assert.Equal(t, from, m.Current(), "state must not change on rejection")
		}
	}
}

func TestMachine_Queries(t *testing.T) {
	m := fsm.New("traffic", trafficTable(), green)

	assert.Equal(t, "traffic", m.Name())
	assert.True(t, m.Is(green))
	assert.True(t, m.CanTransition(amber))
	assert.False(t, m.CanTransition(red))
	assert.ElementsMatch(t, []light{amber, broken}, m.Allowed())

	// Allowed returns a copy
	allowed := m.Allowed()
	allowed[0] = red
	assert.False(t, m.CanTransition(red))
}

func TestMachine_Hooks(t *testing.T) {
	var seen, rejected []*domain.TransitionEvent
	hooks := domain.TransitionHooks{
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) { seen = append(seen, e) },
		OnRejected:   func(_ context.Context, e *domain.TransitionEvent) { rejected = append(rejected, e) },
	}
	m := fsm.New("traffic", trafficTable(), red, fsm.WithHooks(hooks))

	require.NoError(t, m.Transition(green))
	assert.Error(t, m.Transition(red))

	require.Len(t, seen, 1)
	assert.Equal(t, domain.EventTransition, seen[0].Type)
	assert.Equal(t, "red", seen[0].From)
	assert.Equal(t, "green", seen[0].To)
	assert.False(t, seen[0].Timestamp.IsZero())

	require.Len(t, rejected, 1)
	assert.Equal(t, domain.EventRejected, rejected[0].Type)
	assert.Equal(t, "green", rejected[0].From)
}

func TestNew_PanicsOnMissingInitial(t *testing.T) {
	assert.Panics(t, func() {
		fsm.New("broken", fsm.Table[light]{red: {green}}, amber)
	})
}
