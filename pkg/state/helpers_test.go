package state_test

import (
	"testing"
	"time"

	"github.com/aretw0/appflow/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArrayHelpers(t *testing.T) {
	list := func(items ...any) *state.State { return state.New(items) }
	isEven := func(v any, _ int) bool { return v.(int)%2 == 0 }

	tests := []struct {
		name string
		got  *state.State
		want []any
	}{
		{"push", list(1).Push(2, 3), []any{1, 2, 3}},
		{"pop", list(1, 2).Pop(), []any{1}},
		{"shift", list(1, 2).Shift(), []any{2}},
		{"unshift", list(2).Unshift(0, 1), []any{0, 1, 2}},
		{"filter", list(1, 2, 3, 4).Filter(isEven), []any{2, 4}},
		{"map", list(1, 2).Map(func(v any, i int) any { return v.(int) * 10 }), []any{10, 20}},
		{"filterMap", list(1, 2, 3, 4).FilterMap(isEven, func(v any, i int) any { return i }), []any{0, 1}},
		{"concat", list(1).Concat([]any{2}, []any{3}), []any{1, 2, 3}},
		{"slice", list(1, 2, 3, 4).Slice(1, -1), []any{2, 3}},
		{"fill", list(1, 2).Fill(0), []any{0, 0}},
		{"reverse", list(1, 2, 3).Reverse(), []any{3, 2, 1}},
		{"sort", list(3, 1, 2).Sort(func(a, b any) bool { return a.(int) < b.(int) }), []any{1, 2, 3}},
		{"swap", list(1, 2, 3).Swap(0, 2), []any{3, 2, 1}},
		{"remove", list("a", "b", "c", "d").Remove(2, 0), []any{"b", "d"}},
		{"remove from end", list("a", "b", "c").Remove(-1), []any{"a", "b"}},
		{"remove mixed signs", list("a", "b", "c", "d").Remove(0, -1, 3), []any{"b", "c"}},
		{"exclude", list(1, 2, 3, 2).Exclude(2), []any{1, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got.Value())
		})
	}
}

func TestArrayHelpers_KeepOriginal(t *testing.T) {
	items := []any{1, 2, 3}
	s := state.New(items)

	removed := s.Splice(1, 1, "x", "y")

	assert.Equal(t, []any{2}, removed)
	assert.Equal(t, []any{1, "x", "y", 3}, s.Value())
	assert.Equal(t, []any{1, 2, 3}, items)
}

func TestArrayHelpers_NoOps(t *testing.T) {
	items := []any{1, 2}
	assert.True(t, state.Identical(items, state.New(items).Remove(5).Value()))
	assert.True(t, state.Identical(items, state.New(items).Remove(-4).Value()))
	assert.True(t, state.Identical(items, state.New(items).Exclude(9).Value()))
	assert.True(t, state.Identical(items, state.New(items).Push().Value()))
}

func TestArrayHelpers_FirstLast(t *testing.T) {
	s := state.New([]any{1, 2})
	assert.Equal(t, 1, s.First(0))
	assert.Equal(t, 2, s.Last(0))
	empty := state.New([]any{})
	assert.Equal(t, "none", empty.First("none"))
	assert.Equal(t, "none", empty.Last("none"))
}

func TestOrderBy(t *testing.T) {
	s := state.New([]any{
		map[string]any{"name": "b", "age": 2},
		map[string]any{"name": "a", "age": 2},
		map[string]any{"name": "c", "age": 1},
	})
	s.OrderBy(state.By("age", true), state.By("name", false))

	var names []any
	for _, item := range s.Value().([]any) {
		names = append(names, item.(map[string]any)["name"])
	}
	assert.Equal(t, []any{"a", "b", "c"}, names)
}

func TestObjectHelpers(t *testing.T) {
	original := map[string]any{"bold": false, "tmp": 1}
	s := state.New(original)

	s.Toggle("bold").Unset("tmp").Assign(map[string]any{"size": 12})

	assert.Equal(t, map[string]any{"bold": true, "size": 12}, s.Value())
	assert.Equal(t, map[string]any{"bold": false, "tmp": 1}, original)

	assert.Equal(t, true, state.New(false).Toggle().Value())
	assert.Equal(t, "x", state.New(nil).Def("x").Value())
	assert.Equal(t, "kept", state.New("kept").Def("x").Value())
	assert.Equal(t, map[string]any{"a": map[string]any{"b": 1}}, state.New(nil).DefAt("a.b", 1).Value())
}

func TestValueHelpers(t *testing.T) {
	assert.Equal(t, 3, state.New(1).Add(2).Value())
	assert.Equal(t, 1, state.New(nil).Add(1).Value())
	assert.Equal(t, 1.5, state.New(1).Add(0.5).Value())
	assert.Equal(t, int64(6), state.New(int64(3)).Mul(2).Value())
	assert.Equal(t, 2.5, state.New(5).Div(2).Value())

	assert.Equal(t, "hi there", state.New("hi_there").Replace("_", " ").Value())
	assert.Equal(t, "el", state.New("hello").Substring(1, 3).Value())
	assert.Equal(t, "llo", state.New("hello").Substring(2, -1).Value())
	assert.Equal(t, "x", state.New("  x ").Trim().Value())
	assert.Equal(t, "AB", state.New("ab").Upper().Value())
	assert.Equal(t, "ab", state.New("AB").Lower().Value())
}

func TestAddDate(t *testing.T) {
	start := time.Date(2024, time.January, 31, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, start.AddDate(0, 0, 2), state.New(start).AddDate(2, state.Days).Value())
	assert.Equal(t, start.AddDate(1, 0, 0), state.New(start).AddDate(1, state.Years).Value())
	assert.Equal(t, start.Add(-90*time.Minute), state.New(start).AddDate(-90, state.Minutes).Value())
	assert.Equal(t, "not a date", state.New("not a date").AddDate(1, state.Days).Value())

	unit, err := state.ParseDateUnit("week")
	require.NoError(t, err)
	assert.Equal(t, state.Weeks, unit)
	unit, err = state.ParseDateUnit("ms")
	require.NoError(t, err)
	assert.Equal(t, state.Millis, unit)
	_, err = state.ParseDateUnit("fortnight")
	assert.Error(t, err)
}
