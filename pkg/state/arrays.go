package state

import (
	"slices"
	"sort"
)

func toSlice(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	return nil
}

func (s *State) mutateSlice(fn func(items []any) []any) *State {
	return s.Mutate(func(v any) any {
		items := toSlice(v)
		cp := make([]any, len(items))
		copy(cp, items)
		return fn(cp)
	}, false)
}

// First returns the first element, or def when the slice is empty.
func (s *State) First(def any) any {
	items := toSlice(s.Value())
	if len(items) == 0 || items[0] == nil {
		return def
	}
	return items[0]
}

// Last returns the last element, or def when the slice is empty.
func (s *State) Last(def any) any {
	items := toSlice(s.Value())
	if len(items) == 0 || items[len(items)-1] == nil {
		return def
	}
	return items[len(items)-1]
}

// Push appends values.
func (s *State) Push(values ...any) *State {
	if len(values) == 0 {
		return s
	}
	return s.mutateSlice(func(items []any) []any {
		return append(items, values...)
	})
}

// Pop drops the last element.
func (s *State) Pop() *State {
	return s.mutateSlice(func(items []any) []any {
		if len(items) == 0 {
			return items
		}
		return items[:len(items)-1]
	})
}

// Shift drops the first element.
func (s *State) Shift() *State {
	return s.mutateSlice(func(items []any) []any {
		if len(items) == 0 {
			return items
		}
		return items[1:]
	})
}

// Unshift prepends values.
func (s *State) Unshift(values ...any) *State {
	if len(values) == 0 {
		return s
	}
	return s.mutateSlice(func(items []any) []any {
		return append(append([]any{}, values...), items...)
	})
}

// Splice removes deleteCount elements at start, inserts values in their place
// and returns the removed elements.
func (s *State) Splice(start, deleteCount int, values ...any) []any {
	var removed []any
	s.mutateSlice(func(items []any) []any {
		if start < 0 {
			start = max(len(items)+start, 0)
		}
		start = min(start, len(items))
		end := min(start+max(deleteCount, 0), len(items))
		removed = append(removed, items[start:end]...)
		return slices.Concat(items[:start], values, items[end:])
	})
	return removed
}

// Filter keeps the elements matching predicate.
func (s *State) Filter(predicate func(v any, i int) bool) *State {
	return s.mutateSlice(func(items []any) []any {
		out := make([]any, 0, len(items))
		for i, item := range items {
			if predicate(item, i) {
				out = append(out, item)
			}
		}
		return out
	})
}

// Map replaces every element with mapper's result.
func (s *State) Map(mapper func(v any, i int) any) *State {
	return s.mutateSlice(func(items []any) []any {
		for i, item := range items {
			items[i] = mapper(item, i)
		}
		return items
	})
}

// FilterMap filters then maps in one commit.
func (s *State) FilterMap(predicate func(v any, i int) bool, mapper func(v any, i int) any) *State {
	return s.mutateSlice(func(items []any) []any {
		out := make([]any, 0, len(items))
		for i, item := range items {
			if predicate(item, i) {
				out = append(out, mapper(item, len(out)))
			}
		}
		return out
	})
}

// Concat appends the elements of each slice.
func (s *State) Concat(others ...[]any) *State {
	return s.mutateSlice(func(items []any) []any {
		return slices.Concat(append([][]any{items}, others...)...)
	})
}

// Slice keeps items[start:end]; a negative end counts from the back.
func (s *State) Slice(start, end int) *State {
	return s.mutateSlice(func(items []any) []any {
		if end < 0 {
			end = len(items) + end
		}
		start = min(max(start, 0), len(items))
		end = min(max(end, start), len(items))
		return items[start:end]
	})
}

// Fill sets every element to v.
func (s *State) Fill(v any) *State {
	return s.mutateSlice(func(items []any) []any {
		for i := range items {
			items[i] = v
		}
		return items
	})
}

// Reverse reverses the element order.
func (s *State) Reverse() *State {
	return s.mutateSlice(func(items []any) []any {
		slices.Reverse(items)
		return items
	})
}

// Sort sorts elements with less, keeping equal elements in order.
func (s *State) Sort(less func(a, b any) bool) *State {
	return s.mutateSlice(func(items []any) []any {
		sort.SliceStable(items, func(i, j int) bool {
			return less(items[i], items[j])
		})
		return items
	})
}

// OrderKey is one sort criterion for OrderBy.
type OrderKey struct {
	By   func(v any) any
	Desc bool
}

// By orders by the value of a map field.
func By(field string, desc bool) OrderKey {
	return OrderKey{
		By: func(v any) any {
			return lookup(v, field)
		},
		Desc: desc,
	}
}

// OrderBy sorts by each key in turn.
func (s *State) OrderBy(keys ...OrderKey) *State {
	return s.Sort(func(a, b any) bool {
		for _, k := range keys {
			c := compareOrdered(k.By(a), k.By(b))
			if c == 0 {
				continue
			}
			if k.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Swap exchanges two elements.
func (s *State) Swap(i, j int) *State {
	return s.mutateSlice(func(items []any) []any {
		if i < 0 || j < 0 || i >= len(items) || j >= len(items) {
			return items
		}
		items[i], items[j] = items[j], items[i]
		return items
	})
}

// Remove deletes the elements at the given indexes. Negative indexes count
// from the end. Nothing changes when any index is out of range.
func (s *State) Remove(indexes ...int) *State {
	if len(indexes) == 0 {
		return s
	}
	items := toSlice(s.Value())
	sorted := make([]int, len(indexes))
	for i, idx := range indexes {
		if idx < 0 {
			idx += len(items)
		}
		if idx < 0 || idx >= len(items) {
			return s
		}
		sorted[i] = idx
	}
	slices.Sort(sorted)
	return s.mutateSlice(func(items []any) []any {
		for k := len(sorted) - 1; k >= 0; k-- {
			if k < len(sorted)-1 && sorted[k] == sorted[k+1] {
				continue
			}
			items = slices.Delete(items, sorted[k], sorted[k]+1)
		}
		return items
	})
}

// Exclude removes every element equal to one of values. The value is left
// untouched when nothing matches.
func (s *State) Exclude(values ...any) *State {
	if len(values) == 0 {
		return s
	}
	items := toSlice(s.Value())
	kept := make([]any, 0, len(items))
	for _, item := range items {
		if !slices.ContainsFunc(values, func(v any) bool { return Identical(v, item) }) {
			kept = append(kept, item)
		}
	}
	if len(kept) == len(items) {
		return s
	}
	return s.Set(kept)
}
