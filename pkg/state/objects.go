package state

// Toggle negates the boolean fields named by keys, or the value itself when
// no keys are given.
func (s *State) Toggle(keys ...string) *State {
	if len(keys) == 0 {
		return s.Mutate(func(v any) any {
			return !Truthy(v)
		}, false)
	}
	return s.Mutate(func(v any) any {
		obj, ok := v.(map[string]any)
		if !ok {
			return v
		}
		for _, k := range keys {
			obj[k] = !Truthy(obj[k])
		}
		return obj
	}, true)
}

// Unset deletes keys from a map value.
func (s *State) Unset(keys ...string) *State {
	if len(keys) == 0 {
		return s
	}
	return s.Mutate(func(v any) any {
		obj, ok := v.(map[string]any)
		if !ok {
			return v
		}
		for _, k := range keys {
			delete(obj, k)
		}
		return obj
	}, true)
}

// Assign merges the given maps into a copy of the value, later maps winning.
func (s *State) Assign(objs ...map[string]any) *State {
	if len(objs) == 0 {
		return s
	}
	return s.Mutate(func(v any) any {
		obj, ok := v.(map[string]any)
		if !ok {
			return v
		}
		for _, o := range objs {
			for k, val := range o {
				obj[k] = val
			}
		}
		return obj
	}, true)
}

// Def stores def when the current value is nil.
func (s *State) Def(def any) *State {
	return s.Mutate(func(v any) any {
		if v == nil {
			return def
		}
		return v
	}, false)
}

// DefAt stores def at path when nothing is there yet.
func (s *State) DefAt(path string, def any) *State {
	s.Prop(path).Def(def)
	return s
}

// Truthy reports whether v holds something other than nil or a zero value.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}
