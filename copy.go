package reactor

import "reflect"

// clone returns a structurally independent deep copy of v. Maps, slices and
// pointers in the copy share no memory with the original, so holders of a
// snapshot can never observe later mutations of the live state.
func clone[S any](v S) S {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return v
	}
	out, ok := copyValue(rv).Interface().(S)
	if !ok {
		// Interface-typed S holding a non-copyable dynamic value; fall back
		// to the original.
		return v
	}
	return out
}

// deepEqual is the equality predicate used for commit skipping and history
// compression.
func deepEqual[S any](a, b S) bool {
	return reflect.DeepEqual(a, b)
}

// copyValue recursively copies a reflect.Value. Unexported struct fields are
// carried over by the initial shallow struct copy; only exported fields are
// descended into, which keeps types like time.Time intact.
func copyValue(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(copyValue(v.Elem()))
		return out

	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(copyValue(v.Elem()))
		return out

	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		// Shallow copy first so unexported fields survive.
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			field := out.Field(i)
			if field.CanSet() {
				field.Set(copyValue(v.Field(i)))
			}
		}
		return out

	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(copyValue(iter.Key()), copyValue(iter.Value()))
		}
		return out

	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Cap())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(copyValue(v.Index(i)))
		}
		return out

	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(copyValue(v.Index(i)))
		}
		return out

	default:
		// Primitives, strings, channels and funcs copy by value.
		return v
	}
}
