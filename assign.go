package reactor

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// assignFields applies a set of dot-notation field paths to the target state.
// Paths are applied in sorted order so that a failing path is deterministic.
func assignFields[S any](target *S, fields map[string]any) error {
	paths := make([]string, 0, len(fields))
	for path := range fields {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := assignField(reflect.ValueOf(target).Elem(), path, fields[path]); err != nil {
			return fmt.Errorf("set %q: %w", path, err)
		}
	}
	return nil
}

// assignField sets a single value in a struct or string-keyed map using a
// dot-notation path
func assignField(v reflect.Value, path string, value any) error {
	segments := strings.Split(path, ".")
	if len(segments) == 0 || path == "" {
		return fmt.Errorf("empty path")
	}

	for i := 0; i < len(segments); i++ {
		segment := segments[i]
		last := i == len(segments)-1

		// If it's a pointer or interface, get the element it points to
		for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
			if v.IsNil() {
				return fmt.Errorf("path segment %q points through nil", segment)
			}
			v = v.Elem()
		}

		switch v.Kind() {
		case reflect.Map:
			if v.Type().Key().Kind() != reflect.String {
				return fmt.Errorf("path segment %q: map key type %v is not string", segment, v.Type().Key())
			}
			if last {
				return setMapEntry(v, segment, value)
			}
			next := v.MapIndex(reflect.ValueOf(segment))
			if !next.IsValid() {
				return fmt.Errorf("no entry named %q", segment)
			}
			// Map values are not addressable; nested paths require the
			// entry to hold a pointer, map or interface wrapping one.
			v = next

		case reflect.Struct:
			field := v.FieldByName(segment)
			if !field.IsValid() {
				return fmt.Errorf("no field named %q", segment)
			}
			if last {
				return setField(field, segment, value)
			}
			v = field

		default:
			return fmt.Errorf("path segment %q does not point to a struct or map", segment)
		}
	}
	return nil
}

func setField(field reflect.Value, name string, value any) error {
	if !field.CanSet() {
		return fmt.Errorf("field %q cannot be set (unexported?)", name)
	}
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}

	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(field.Type()) {
		field.Set(rv)
		return nil
	}
	if rv.Type().ConvertibleTo(field.Type()) {
		field.Set(rv.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("value type %v cannot be assigned to field type %v", rv.Type(), field.Type())
}

func setMapEntry(m reflect.Value, key string, value any) error {
	elemType := m.Type().Elem()
	if value == nil {
		m.SetMapIndex(reflect.ValueOf(key), reflect.Zero(elemType))
		return nil
	}

	rv := reflect.ValueOf(value)
	switch {
	case rv.Type().AssignableTo(elemType):
		m.SetMapIndex(reflect.ValueOf(key), rv)
	case rv.Type().ConvertibleTo(elemType):
		m.SetMapIndex(reflect.ValueOf(key), rv.Convert(elemType))
	default:
		return fmt.Errorf("value type %v cannot be assigned to map value type %v", rv.Type(), elemType)
	}
	return nil
}
