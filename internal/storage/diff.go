package storage

import (
	"reflect"
	"strings"
	"time"
)

// Diff computes field-level changes between two snapshots of the same record.
// Field names come from json tags so trail entries match the wire shape.
// Embedded structs are flattened; unexported fields (including the event
// recorder) and the audit bookkeeping fields themselves are skipped.
func Diff[T any](before, after T) []FieldChange {
	vb := reflect.ValueOf(before)
	va := reflect.ValueOf(after)
	for vb.Kind() == reflect.Pointer {
		if vb.IsNil() || va.IsNil() {
			return nil
		}
		vb = vb.Elem()
		va = va.Elem()
	}
	if vb.Kind() != reflect.Struct {
		return nil
	}
	return diffStruct(vb, va)
}

// Bookkeeping fields maintained by the adapter; diffing them would put every
// update's own stamp into its trail entry.
var skippedFields = map[string]bool{
	"updated_at": true,
	"updated_by": true,
	"version":    true,
}

func diffStruct(before, after reflect.Value) []FieldChange {
	var changes []FieldChange
	t := before.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		fb := before.Field(i)
		fa := after.Field(i)
		if field.Anonymous && fb.Kind() == reflect.Struct {
			changes = append(changes, diffStruct(fb, fa)...)
			continue
		}
		name := jsonName(field)
		if name == "-" || skippedFields[name] {
			continue
		}
		if !equalValue(fb, fa) {
			changes = append(changes, FieldChange{Field: name, Old: fb.Interface(), New: fa.Interface()})
		}
	}
	return changes
}

func jsonName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return field.Name
	}
	return name
}

func equalValue(a, b reflect.Value) bool {
	// time.Time compares by instant, not by struct layout (wall/monotonic).
	if ta, ok := a.Interface().(time.Time); ok {
		tb := b.Interface().(time.Time)
		return ta.Equal(tb)
	}
	return reflect.DeepEqual(a.Interface(), b.Interface())
}
