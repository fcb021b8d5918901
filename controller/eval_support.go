package controller

import (
	"fmt"
	"reflect"
)

// attr resolves a single dotted attribute step against a map or struct
// value produced by step output decoding.
func attr(v interface{}, field string) (interface{}, error) {
	if m, ok := v.(map[string]interface{}); ok {
		fv, ok := m[field]
		if !ok {
			return nil, fmt.Errorf("no attribute %q on object", field)
		}
		return fv, nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, fmt.Errorf("no attribute %q on nil", field)
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		fv := rv.FieldByName(field)
		if fv.IsValid() {
			return fv.Interface(), nil
		}
	}
	return nil, fmt.Errorf("no attribute %q on value of type %T", field, v)
}

// lengthOf mirrors the builtin len() over the shapes that turn up in step
// output: strings, slices, and maps.
func lengthOf(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case string:
		return float64(len(x)), nil
	case []interface{}:
		return float64(len(x)), nil
	case map[string]interface{}:
		return float64(len(x)), nil
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
			return float64(rv.Len()), nil
		default:
			return nil, fmt.Errorf("len() not supported on type %T", v)
		}
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// compare implements the comparison operators over numbers and strings,
// and ==/!= over bools. Operands of mismatched types compare unequal under
// ==/!=; any other operator on them returns an error.
func compare(op string, l, r interface{}) (interface{}, error) {
	if lf, lok := toFloat(l); lok {
		if rf, rok := toFloat(r); rok {
			switch op {
			case "==":
				return lf == rf, nil
			case "!=":
				return lf != rf, nil
			case ">":
				return lf > rf, nil
			case ">=":
				return lf >= rf, nil
			case "<":
				return lf < rf, nil
			case "<=":
				return lf <= rf, nil
			}
		}
	}
	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok && rok {
		switch op {
		case "==":
			return ls == rs, nil
		case "!=":
			return ls != rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		}
	}
	lb, lok := l.(bool)
	rb, rok := r.(bool)
	if lok && rok {
		switch op {
		case "==":
			return lb == rb, nil
		case "!=":
			return lb != rb, nil
		}
	}
	switch op {
	case "==":
		return false, nil
	case "!=":
		return true, nil
	default:
		return nil, fmt.Errorf("cannot compare %T and %T with %q", l, r, op)
	}
}
