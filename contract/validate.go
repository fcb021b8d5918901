package contract

import (
	"fmt"
	"time"
)

// Validate checks that value structurally conforms to s. It is
// deliberately permissive about Go numeric representations (JSON decoding
// into interface{} always yields float64) so a parsed provider response
// validates the same way a constructed one does.
func Validate(s Schema, value interface{}) error {
	switch s.Kind {
	case KindOptional:
		if value == nil {
			return nil
		}
		return Validate(*s.Elem, value)
	case KindString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case KindInt:
		if !isNumber(value) {
			return fmt.Errorf("expected int, got %T", value)
		}
	case KindFloat:
		if !isNumber(value) {
			return fmt.Errorf("expected float, got %T", value)
		}
	case KindBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
	case KindBytes:
		switch value.(type) {
		case string, []byte:
		default:
			return fmt.Errorf("expected base64 string or bytes, got %T", value)
		}
	case KindTime:
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected RFC3339 string, got %T", value)
		}
		if _, err := time.Parse(time.RFC3339, str); err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", str, err)
		}
	case KindEnum:
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected enum string, got %T", value)
		}
		for _, v := range s.Enum {
			if v == str {
				return nil
			}
		}
		return fmt.Errorf("value %q is not one of %v", str, s.Enum)
	case KindList:
		list, ok := value.([]interface{})
		if !ok {
			return fmt.Errorf("expected list, got %T", value)
		}
		for i, elem := range list {
			if err := Validate(*s.Elem, elem); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
	case KindObject:
		obj, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("expected object, got %T", value)
		}
		for _, f := range s.Fields {
			v, present := obj[f.Name]
			if !present {
				if f.Schema.Kind == KindOptional {
					continue
				}
				return fmt.Errorf("missing required field %q", f.Name)
			}
			if err := Validate(f.Schema, v); err != nil {
				return fmt.Errorf("field %q: %w", f.Name, err)
			}
		}
	default:
		return fmt.Errorf("unknown schema kind %q", s.Kind)
	}
	return nil
}

func isNumber(value interface{}) bool {
	switch value.(type) {
	case float64, float32, int, int64, int32:
		return true
	default:
		return false
	}
}

// JSONSchema projects s into a JSON Schema document suitable for a
// provider's function/tool parameter descriptor.
func (s Schema) JSONSchema() map[string]interface{} {
	switch s.Kind {
	case KindString:
		return map[string]interface{}{"type": "string"}
	case KindInt:
		return map[string]interface{}{"type": "integer"}
	case KindFloat:
		return map[string]interface{}{"type": "number"}
	case KindBool:
		return map[string]interface{}{"type": "boolean"}
	case KindBytes:
		return map[string]interface{}{"type": "string", "format": "byte"}
	case KindTime:
		return map[string]interface{}{"type": "string", "format": "date-time"}
	case KindEnum:
		vals := make([]interface{}, len(s.Enum))
		for i, v := range s.Enum {
			vals[i] = v
		}
		return map[string]interface{}{"type": "string", "enum": vals}
	case KindList:
		return map[string]interface{}{"type": "array", "items": s.Elem.JSONSchema()}
	case KindOptional:
		return s.Elem.JSONSchema()
	case KindObject:
		props := make(map[string]interface{}, len(s.Fields))
		var required []string
		for _, f := range s.Fields {
			props[f.Name] = f.Schema.JSONSchema()
			if f.Schema.Kind != KindOptional {
				required = append(required, f.Name)
			}
		}
		out := map[string]interface{}{"type": "object", "properties": props}
		if len(required) > 0 {
			out["required"] = required
		}
		return out
	default:
		return map[string]interface{}{}
	}
}
