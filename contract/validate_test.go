package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePrimitives(t *testing.T) {
	assert.NoError(t, Validate(String(), "hello"))
	assert.Error(t, Validate(String(), 5))

	assert.NoError(t, Validate(Int(), float64(5)))
	assert.NoError(t, Validate(Float(), float64(5.5)))
	assert.NoError(t, Validate(Bool(), true))
	assert.Error(t, Validate(Bool(), "true"))
}

func TestValidateTime(t *testing.T) {
	assert.NoError(t, Validate(Time(), "2026-07-31T12:00:00Z"))
	assert.Error(t, Validate(Time(), "not a date"))
	assert.Error(t, Validate(Time(), 1234))
}

func TestValidateEnum(t *testing.T) {
	s := Enum("a", "b", "c")
	assert.NoError(t, Validate(s, "b"))
	assert.Error(t, Validate(s, "z"))
}

func TestValidateList(t *testing.T) {
	s := List(String())
	assert.NoError(t, Validate(s, []interface{}{"a", "b"}))
	assert.Error(t, Validate(s, []interface{}{"a", 5}))
	assert.Error(t, Validate(s, "not a list"))
}

func TestValidateOptionalAllowsNil(t *testing.T) {
	s := Optional(Int())
	assert.NoError(t, Validate(s, nil))
	assert.NoError(t, Validate(s, float64(1)))
	assert.Error(t, Validate(s, "nope"))
}

func TestValidateObjectMissingRequiredField(t *testing.T) {
	s := Object(
		Field{Name: "name", Schema: String()},
		Field{Name: "age", Schema: Optional(Int())},
	)
	assert.Error(t, Validate(s, map[string]interface{}{"age": float64(5)}))
	assert.NoError(t, Validate(s, map[string]interface{}{"name": "alice"}))
}

func TestValidateObjectNestedFieldError(t *testing.T) {
	s := Object(Field{Name: "tags", Schema: List(String())})
	err := Validate(s, map[string]interface{}{"tags": []interface{}{"a", 5}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "tags")
}

func TestValidateBytesAcceptsStringOrBytes(t *testing.T) {
	assert.NoError(t, Validate(Bytes(), "base64data"))
	assert.NoError(t, Validate(Bytes(), []byte("raw")))
	assert.Error(t, Validate(Bytes(), 5))
}
