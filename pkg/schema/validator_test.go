package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aierrors "github.com/corvid-labs/chatmux/pkg/provider/errors"
)

func personSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string"},
			"age":  map[string]interface{}{"type": "integer", "minimum": 0},
		},
		"required": []interface{}{"name"},
	}
}

func TestNewJSONSchema(t *testing.T) {
	t.Parallel()
	validator := NewJSONSchema(personSchema())
	require.NotNil(t, validator)
}

func TestJSONSchemaValidator_JSONSchema(t *testing.T) {
	t.Parallel()
	validator := NewJSONSchema(personSchema())
	result := validator.JSONSchema()
	assert.Equal(t, "object", result["type"])
}

func TestJSONSchemaValidator_Validate_Success(t *testing.T) {
	t.Parallel()
	validator := NewJSONSchema(personSchema())
	err := validator.Validate(map[string]interface{}{"name": "John", "age": 30})
	assert.NoError(t, err)
}

func TestJSONSchemaValidator_Validate_MissingRequired(t *testing.T) {
	t.Parallel()
	validator := NewJSONSchema(personSchema())
	err := validator.Validate(map[string]interface{}{"age": 30})
	assert.Error(t, err)
}

func TestJSONSchemaValidator_Validate_WrongType(t *testing.T) {
	t.Parallel()
	validator := NewJSONSchema(personSchema())
	err := validator.Validate(map[string]interface{}{"name": "John", "age": "thirty"})
	assert.Error(t, err)
}

func TestJSONSchemaValidator_Validate_BelowMinimum(t *testing.T) {
	t.Parallel()
	validator := NewJSONSchema(personSchema())
	err := validator.Validate(map[string]interface{}{"name": "John", "age": -1})
	assert.Error(t, err)
}

func TestJSONSchemaValidator_EmptySchema(t *testing.T) {
	t.Parallel()
	validator := NewJSONSchema(map[string]interface{}{})
	result := validator.JSONSchema()
	assert.Empty(t, result)
	// An empty schema document accepts anything.
	assert.NoError(t, validator.Validate(map[string]interface{}{"anything": true}))
}

func TestSimpleJSONSchema_Validator(t *testing.T) {
	t.Parallel()
	simpleSchema := NewSimpleJSONSchema(personSchema())
	validator := simpleSchema.Validator()
	require.NotNil(t, validator)
	assert.Equal(t, "object", validator.JSONSchema()["type"])
}

func TestSimpleJSONSchema_ValidatorInterface(t *testing.T) {
	t.Parallel()
	var s Schema = NewSimpleJSONSchema(map[string]interface{}{"type": "string"})
	validator := s.Validator()
	require.NotNil(t, validator)
}

func TestJSONSchemaValidator_ValidatorInterface(t *testing.T) {
	t.Parallel()
	var v Validator = NewJSONSchema(map[string]interface{}{"type": "number"})
	_ = v.JSONSchema()
	assert.NoError(t, v.Validate(123))
	assert.Error(t, v.Validate("not a number"))
}

func TestToolValidator_ValidArguments(t *testing.T) {
	t.Parallel()
	tv := NewToolValidator()
	got, err := tv.Validate("get_weather", map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"city": map[string]interface{}{"type": "string"}},
		"required":   []interface{}{"city"},
	}, map[string]interface{}{"city": "Boston"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"city": "Boston"}, got)
}

func TestToolValidator_InvalidArgumentsReturnsTypedError(t *testing.T) {
	t.Parallel()
	tv := NewToolValidator()
	_, err := tv.Validate("get_weather", map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"city": map[string]interface{}{"type": "string"}},
		"required":   []interface{}{"city"},
	}, map[string]interface{}{"temperature": 72})

	var schemaErr *aierrors.SchemaValidationError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "get_weather", schemaErr.ToolName)
	assert.Contains(t, schemaErr.Preview, "temperature")
}

func TestToolValidator_CachesCompiledSchemaPerTool(t *testing.T) {
	t.Parallel()
	tv := NewToolValidator()
	params := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"city": map[string]interface{}{"type": "string"}},
	}
	v1 := tv.validatorFor("search", params)
	v2 := tv.validatorFor("search", params)
	assert.Same(t, v1, v2)
}
