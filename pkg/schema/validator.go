// Package schema validates tool call arguments against the JSON Schema
// (Draft 2019-09 subset) a tool declares in its parameters, per spec.md §4.E.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	aierrors "github.com/corvid-labs/chatmux/pkg/provider/errors"
)

// Validator validates data against a schema.
type Validator interface {
	// Validate validates data against the schema. Returns an error if
	// validation fails.
	Validate(data interface{}) error

	// JSONSchema returns the JSON Schema representation of this validator.
	// This is used when sending schemas to AI providers.
	JSONSchema() map[string]interface{}
}

// Schema represents a validation schema.
type Schema interface {
	// Validator returns the validator for this schema.
	Validator() Validator
}

// JSONSchemaValidator validates using JSON Schema, compiled once and reused
// for every call.
type JSONSchemaValidator struct {
	raw      map[string]interface{}
	mu       sync.Mutex
	compiled *jsonschema.Schema
	compErr  error
}

// NewJSONSchema creates a new JSON Schema validator. Compilation is deferred
// to the first Validate call so a malformed schema surfaces as a validation
// error rather than a construction-time panic.
func NewJSONSchema(raw map[string]interface{}) *JSONSchemaValidator {
	return &JSONSchemaValidator{raw: raw}
}

func (v *JSONSchemaValidator) compile(resourceName string) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.compiled != nil || v.compErr != nil {
		return v.compiled, v.compErr
	}

	doc, err := toAny(v.raw)
	if err != nil {
		v.compErr = fmt.Errorf("encode schema: %w", err)
		return nil, v.compErr
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceName, doc); err != nil {
		v.compErr = fmt.Errorf("add schema resource: %w", err)
		return nil, v.compErr
	}
	sc, err := c.Compile(resourceName)
	if err != nil {
		v.compErr = fmt.Errorf("compile schema: %w", err)
		return nil, v.compErr
	}
	v.compiled = sc
	return v.compiled, nil
}

// Validate validates data against the JSON Schema.
func (v *JSONSchemaValidator) Validate(data interface{}) error {
	sc, err := v.compile("schema.json")
	if err != nil {
		return err
	}
	instance, err := toAny(data)
	if err != nil {
		return fmt.Errorf("encode instance: %w", err)
	}
	return sc.Validate(instance)
}

// JSONSchema returns the raw JSON Schema document.
func (v *JSONSchemaValidator) JSONSchema() map[string]interface{} {
	return v.raw
}

// SimpleJSONSchema is a simple implementation of Schema.
type SimpleJSONSchema struct {
	validator *JSONSchemaValidator
}

// NewSimpleJSONSchema creates a simple JSON Schema.
func NewSimpleJSONSchema(raw map[string]interface{}) *SimpleJSONSchema {
	return &SimpleJSONSchema{validator: NewJSONSchema(raw)}
}

// Validator returns the validator.
func (s *SimpleJSONSchema) Validator() Validator {
	return s.validator
}

// toAny round-trips through encoding/json so jsonschema/v6 sees the same
// json.Number/string/bool/nil shape it would get from decoding raw bytes,
// rather than Go-native map/int types its compiler does not recognize.
func toAny(v interface{}) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// ToolValidator validates tool call arguments against each tool's declared
// JSON Schema (spec.md §4.E), compiling and caching one schema per tool name.
type ToolValidator struct {
	mu    sync.Mutex
	cache map[string]*JSONSchemaValidator
}

// NewToolValidator creates an empty ToolValidator. Zero value is also usable.
func NewToolValidator() *ToolValidator {
	return &ToolValidator{cache: make(map[string]*JSONSchemaValidator)}
}

// Validate checks arguments (decoded JSON, typically map[string]interface{})
// against the schema declared by tool.Parameters. On success it returns the
// arguments unchanged — the API allows for coercion, but this implementation
// performs none, since jsonschema/v6 validates in place without rewriting
// the instance. On failure it returns a *errors.SchemaValidationError naming
// the tool and carrying a preview of the received arguments.
func (tv *ToolValidator) Validate(toolName string, parameters map[string]interface{}, arguments interface{}) (interface{}, error) {
	v := tv.validatorFor(toolName, parameters)
	if err := v.Validate(arguments); err != nil {
		return nil, aierrors.NewSchemaValidationError(toolName, previewOf(arguments), err)
	}
	return arguments, nil
}

func (tv *ToolValidator) validatorFor(toolName string, parameters map[string]interface{}) *JSONSchemaValidator {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	if tv.cache == nil {
		tv.cache = make(map[string]*JSONSchemaValidator)
	}
	if v, ok := tv.cache[toolName]; ok {
		return v
	}
	v := NewJSONSchema(parameters)
	tv.cache[toolName] = v
	return v
}

func previewOf(arguments interface{}) string {
	b, err := json.Marshal(arguments)
	if err != nil {
		return fmt.Sprintf("%v", arguments)
	}
	return string(b)
}
