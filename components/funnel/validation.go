package funnel

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/filter.json
var filterSchema []byte

const filterSchemaURL = "funnel.filter.json"

// FilterValidator checks raw JSON filter payloads before they are decoded.
type FilterValidator struct {
	once     sync.Once
	compiled *jsonschema.Schema
	err      error
}

// NewFilterValidator builds a validator backed by the embedded filter schema.
func NewFilterValidator() *FilterValidator {
	return &FilterValidator{}
}

// Validate ensures payload satisfies the filter schema.
func (v *FilterValidator) Validate(payload []byte) error {
	schema, err := v.schema()
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("funnel: decode filter payload: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("funnel: filter failed validation: %w", err)
	}
	return nil
}

// Decode validates payload and unmarshals it into a FilterSpec.
func (v *FilterValidator) Decode(payload []byte) (FilterSpec, error) {
	if err := v.Validate(payload); err != nil {
		return FilterSpec{}, err
	}
	var spec FilterSpec
	if err := json.Unmarshal(payload, &spec); err != nil {
		return FilterSpec{}, fmt.Errorf("funnel: decode filter: %w", err)
	}
	return spec, nil
}

func (v *FilterValidator) schema() (*jsonschema.Schema, error) {
	v.once.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(filterSchemaURL, bytes.NewReader(filterSchema)); err != nil {
			v.err = fmt.Errorf("funnel: load filter schema: %w", err)
			return
		}
		v.compiled, v.err = compiler.Compile(filterSchemaURL)
		if v.err != nil {
			v.err = fmt.Errorf("funnel: compile filter schema: %w", v.err)
		}
	})
	return v.compiled, v.err
}
