// SPDX-License-Identifier: Apache-2.0

// Package jsonschema validates configuration documents against the embedded
// configuration schema.
package jsonschema

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaURL = "https://schemaboot.cloudgames.dev/schema.json"

//go:embed schema.json
var schemaJSON []byte

var compiled = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing configuration schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("loading configuration schema: %w", err)
	}
	return c.Compile(schemaURL)
})

// Schema returns the raw configuration schema.
func Schema() []byte {
	return bytes.Clone(schemaJSON)
}

// Validate checks a JSON document against the configuration schema.
func Validate(doc []byte) error {
	sch, err := compiled()
	if err != nil {
		return err
	}

	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return fmt.Errorf("parsing configuration: %w", err)
	}

	return sch.Validate(v)
}
