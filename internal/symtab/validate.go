package symtab

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed member.schema.json
var memberSchemaSrc []byte

const memberSchemaURL = "member.schema.json"

// ErrInvalidMember is returned for member documents that fail validation.
var ErrInvalidMember = errors.New("invalid member")

var (
	memberSchemaOnce sync.Once
	memberSchema     *jsonschema.Schema
	memberSchemaErr  error
)

func compiledMemberSchema() (*jsonschema.Schema, error) {
	memberSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(memberSchemaURL, bytes.NewReader(memberSchemaSrc)); err != nil {
			memberSchemaErr = fmt.Errorf("add member schema: %w", err)
			return
		}
		memberSchema, memberSchemaErr = compiler.Compile(memberSchemaURL)
	})
	return memberSchema, memberSchemaErr
}

// Validate checks a raw member document against the embedded schema.
func Validate(raw []byte) error {
	schema, err := compiledMemberSchema()
	if err != nil {
		return err
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: parse: %w", ErrInvalidMember, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMember, err)
	}
	return nil
}
