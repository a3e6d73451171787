package ai

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	schemaAnalyzeProjects = "analyze_projects.json"
	schemaScoreResume     = "score_resume.json"
	schemaOutreach        = "outreach.json"
)

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func compileSchemas() {
	schemas = make(map[string]*jsonschema.Schema)
	compiler := jsonschema.NewCompiler()
	for _, name := range []string{schemaAnalyzeProjects, schemaScoreResume, schemaOutreach} {
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			schemasErr = fmt.Errorf("read schema %s: %w", name, err)
			return
		}
		if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
			schemasErr = fmt.Errorf("add schema %s: %w", name, err)
			return
		}
		schema, err := compiler.Compile(name)
		if err != nil {
			schemasErr = fmt.Errorf("compile schema %s: %w", name, err)
			return
		}
		schemas[name] = schema
	}
}

// validateReply checks a fence-stripped reply against the named schema.
func validateReply(name string, data []byte) error {
	schemasOnce.Do(compileSchemas)
	if schemasErr != nil {
		return schemasErr
	}
	schema, ok := schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema: %s", name)
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal reply: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("reply does not match schema: %w", err)
	}
	return nil
}
