package replay

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/danielpatrickdp/continuity-arbiter/internal/session"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "mem://replay/fixture.schema.json"

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string           `json:"description"`
	StartAt     time.Time        `json:"start_at"` // turns without "at" are spaced a minute apart from here
	Sessions    []FixtureSession `json:"sessions"`
}

// FixtureSession is one session's recorded turns and what each should decide.
type FixtureSession struct {
	SessionID string              `json:"session_id"`
	Turns     []session.TurnInput `json:"turns"`
	Expected  []Expectation       `json:"expected"`
}

// Expectation lists the decisions checked for one turn. Empty fields are
// not checked.
type Expectation struct {
	SafetyMode    string `json:"safety_mode,omitempty"`
	Phase         string `json:"phase,omitempty"`
	Mode          string `json:"mode,omitempty"`
	GuardrailMode string `json:"guardrail_mode,omitempty"`
	Committed     *bool  `json:"committed,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func fixtureSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(schemaURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("compile schema: %w", compileErr)
		}
	})
	return compiled, compileErr
}

// ParseFixture validates raw JSON against the fixture schema and decodes it.
func ParseFixture(data []byte) (*Fixture, error) {
	schema, err := fixtureSchema()
	if err != nil {
		return nil, err
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if err := schema.Validate(payload); err != nil {
		return nil, fmt.Errorf("validate fixture: %w", err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return &f, nil
}

// LoadFixture reads, validates and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	f, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return f, nil
}

// #endregion fixture-loader
