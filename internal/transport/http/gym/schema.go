package gym

import (
	"encoding/json"
	"fmt"
	"strings"

	"stockenv/internal/env"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// stepSchema accepts either {"action":[type, amount]} or {"type":t,"amount":a}.
const stepSchema = `{
  "type": "object",
  "properties": {
    "action": {
      "type": "array",
      "items": {"type": "number"},
      "minItems": 2,
      "maxItems": 2
    },
    "type": {"type": "number"},
    "amount": {"type": "number"}
  },
  "oneOf": [
    {"required": ["action"], "not": {"anyOf": [{"required": ["type"]}, {"required": ["amount"]}]}},
    {"required": ["type", "amount"], "not": {"required": ["action"]}}
  ]
}`

func compileStepSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("step.json", strings.NewReader(stepSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("step.json")
}

// parseAction validates raw against the step schema and extracts the action.
func parseAction(schema *jsonschema.Schema, raw []byte) (env.Action, error) {
	if !gjson.ValidBytes(raw) {
		return env.Action{}, fmt.Errorf("request body is not valid JSON")
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return env.Action{}, err
	}
	if err := schema.Validate(doc); err != nil {
		return env.Action{}, err
	}
	parsed := gjson.ParseBytes(raw)
	if arr := parsed.Get("action"); arr.Exists() {
		return env.Action{Type: arr.Get("0").Float(), Amount: arr.Get("1").Float()}, nil
	}
	return env.Action{Type: parsed.Get("type").Float(), Amount: parsed.Get("amount").Float()}, nil
}
