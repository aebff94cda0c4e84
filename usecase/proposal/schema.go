package proposal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

const schemaBase = "https://schemas.attribution.local/proposals/"

const amountDef = `{
	"oneOf": [
		{"type": "number", "minimum": 0},
		{"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?$"}
	]
}`

const percentDef = `{
	"oneOf": [
		{"type": "number", "minimum": 0, "maximum": 100},
		{"type": "string", "pattern": "^(100(\\.0+)?|[0-9]{1,2}(\\.[0-9]+)?)$"}
	]
}`

const ingredientProps = `{
	"name": {"type": "string", "minLength": 1},
	"type": {"enum": ["data", "model", "software", "content", "capital", "expertise", "infrastructure", "other"]},
	"ownership_status": {"enum": ["owned", "licensed", "shared"]},
	"owner_id": {"type": "string"},
	"value_category": {"type": "string"},
	"contribution_weight": {"$ref": "#/$defs/amount"},
	"credit_multiplier": {"$ref": "#/$defs/amount"},
	"contributor_id": {"type": "string"},
	"ownership_percent": {"$ref": "#/$defs/percent"},
	"value_weight": {"$ref": "#/$defs/amount"}
}`

const ruleProps = `{
	"participant_id": {"type": "string", "minLength": 1},
	"credit_type": {"enum": ["contribution", "usage", "value"]},
	"payout_percentage": {"$ref": "#/$defs/percent"},
	"min_payout": {"$ref": "#/$defs/amount"},
	"max_payout": {"$ref": "#/$defs/amount"}
}`

const removalProps = `{
	"reason": {"type": "string"}
}`

func objectSchema(props string, required []string, minProps int) string {
	req, _ := json.Marshal(required)
	if required == nil {
		req = []byte("[]")
	}
	return fmt.Sprintf(`{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"additionalProperties": false,
	"minProperties": %d,
	"required": %s,
	"properties": %s,
	"$defs": {"amount": %s, "percent": %s}
}`, minProps, req, props, amountDef, percentDef)
}

func schemaKey(target domain.ProposalTarget, change domain.ChangeType) string {
	return string(target) + "_" + string(change)
}

// changeValidator checks proposed_changes against the schema of its target
// and change type.
type changeValidator struct {
	schemas map[string]*jsonschema.Schema
}

func newChangeValidator() (*changeValidator, error) {
	sources := map[string]string{
		schemaKey(domain.TargetIngredient, domain.ChangeModify): objectSchema(ingredientProps, nil, 1),
		schemaKey(domain.TargetIngredient, domain.ChangeAdd):    objectSchema(ingredientProps, []string{"name"}, 1),
		schemaKey(domain.TargetIngredient, domain.ChangeRemove): objectSchema(removalProps, nil, 0),
		schemaKey(domain.TargetRule, domain.ChangeModify):       objectSchema(ruleProps, nil, 1),
		schemaKey(domain.TargetRule, domain.ChangeAdd):          objectSchema(ruleProps, []string{"participant_id", "credit_type", "payout_percentage"}, 3),
		schemaKey(domain.TargetRule, domain.ChangeRemove):       objectSchema(removalProps, nil, 0),
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	for key, src := range sources {
		if err := c.AddResource(schemaBase+key+".schema.json", strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("proposal schema %s load failed: %w", key, err)
		}
	}

	v := &changeValidator{schemas: make(map[string]*jsonschema.Schema, len(sources))}
	for key := range sources {
		compiled, err := c.Compile(schemaBase + key + ".schema.json")
		if err != nil {
			return nil, fmt.Errorf("proposal schema %s compile failed: %w", key, err)
		}
		v.schemas[key] = compiled
	}
	return v, nil
}

// Validate returns a ValidationError on proposed_changes when the payload
// does not match its schema. An empty payload is treated as {}.
func (v *changeValidator) Validate(target domain.ProposalTarget, change domain.ChangeType, raw json.RawMessage) error {
	schema, ok := v.schemas[schemaKey(target, change)]
	if !ok {
		return domain.Validation("change_type", "no schema for %s %s proposals", change, target)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return domain.Validation("proposed_changes", "must be a JSON object: %v", err)
	}
	if err := schema.Validate(doc); err != nil {
		return domain.Validation("proposed_changes", "%v", err)
	}
	return nil
}
