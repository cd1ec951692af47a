package template

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// templateSchema constrains bank-template JSON files. Kept as a draft
// 2020-12 document so templates can also be validated by external
// tooling before deployment.
const templateSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["identifiers"],
  "properties": {
    "name": {"type": "string"},
    "identifiers": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1}
    },
    "field_mapping": {
      "type": "object",
      "propertyNames": {
        "enum": ["date", "amount", "debit", "credit", "balance", "description", "reference"]
      },
      "additionalProperties": {"type": "string", "minLength": 1}
    },
    "metadata_patterns": {
      "type": "object",
      "propertyNames": {
        "enum": ["account_number", "account_name", "statement_period", "opening_balance", "closing_balance", "bank_name"]
      },
      "additionalProperties": {"type": "string", "minLength": 1}
    },
    "date_layouts": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "sign_policy": {
      "enum": ["signed_column", "debit_credit_columns", "keyword_suffix"]
    },
    "header_rows": {"type": "integer", "minimum": 0},
    "currency": {"type": "string", "minLength": 3, "maxLength": 3}
  }
}`

var compiledSchema = jsonschema.MustCompileString("bank-template.schema.json", templateSchema)

func validateTemplateJSON(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}
