// Package output assembles the canonical result document emitted at the end
// of a run. The document is self-validated against an embedded JSON Schema
// before it leaves the pipeline; a schema violation is a bug, not an issue.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/clearfolio/statement-parser/constants"
	"github.com/clearfolio/statement-parser/internal/common"
	"github.com/clearfolio/statement-parser/internal/portfolio"
)

// Metrics summarizes a run for the caller.
type Metrics struct {
	TotalSecurities   int     `json:"total_securities"`
	TotalAssetClasses int     `json:"total_asset_classes"`
	ProcessingTime    float64 `json:"processing_time"` // seconds
}

// DocumentInfo identifies the source statement.
type DocumentInfo struct {
	DocumentID   string `json:"document_id"`
	DocumentDate string `json:"document_date,omitempty"` // ISO date when detected
}

// Result is the complete output document. Field order here is the canonical
// serialization order.
type Result struct {
	Portfolio    portfolio.Portfolio `json:"portfolio"`
	Metrics      Metrics             `json:"metrics"`
	DocumentInfo DocumentInfo        `json:"document_info"`
	Issues       []portfolio.Issue   `json:"issues"`
	State        constants.RunState  `json:"state"`
}

// Build assembles a Result from a finished run.
func Build(p portfolio.Portfolio, issues []portfolio.Issue, docID string, docDate *time.Time, state constants.RunState, elapsed time.Duration) Result {
	if p.Securities == nil {
		p.Securities = []portfolio.Security{}
	}
	if p.Allocation == nil {
		p.Allocation = map[string]portfolio.ClassWeight{}
	}
	if issues == nil {
		issues = []portfolio.Issue{}
	}
	info := DocumentInfo{DocumentID: docID}
	if docDate != nil {
		info.DocumentDate = docDate.Format("2006-01-02")
	}
	return Result{
		Portfolio: p,
		Metrics: Metrics{
			TotalSecurities:   len(p.Securities),
			TotalAssetClasses: len(p.Allocation),
			ProcessingTime:    elapsed.Seconds(),
		},
		DocumentInfo: info,
		Issues:       issues,
		State:        state,
	}
}

// Marshal renders the canonical JSON form and validates it against the
// embedded schema. The same bytes unmarshal back into an equal Result.
func Marshal(r Result) ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: marshal result: %v", common.ErrInternal, err)
	}
	if err := Validate(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks serialized result bytes against the embedded schema.
func Validate(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: unmarshal result: %v", common.ErrValidation, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: result does not match schema: %v", common.ErrValidation, err)
	}
	return nil
}

func compiledSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("result.json", bytes.NewReader([]byte(resultSchema))); err != nil {
		return nil, fmt.Errorf("add result schema: %w", err)
	}
	schema, err := compiler.Compile("result.json")
	if err != nil {
		return nil, fmt.Errorf("compile result schema: %w", err)
	}
	return schema, nil
}

// resultSchema mirrors the Result struct. Decimal fields serialize as JSON
// numbers or null; states and issue kinds are closed enums.
const resultSchema = `{
  "type": "object",
  "required": ["portfolio", "metrics", "document_info", "issues", "state"],
  "properties": {
    "portfolio": {
      "type": "object",
      "required": ["securities", "total_value", "currency", "asset_allocation", "reconciled"],
      "properties": {
        "securities": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["isin", "quantity", "price", "value", "asset_class", "confidence"],
            "properties": {
              "isin": {"type": "string", "pattern": "^[A-Z]{2}[A-Z0-9]{9}[0-9]$"},
              "name": {"type": "string"},
              "quantity": {"type": ["number", "string", "null"]},
              "price": {"type": ["number", "string", "null"]},
              "value": {"type": ["number", "string", "null"]},
              "currency": {"type": "string"},
              "asset_class": {"type": "string", "enum": ["Bonds", "Equities", "StructuredProducts", "Funds", "Liquidity", "Other"]},
              "confidence": {"type": "number", "minimum": 0, "maximum": 1}
            }
          }
        },
        "total_value": {"type": ["number", "string"]},
        "currency": {"type": "string"},
        "asset_allocation": {
          "type": "object",
          "additionalProperties": {
            "type": "object",
            "required": ["value", "weight"],
            "properties": {
              "value": {"type": ["number", "string"]},
              "weight": {"type": ["number", "string"]}
            }
          }
        },
        "reconciled": {"type": "boolean"}
      }
    },
    "metrics": {
      "type": "object",
      "required": ["total_securities", "total_asset_classes", "processing_time"],
      "properties": {
        "total_securities": {"type": "integer", "minimum": 0},
        "total_asset_classes": {"type": "integer", "minimum": 0},
        "processing_time": {"type": "number", "minimum": 0}
      }
    },
    "document_info": {
      "type": "object",
      "required": ["document_id"],
      "properties": {
        "document_id": {"type": "string"},
        "document_date": {"type": "string"}
      }
    },
    "issues": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["kind", "severity"],
        "properties": {
          "kind": {"type": "string", "enum": ["checksum-fail", "missing-value", "conflicting-value", "total-mismatch", "weight-mismatch", "extraction-failed", "arbitration-unavailable"]},
          "isin": {"type": "string"},
          "field": {"type": "string"},
          "severity": {"type": "string", "enum": ["info", "warning", "error"]},
          "detail": {"type": "string"}
        }
      }
    },
    "state": {"type": "string", "enum": ["completed", "completed_with_issues", "failed"]}
  }
}`
