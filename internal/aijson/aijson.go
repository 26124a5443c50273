// Package aijson parses structured JSON out of AI capability output, which
// routinely arrives wrapped in prose or slightly malformed.
package aijson

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ParseBlock extracts the outermost JSON object from free text and unmarshals
// it into out. If plain unmarshaling fails, a repair pass is attempted before
// giving up.
func ParseBlock(text string, out interface{}) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return fmt.Errorf("no JSON object found in response")
	}
	return Parse(text[start:end+1], out)
}

// Parse unmarshals raw JSON into out, attempting a repair pass on malformed
// input (unquoted keys, trailing commas, single quotes).
func Parse(raw string, out interface{}) error {
	if err := json.Unmarshal([]byte(raw), out); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return fmt.Errorf("repair JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("parse repaired JSON: %w", err)
	}
	return nil
}
