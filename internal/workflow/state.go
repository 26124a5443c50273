// Package workflow implements the resumable drafting state machine: a graph
// of named steps over an immutable state snapshot, durable checkpoints after
// every transition, and typed suspend/resume semantics keyed by thread ID.
package workflow

import (
	"encoding/json"
	"fmt"
)

// State is the workflow state: a flat, string-keyed mapping whose values are
// always plain JSON types. Keeping values generic at all times guarantees a
// state that round-trips through the checkpoint store without live references
// and merges identically before and after a process restart.
type State map[string]interface{}

// Patch is a partial state update returned by a step.
type Patch map[string]interface{}

// Well-known state fields.
const (
	FieldSessionID     = "session_id"
	FieldUserID        = "user_id"
	FieldTopic         = "topic"
	FieldDetails       = "details"
	FieldRequestType   = "request_type"
	FieldLocale        = "locale"
	FieldSearchResults = "search_results"
	FieldByPurpose     = "results_by_purpose"
	FieldCrawlPlan     = "crawl_decisions"
	FieldEnriched      = "enriched_results"
	FieldQuestions     = "questions"
	FieldAnswerRounds  = "answer_rounds"
	FieldAnswerSummary = "answer_summary"
	FieldDocuments     = "documents"
	FieldKnowledge     = "knowledge"
	FieldMetadata      = "metadata"
	FieldFinalResult   = "final_result"
	FieldError         = "error"
)

// MergeStrategy declares how a field's old and new values combine.
type MergeStrategy int

const (
	// Replace overwrites the previous value. Default for scalars and arrays.
	Replace MergeStrategy = iota
	// ShallowMerge merges both values as string-keyed objects, new keys winning.
	ShallowMerge
	// Accumulate appends the new array value to the previous array value.
	Accumulate
)

// mergePolicy is the declared merge rule per field; unlisted fields Replace.
var mergePolicy = map[string]MergeStrategy{
	FieldMetadata:     ShallowMerge,
	FieldKnowledge:    ShallowMerge,
	FieldAnswerRounds: Accumulate,
	FieldDocuments:    Accumulate,
}

// PolicyFor returns the merge strategy declared for a field.
func PolicyFor(field string) MergeStrategy {
	if s, ok := mergePolicy[field]; ok {
		return s
	}
	return Replace
}

// Clone returns a top-level copy of the state. Steps receive clones and must
// treat nested values as read-only.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Normalize converts an arbitrary value into plain JSON types.
func Normalize(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	return out, nil
}

// NormalizeState normalizes every field of an initial state.
func NormalizeState(s State) (State, error) {
	out := make(State, len(s))
	for k, v := range s {
		nv, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

// Apply merges a patch into a state snapshot field-by-field according to the
// declared merge policy and returns the next snapshot. The input is not
// mutated.
func Apply(s State, p Patch) (State, error) {
	next := s.Clone()
	for field, raw := range p {
		val, err := Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("patch field %q: %w", field, err)
		}

		switch PolicyFor(field) {
		case ShallowMerge:
			next[field] = shallowMerge(next[field], val)
		case Accumulate:
			next[field] = accumulate(next[field], val)
		default:
			next[field] = val
		}
	}
	return next, nil
}

func shallowMerge(old, new interface{}) interface{} {
	oldMap, okOld := old.(map[string]interface{})
	newMap, okNew := new.(map[string]interface{})
	if !okNew {
		// Non-object patch value degenerates to replace
		return new
	}
	if !okOld {
		return newMap
	}
	merged := make(map[string]interface{}, len(oldMap)+len(newMap))
	for k, v := range oldMap {
		merged[k] = v
	}
	for k, v := range newMap {
		merged[k] = v
	}
	return merged
}

func accumulate(old, new interface{}) interface{} {
	newList, okNew := new.([]interface{})
	if !okNew {
		return new
	}
	oldList, okOld := old.([]interface{})
	if !okOld {
		return newList
	}
	out := make([]interface{}, 0, len(oldList)+len(newList))
	out = append(out, oldList...)
	out = append(out, newList...)
	return out
}

// GetString returns a string field, or "" when absent or not a string.
func (s State) GetString(field string) string {
	if v, ok := s[field].(string); ok {
		return v
	}
	return ""
}

// Decode unmarshals a state field into a typed value via JSON.
func Decode(s State, field string, out interface{}) error {
	v, ok := s[field]
	if !ok || v == nil {
		return fmt.Errorf("state field %q is not set", field)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode state field %q: %w", field, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode state field %q: %w", field, err)
	}
	return nil
}

// Has reports whether a field is set and non-nil.
func (s State) Has(field string) bool {
	v, ok := s[field]
	return ok && v != nil
}
