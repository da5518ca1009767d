package tool

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// Severity defines issue severity produced by definition rules.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes attached to validation findings.
const (
	IssueCodeNotMapping       = "DEF_NOT_MAPPING"
	IssueCodeMissingKeys      = "DEF_MISSING_KEYS"
	IssueCodeFieldType        = "DEF_FIELD_TYPE"
	IssueCodeAccessLevel      = "DEF_ACCESS_LEVEL"
	IssueCodeSchemaType       = "DEF_SCHEMA_TYPE"
	IssueCodeSchemaProperties = "DEF_SCHEMA_PROPERTIES"
	IssueCodeMock             = "DEF_MOCK"
)

// Issue is a structured validation finding.
type Issue struct {
	Level   Severity `json:"level"`
	Message string   `json:"message"`
	Field   string   `json:"field,omitempty"`
	Code    string   `json:"code,omitempty"`
}

// ValidationResult aggregates the issues found for one definition.
type ValidationResult struct {
	OK     bool    `json:"ok"`
	Issues []Issue `json:"issues"`
}

// HasErrors returns true when at least one error-level issue exists.
func (r ValidationResult) HasErrors() bool {
	return len(r.Errors()) > 0
}

// Errors returns the error-level issues in order.
func (r ValidationResult) Errors() []Issue {
	return filterIssues(r.Issues, SeverityError)
}

// Warnings returns the warning-level issues in order.
func (r ValidationResult) Warnings() []Issue {
	return filterIssues(r.Issues, SeverityWarning)
}

func filterIssues(issues []Issue, level Severity) []Issue {
	var out []Issue
	for _, issue := range issues {
		if issue.Level == level {
			out = append(out, issue)
		}
	}
	return out
}

// DefinitionRule inspects a definition mapping and reports findings.
type DefinitionRule interface {
	CheckDefinition(def Definition) []Issue
}

// RuleFunc adapts a function to DefinitionRule.
type RuleFunc func(def Definition) []Issue

// CheckDefinition calls f(def).
func (f RuleFunc) CheckDefinition(def Definition) []Issue {
	return f(def)
}

// Pipeline runs definition rules in insertion order. The top-level mapping
// check always runs first and short-circuits the rest.
type Pipeline struct {
	rules []DefinitionRule
}

// AddRule appends a rule to the pipeline.
func (p *Pipeline) AddRule(rule DefinitionRule) {
	p.rules = append(p.rules, rule)
}

// Validate runs every rule against def. It never executes tool code.
func (p Pipeline) Validate(def any) ValidationResult {
	mapping, ok := asDefinition(def)
	if !ok {
		return ValidationResult{
			OK: false,
			Issues: []Issue{{
				Level:   SeverityError,
				Message: "TOOL_DEFINITION must be a dict",
				Code:    IssueCodeNotMapping,
			}},
		}
	}

	issues := make([]Issue, 0)
	for _, rule := range p.rules {
		issues = append(issues, rule.CheckDefinition(mapping)...)
	}
	result := ValidationResult{Issues: issues}
	result.OK = !result.HasErrors()
	return result
}

// DefaultPipeline returns the standard contract rules in their fixed order.
func DefaultPipeline() Pipeline {
	var p Pipeline
	p.AddRule(RuleFunc(checkRequiredKeys))
	p.AddRule(RuleFunc(checkStringFields))
	p.AddRule(RuleFunc(checkRalphLoop))
	p.AddRule(RuleFunc(checkAccessLevels))
	p.AddRule(RuleFunc(checkInputSchema))
	p.AddRule(RuleFunc(checkMock))
	return p
}

var defaultPipeline = DefaultPipeline()

// Validate checks a definition against the standard contract rules.
func Validate(def any) ValidationResult {
	return defaultPipeline.Validate(def)
}

// FormatIssues renders issues one per line as "ERROR: ..." or "WARN: ...".
func FormatIssues(issues []Issue) string {
	lines := make([]string, 0, len(issues))
	for _, issue := range issues {
		prefix := "WARN"
		if issue.Level == SeverityError {
			prefix = "ERROR"
		}
		lines = append(lines, prefix+": "+issue.Message)
	}
	return strings.Join(lines, "\n")
}

func checkRequiredKeys(def Definition) []Issue {
	var missing []string
	for _, key := range RequiredDefinitionKeys {
		if _, ok := def[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return []Issue{{
		Level:   SeverityError,
		Message: "Missing required TOOL_DEFINITION keys: " + strings.Join(missing, ", "),
		Code:    IssueCodeMissingKeys,
	}}
}

func checkStringFields(def Definition) []Issue {
	var issues []Issue
	for _, field := range []string{"id", "name", "description", "version"} {
		value, ok := def[field]
		if !ok {
			continue
		}
		if _, isString := value.(string); !isString {
			issues = append(issues, Issue{
				Level:   SeverityError,
				Message: fmt.Sprintf("TOOL_DEFINITION.%s must be a string", field),
				Field:   field,
				Code:    IssueCodeFieldType,
			})
		}
	}
	return issues
}

func checkRalphLoop(def Definition) []Issue {
	value, ok := def["ralph_loop"]
	if !ok {
		return nil
	}
	if _, isBool := value.(bool); isBool {
		return nil
	}
	return []Issue{{
		Level:   SeverityError,
		Message: "TOOL_DEFINITION.ralph_loop must be a boolean",
		Field:   "ralph_loop",
		Code:    IssueCodeFieldType,
	}}
}

func checkAccessLevels(def Definition) []Issue {
	var issues []Issue
	for _, key := range []string{"allow_network", "allow_filesystem"} {
		value, ok := def[key]
		if !ok {
			continue
		}
		level, isString := value.(string)
		if isString && Access(level).Valid() {
			continue
		}
		issues = append(issues, Issue{
			Level:   SeverityError,
			Message: fmt.Sprintf("TOOL_DEFINITION.%s must be one of: none|read|write", key),
			Field:   key,
			Code:    IssueCodeAccessLevel,
		})
	}
	return issues
}

func checkInputSchema(def Definition) []Issue {
	raw, ok := def["input_schema"]
	if !ok {
		return nil
	}
	schema, isMapping := asDefinition(raw)
	if !isMapping {
		return []Issue{{
			Level:   SeverityError,
			Message: "TOOL_DEFINITION.input_schema must be a dict",
			Field:   "input_schema",
			Code:    IssueCodeFieldType,
		}}
	}

	var issues []Issue
	if schemaType, _ := schema["type"].(string); schemaType != "object" {
		issues = append(issues, Issue{
			Level:   SeverityWarning,
			Message: "input_schema.type should be 'object'",
			Field:   "input_schema.type",
			Code:    IssueCodeSchemaType,
		})
	}
	if props, present := schema["properties"]; present && props != nil {
		if _, isMapping := asDefinition(props); !isMapping {
			issues = append(issues, Issue{
				Level:   SeverityError,
				Message: "input_schema.properties must be a dict when provided",
				Field:   "input_schema.properties",
				Code:    IssueCodeSchemaProperties,
			})
		}
	}
	return issues
}

func checkMock(def Definition) []Issue {
	if !truthy(def["mock"]) {
		return nil
	}
	return []Issue{{
		Level:   SeverityError,
		Message: "mock tools are not allowed",
		Field:   "mock",
		Code:    IssueCodeMock,
	}}
}

// asDefinition accepts the mapping shapes produced by JSON and YAML decoders.
func asDefinition(v any) (Definition, bool) {
	switch typed := v.(type) {
	case Definition:
		return typed, typed != nil
	case map[string]any:
		return Definition(typed), typed != nil
	case map[any]any:
		if typed == nil {
			return nil, false
		}
		out := make(Definition, len(typed))
		for key, value := range typed {
			name, ok := key.(string)
			if !ok {
				return nil, false
			}
			out[name] = value
		}
		return out, true
	default:
		return nil, false
	}
}

func truthy(v any) bool {
	if v == nil {
		return false
	}
	switch typed := v.(type) {
	case bool:
		return typed
	case string:
		return typed != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	default:
		return true
	}
}
