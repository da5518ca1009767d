package tool

// Access is a declared capability level for network or filesystem use.
type Access string

const (
	AccessNone  Access = "none"
	AccessRead  Access = "read"
	AccessWrite Access = "write"
)

// Valid reports whether a is one of the known access levels.
func (a Access) Valid() bool {
	switch a {
	case AccessNone, AccessRead, AccessWrite:
		return true
	default:
		return false
	}
}

// DefaultIcon is used when a definition omits its display icon.
const DefaultIcon = "tool"

// Definition is the loosely-typed declaration a tool author publishes.
// It only becomes trusted after Validate reports no errors.
type Definition map[string]any

// RequiredDefinitionKeys lists the keys every definition must carry.
var RequiredDefinitionKeys = []string{
	"allow_filesystem",
	"allow_network",
	"description",
	"id",
	"input_schema",
	"name",
	"ralph_loop",
	"version",
}

// Contract is the validated, typed form of a Definition.
type Contract struct {
	ID              string         `json:"id" mapstructure:"id"`
	Name            string         `json:"name" mapstructure:"name"`
	Icon            string         `json:"icon" mapstructure:"icon"`
	Description     string         `json:"description" mapstructure:"description"`
	Version         string         `json:"version" mapstructure:"version"`
	RalphLoop       bool           `json:"ralph_loop" mapstructure:"ralph_loop"`
	AllowNetwork    Access         `json:"allow_network" mapstructure:"allow_network"`
	AllowFilesystem Access         `json:"allow_filesystem" mapstructure:"allow_filesystem"`
	InputSchema     map[string]any `json:"input_schema" mapstructure:"input_schema"`
}

// Definition renders the contract back into declaration form. Tool packages
// use it to publish a definition from a typed literal.
func (c Contract) Definition() Definition {
	icon := c.Icon
	if icon == "" {
		icon = DefaultIcon
	}
	return Definition{
		"id":               c.ID,
		"name":             c.Name,
		"icon":             icon,
		"description":      c.Description,
		"version":          c.Version,
		"ralph_loop":       c.RalphLoop,
		"allow_network":    string(c.AllowNetwork),
		"allow_filesystem": string(c.AllowFilesystem),
		"input_schema":     cloneMap(c.InputSchema),
	}
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneMap(typed)
	case Definition:
		return cloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = cloneValue(typed[i])
		}
		return out
	case []string:
		out := make([]string, len(typed))
		copy(out, typed)
		return out
	default:
		return v
	}
}
