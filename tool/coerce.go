package tool

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Coerce converts a definition that already passed Validate into a Contract.
// It trusts that precondition and performs no re-validation. The returned
// input schema is a deep copy and never aliases def.
func Coerce(def Definition) (Contract, error) {
	contract := Contract{Icon: DefaultIcon}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &contract,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Contract{}, fmt.Errorf("tool: build contract decoder: %w", err)
	}
	if err := decoder.Decode(map[string]any(def)); err != nil {
		return Contract{}, fmt.Errorf("tool: coerce definition: %w", err)
	}

	schema, _ := asDefinition(def["input_schema"])
	contract.InputSchema = cloneMap(schema)
	if contract.InputSchema == nil {
		contract.InputSchema = map[string]any{}
	}
	return contract, nil
}
