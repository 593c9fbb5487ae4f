package channels

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/KevinKickass/ThermoWatch/internal/types"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/channel-layout-v1.json
var channelLayoutSchemaJSON string

// Validator checks a layout against the embedded schema and then against
// the board rules the schema cannot express.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("channel-layout-v1.json",
		strings.NewReader(channelLayoutSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("channel-layout-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateLayout validates a JSON encoded channel layout.
func (v *Validator) ValidateLayout(data []byte) error {
	var layout interface{}
	if err := json.Unmarshal(data, &layout); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := v.schema.Validate(layout); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// CheckChannels rejects channel lists with an unknown family or where two
// channels share an index or a chip select line.
func (v *Validator) CheckChannels(defs []types.ChannelDefinition) error {
	indices := make(map[int]bool, len(defs))
	lines := make(map[string]int, len(defs))

	for _, def := range defs {
		if !def.Family.Valid() {
			return fmt.Errorf("channel %d: unknown family %q", def.Index, def.Family)
		}

		if indices[def.Index] {
			return fmt.Errorf("duplicate channel index %d", def.Index)
		}
		indices[def.Index] = true

		if other, exists := lines[def.ChipSelect]; exists {
			return fmt.Errorf("chip select %s used by channel %d and %d", def.ChipSelect, other, def.Index)
		}
		lines[def.ChipSelect] = def.Index
	}

	return nil
}
