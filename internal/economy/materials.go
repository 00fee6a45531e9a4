package economy

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// MaterialsKind tags which shape a building's input materials take.
type MaterialsKind uint8

const (
	MaterialsNone         MaterialsKind = iota // No inputs
	MaterialsFixed                             // One mapping consumed atomically
	MaterialsAlternatives                      // One substitutable input per entry
)

// Materials is the input spec of a building: nothing, a fixed mapping, or a
// list of alternative bundles where any one resource of each entry will do.
type Materials struct {
	Kind         MaterialsKind
	Fixed        Resources
	Alternatives []Bundle
}

// FixedMaterials returns materials consumed as one atomic mapping.
func FixedMaterials(r Resources) Materials {
	return Materials{Kind: MaterialsFixed, Fixed: r}
}

// AlternativeMaterials returns materials where each entry is satisfied by
// the first alternative the settlement holds enough of.
func AlternativeMaterials(entries ...Bundle) Materials {
	return Materials{Kind: MaterialsAlternatives, Alternatives: entries}
}

// IsZero reports whether no materials are configured.
func (m Materials) IsZero() bool {
	return m.Kind == MaterialsNone
}

// UnmarshalYAML decodes either a mapping (fixed) or a sequence of mappings
// (alternatives). Key order inside each alternative is preserved.
func (m *Materials) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		var fixed Resources
		if err := node.Decode(&fixed); err != nil {
			return fmt.Errorf("fixed materials: %w", err)
		}
		*m = FixedMaterials(fixed)
		return nil
	case yaml.SequenceNode:
		entries := make([]Bundle, 0, len(node.Content))
		for i, item := range node.Content {
			if item.Kind != yaml.MappingNode {
				return fmt.Errorf("materials entry %d: expected a mapping at line %d", i, item.Line)
			}
			bundle := make(Bundle, 0, len(item.Content)/2)
			for j := 0; j+1 < len(item.Content); j += 2 {
				var amount int
				if err := item.Content[j+1].Decode(&amount); err != nil {
					return fmt.Errorf("materials entry %d, %s: %w", i, item.Content[j].Value, err)
				}
				bundle = append(bundle, Amount{Resource: item.Content[j].Value, Amount: amount})
			}
			entries = append(entries, bundle)
		}
		*m = AlternativeMaterials(entries...)
		return nil
	default:
		return fmt.Errorf("materials: expected a mapping or a sequence at line %d", node.Line)
	}
}

// MarshalJSON renders fixed materials as an object and alternatives as a
// list of ordered bundles.
func (m Materials) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case MaterialsFixed:
		return json.Marshal(m.Fixed)
	case MaterialsAlternatives:
		return json.Marshal(m.Alternatives)
	default:
		return []byte("null"), nil
	}
}
