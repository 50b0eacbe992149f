package output

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type modelEntry struct {
	Name string `yaml:"name"`
}

// ModelNames parses block as the list of model entries that follows
// `models:` and returns their names. An error means the block is not the
// YAML list dbt expects; callers treat that as a warning only.
func ModelNames(block string) ([]string, error) {
	var entries []modelEntry
	if err := yaml.Unmarshal([]byte(block), &entries); err != nil {
		return nil, fmt.Errorf("block is not a YAML list of models: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name != "" {
			names = append(names, e.Name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("block does not name any model")
	}
	return names, nil
}
