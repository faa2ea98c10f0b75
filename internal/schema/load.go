package schema

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// file is the on-disk layout of a schema file:
//
//	schemas:
//	  - name: leads
//	    label: Sales leads
//	    fields:
//	      - name: email
//	        type: email
//	        required: true
type file struct {
	Schemas []Schema `yaml:"schemas"`
}

// Parse decodes schemas from YAML. Fields without a type default to string.
// Every schema is validated; the first invalid one fails the whole file.
func Parse(data []byte) ([]Schema, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse schema file: %w", err)
	}
	if len(f.Schemas) == 0 {
		return nil, errors.New("schema file declares no schemas")
	}

	seen := make(map[string]bool, len(f.Schemas))
	for i := range f.Schemas {
		if seen[f.Schemas[i].Name] {
			return nil, fmt.Errorf("%w: %s declared twice", ErrDuplicate, f.Schemas[i].Name)
		}
		seen[f.Schemas[i].Name] = true
		for j := range f.Schemas[i].Fields {
			if f.Schemas[i].Fields[j].Type == "" {
				f.Schemas[i].Fields[j].Type = TypeString
			}
		}
		if err := f.Schemas[i].Validate(); err != nil {
			return nil, err
		}
	}
	return f.Schemas, nil
}

// LoadFile reads a YAML schema file and adds every schema in it to the
// registry. Nothing is registered if any schema is invalid or clashes with
// an existing name.
func LoadFile(path string) ([]Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}

	schemas, err := Parse(data)
	if err != nil {
		return nil, err
	}

	for _, s := range schemas {
		if _, exists := Get(s.Name); exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, s.Name)
		}
	}
	for _, s := range schemas {
		if err := Add(s); err != nil {
			return nil, err
		}
	}
	return schemas, nil
}
