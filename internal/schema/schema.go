// Package schema defines the target schemas that uploaded columns are mapped
// onto, and a process-wide registry of them.
//
// Built-in schemas register themselves from init functions. Additional
// schemas can be loaded from a YAML file at startup (see LoadFile).
package schema

import (
	"errors"
	"fmt"
	"strings"
)

// SemanticType is the kind of data a target field holds.
type SemanticType string

const (
	TypeString  SemanticType = "string"
	TypeEmail   SemanticType = "email"
	TypePhone   SemanticType = "phone"
	TypeAddress SemanticType = "address"
)

// Valid reports whether t is a known semantic type.
func (t SemanticType) Valid() bool {
	switch t {
	case TypeString, TypeEmail, TypePhone, TypeAddress:
		return true
	}
	return false
}

// TargetField is one column of a target schema.
type TargetField struct {
	Name        string       `json:"name" yaml:"name"`
	Type        SemanticType `json:"semanticType" yaml:"type"`
	Required    bool         `json:"required" yaml:"required"`
	Description string       `json:"description,omitempty" yaml:"description"`
}

// Schema is a named, ordered list of target fields. Field order is
// significant: it breaks ties during mapping.
type Schema struct {
	Name        string        `json:"name" yaml:"name"`
	Label       string        `json:"label,omitempty" yaml:"label"`
	Description string        `json:"description,omitempty" yaml:"description"`
	Fields      []TargetField `json:"fields" yaml:"fields"`
}

// ErrInvalidSchema wraps every problem reported by Schema.Validate.
var ErrInvalidSchema = errors.New("invalid schema")

// Field returns the field with the given name.
func (s Schema) Field(name string) (TargetField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return TargetField{}, false
}

// Has reports whether the schema declares a field called name.
func (s Schema) Has(name string) bool {
	_, ok := s.Field(name)
	return ok
}

// FieldNames returns field names in declaration order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Required returns the names of required fields in declaration order.
func (s Schema) Required() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// Validate checks the schema has a name and uniquely named fields of known
// types. All problems are reported together.
func (s Schema) Validate() error {
	var errs []string
	if strings.TrimSpace(s.Name) == "" {
		errs = append(errs, "name is required")
	}
	if len(s.Fields) == 0 {
		errs = append(errs, "at least one field is required")
	}

	seen := make(map[string]bool, len(s.Fields))
	for i, f := range s.Fields {
		switch {
		case strings.TrimSpace(f.Name) == "":
			errs = append(errs, fmt.Sprintf("field %d: name is required", i+1))
		case seen[f.Name]:
			errs = append(errs, fmt.Sprintf("field %q: declared twice", f.Name))
		}
		seen[f.Name] = true
		if !f.Type.Valid() {
			errs = append(errs, fmt.Sprintf("field %q: unknown type %q", f.Name, f.Type))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w %q:\n  - %s", ErrInvalidSchema, s.Name, strings.Join(errs, "\n  - "))
	}
	return nil
}
