package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContacts_FieldOrder(t *testing.T) {
	s, ok := Get(DefaultSchema)
	require.True(t, ok, "contacts schema should be registered at init")

	assert.Equal(t, []string{
		"first_name", "last_name", "email", "phone", "address",
		"city", "state", "zip_code", "company", "country",
	}, s.FieldNames())
	assert.Equal(t, []string{"first_name", "last_name", "email"}, s.Required())

	f, ok := s.Field("phone")
	require.True(t, ok)
	assert.Equal(t, TypePhone, f.Type)
}

func TestSchema_Validate(t *testing.T) {
	tests := []struct {
		name    string
		schema  Schema
		wantErr bool
	}{
		{"valid", Schema{Name: "x", Fields: []TargetField{{Name: "a", Type: TypeString}}}, false},
		{"missing name", Schema{Fields: []TargetField{{Name: "a", Type: TypeString}}}, true},
		{"no fields", Schema{Name: "x"}, true},
		{"duplicate field", Schema{Name: "x", Fields: []TargetField{
			{Name: "a", Type: TypeString}, {Name: "a", Type: TypeEmail},
		}}, true},
		{"unknown type", Schema{Name: "x", Fields: []TargetField{{Name: "a", Type: "date"}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSchema)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistry_AddGetRemove(t *testing.T) {
	s := Schema{Name: "test_registry", Fields: []TargetField{{Name: "a", Type: TypeString}}}
	require.NoError(t, Add(s))
	t.Cleanup(func() { Remove(s.Name) })

	assert.ErrorIs(t, Add(s), ErrDuplicate)
	assert.Contains(t, Names(), "test_registry")

	got, err := Lookup("test_registry")
	require.NoError(t, err)
	got.Fields[0].Name = "mutated"

	again, _ := Get("test_registry")
	assert.Equal(t, "a", again.Fields[0].Name, "registry must hand out copies")

	_, err = Lookup("nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRegister_PanicsOnDuplicate(t *testing.T) {
	assert.Panics(t, func() { Register(Contacts()) })
}

func TestParse(t *testing.T) {
	data := []byte(`
schemas:
  - name: leads
    label: Sales leads
    fields:
      - name: email
        type: email
        required: true
      - name: full_name
`)
	schemas, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	assert.Equal(t, "leads", schemas[0].Name)
	assert.Equal(t, TypeString, schemas[0].Fields[1].Type)
	assert.True(t, schemas[0].Fields[0].Required)

	_, err = Parse([]byte("schemas: []"))
	assert.Error(t, err)

	_, err = Parse([]byte("schemas:\n  - name: a\n    fields: [{name: x, type: money}]"))
	assert.ErrorIs(t, err, ErrInvalidSchema)

	_, err = Parse([]byte("schemas:\n  - name: a\n    fields: [{name: x}]\n  - name: a\n    fields: [{name: y}]"))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schemas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
schemas:
  - name: test_vendors
    fields:
      - {name: company, type: string, required: true}
      - {name: phone, type: phone}
`), 0o600))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { Remove("test_vendors") })
	require.Len(t, loaded, 1)

	s, ok := Get("test_vendors")
	require.True(t, ok)
	assert.Equal(t, []string{"company", "phone"}, s.FieldNames())

	_, err = LoadFile(path)
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
