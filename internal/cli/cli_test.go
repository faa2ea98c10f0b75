package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetsmith/internal/mapping"
	"github.com/JonMunkholm/sheetsmith/internal/validation"
)

const contactsCSV = "First Name,Last Name,Email Address,Phone,Zip\n" +
	"john,doe,john.doe@gmial.com,555.456.7890,1234\n" +
	"Ann,Lee,invalid-email,123,02134\n" +
	"short,row\n"

// isolateEnv clears the variables a developer machine might carry.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LLM_API_KEY", "OPENROUTER_API_KEY", "MAPPING_STRATEGY", "MAPPING_SCHEMA",
		"SCHEMA_FILE", "RULES_FILE",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("LOG_LEVEL", "error")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	isolateEnv(t)

	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--env-file="}, args...))
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestMap(t *testing.T) {
	path := writeFile(t, "contacts.csv", contactsCSV)

	out, _, err := run(t, "map", path)
	require.NoError(t, err)

	assert.Contains(t, out, "contacts.csv: 2 rows, 5 columns, schema contacts")
	assert.Contains(t, out, "dropped 1 malformed rows")
	assert.Contains(t, out, "SOURCE")
	assert.Regexp(t, `Email Address\s+email\s+`, out)
	assert.NotContains(t, out, "unmapped:")
}

func TestMap_JSON(t *testing.T) {
	path := writeFile(t, "contacts.csv", contactsCSV)

	out, _, err := run(t, "--json", "map", path)
	require.NoError(t, err)

	var got struct {
		RowCount int                     `json:"rowCount"`
		Mappings []mapping.ColumnMapping `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 2, got.RowCount)
	assert.Equal(t, []string{"first_name", "last_name", "email", "phone", "zip_code"}, mapping.Targets(got.Mappings))
}

func TestMap_ProviderWithoutKey(t *testing.T) {
	path := writeFile(t, "contacts.csv", contactsCSV)

	_, _, err := run(t, "--strategy", "provider", "map", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_API_KEY")

	_, _, err = run(t, "--strategy", "magic", "map", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPPING_STRATEGY")
}

func TestValidate(t *testing.T) {
	path := writeFile(t, "contacts.csv", contactsCSV)

	out, _, err := run(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2 rows checked: 2 errors, 2 warnings")
	assert.Contains(t, out, `"invalid-email"`)

	_, _, err = run(t, "validate", "--strict", path)
	require.Error(t, err)
	assert.Equal(t, "2 validation errors", err.Error())
}

func TestValidate_JSON(t *testing.T) {
	path := writeFile(t, "contacts.csv", contactsCSV)

	out, _, err := run(t, "--json", "validate", path)
	require.NoError(t, err)

	var rep validation.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Len(t, rep.Errors, 2)
	assert.Len(t, rep.Warnings, 2)
}

func TestClean(t *testing.T) {
	path := writeFile(t, "contacts.csv", contactsCSV)

	out, errOut, err := run(t, "clean", path)
	require.NoError(t, err)
	assert.Equal(t, "first_name,last_name,email,phone,zip_code\n"+
		"John,Doe,john.doe@gmail.com,+1-555-456-7890,1234\n"+
		"Ann,Lee,invalid-email,123,02134", out)
	assert.Contains(t, errOut, "cleaned 2 rows, 4 changes")
	assert.Contains(t, errOut, "email=1")
}

func TestClean_OutputFile(t *testing.T) {
	path := writeFile(t, "contacts.csv", contactsCSV)
	dest := filepath.Join(t.TempDir(), "out.json")

	out, _, err := run(t, "clean", path, "-o", dest, "--format", "json")
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	var rows []map[string]string
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "John", rows[0]["first_name"])
}

func TestClean_BadFormat(t *testing.T) {
	path := writeFile(t, "contacts.csv", contactsCSV)

	_, _, err := run(t, "clean", path, "--format", "pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdf")
}

func TestSchemas(t *testing.T) {
	out, _, err := run(t, "schemas")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, out, "contacts")
}

func TestMissingFile(t *testing.T) {
	_, _, err := run(t, "map", filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestArgs(t *testing.T) {
	_, _, err := run(t, "map")
	assert.Error(t, err)
}
