package chatconfig

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		param         string
		raw           string
		adminOverride bool
		want          string
		wantOverrode  bool
		wantErr       bool
	}{
		{name: "integer in range", param: "message_limit", raw: "50", want: "50"},
		{name: "integer at lower bound", param: "message_limit", raw: "1", want: "1"},
		{name: "integer above range", param: "message_limit", raw: "500", wantErr: true},
		{name: "integer above range with override", param: "message_limit", raw: "500",
			adminOverride: true, want: "500", wantOverrode: true},
		{name: "integer garbage", param: "message_limit", raw: "many", wantErr: true},

		{name: "decimal in range", param: "g_temperature", raw: "0.7", want: "0.7"},
		{name: "decimal canonicalised", param: "g_temperature", raw: "1.50", want: "1.5"},
		{name: "decimal out of range", param: "g_temperature", raw: "3.0", wantErr: true},
		{name: "negative penalty", param: "o_frequency_penalty", raw: "-1.5", want: "-1.5"},

		{name: "bool true", param: "process_markdown", raw: "true", want: "true"},
		{name: "bool numeric", param: "process_markdown", raw: "1", want: "true"},
		{name: "bool yes", param: "process_markdown", raw: "yes", want: "true"},
		{name: "bool no", param: "process_markdown", raw: "no", want: "false"},
		{name: "bool garbage", param: "process_markdown", raw: "maybe", wantErr: true},

		{name: "enum exact", param: "endpoint", raw: "openai", want: "openai"},
		{name: "enum case folded", param: "endpoint", raw: "OpenAI", want: "openai"},
		{name: "enum unknown", param: "endpoint", raw: "gemini", wantErr: true},
		{name: "enum unknown with override", param: "endpoint", raw: "gemini",
			adminOverride: true, want: "gemini", wantOverrode: true},

		{name: "free text", param: "o_model", raw: "llama-3.1-70b", want: "llama-3.1-70b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := paramIndex[tt.param]
			require.True(t, ok, "param %s not declared", tt.param)

			got, overrode, err := p.Validate(tt.raw, tt.adminOverride)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOverrode, overrode)
		})
	}
}

func TestValidatePrefixMatch(t *testing.T) {
	model, ok := paramIndex["model"]
	require.True(t, ok)

	// Unique prefix canonicalises to the full value.
	got, overrode, err := model.Validate("gemini-2.5-p", false)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", got)
	assert.False(t, overrode)

	// Ambiguous prefix is rejected with the candidate list.
	_, _, err = model.Validate("gemini-2.5-f", false)
	var ambiguous *AmbiguousValueError
	require.ErrorAs(t, err, &ambiguous)
	assert.Contains(t, ambiguous.Candidates, "gemini-2.5-flash")
	assert.Contains(t, ambiguous.Candidates, "gemini-2.5-flash-lite")

	// No match suggests the closest value.
	_, _, err = model.Validate("gemini-2.5-flsh", false)
	var invalid *InvalidValueError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "gemini-2.5-flash", invalid.Suggestion)
}

func TestLookup(t *testing.T) {
	p, err := Lookup("google", "model")
	require.NoError(t, err)
	assert.Equal(t, GroupGoogle, p.Group)

	// Common params resolve under every endpoint.
	for _, endpoint := range []string{"google", "openai"} {
		p, err := Lookup(endpoint, "message_limit")
		require.NoError(t, err)
		assert.Equal(t, GroupCommon, p.Group)
	}

	// Endpoint groups do not leak across.
	_, err = Lookup("openai", "g_temperature")
	var unknown *UnknownParamError
	require.ErrorAs(t, err, &unknown)

	// Misspelled names come back with a suggestion.
	_, err = Lookup("google", "mesage_limit")
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "message_limit", unknown.Suggestion)
}

func TestParams(t *testing.T) {
	google := Params("google")
	openai := Params("openai")

	for _, p := range google {
		assert.NotEqual(t, GroupOpenAI, p.Group)
	}
	for _, p := range openai {
		assert.NotEqual(t, GroupGoogle, p.Group)
	}

	// Declaration order: common first, then the endpoint group.
	seenEndpoint := false
	for _, p := range google {
		if p.Group != GroupCommon {
			seenEndpoint = true
		} else {
			assert.False(t, seenEndpoint, "common param %s after endpoint group", p.Name)
		}
	}
}

func TestColumns(t *testing.T) {
	cols := Columns()
	byName := map[string]int{}
	for i, c := range cols {
		byName[c.Name] = i
	}

	tests := []struct {
		name    string
		sqlType string
		dflt    string
	}{
		{"message_limit", "INTEGER", "25"},
		{"endpoint", "TEXT", "'google'"},
		{"g_temperature", "DOUBLE PRECISION", "1.0"},
		{"process_markdown", "BOOLEAN", "true"},
		{"o_key", "TEXT", ""},
	}
	for _, tt := range tests {
		i, ok := byName[tt.name]
		require.True(t, ok, "column %s missing", tt.name)
		assert.Equal(t, tt.sqlType, cols[i].SQLType)
		assert.Equal(t, tt.dflt, cols[i].Default)
	}

	assert.Equal(t, len(AllParams()), len(cols))
}

func TestDefaultAssignments(t *testing.T) {
	assignments := DefaultAssignments("google")
	byName := map[string]string{}
	for _, a := range assignments {
		byName[a.Name] = a.Value
	}

	assert.Equal(t, "gemini-2.5-flash", byName["model"])
	assert.Equal(t, "25", byName["message_limit"])

	// Protected and private params are never reset by presets.
	_, hasEndpoint := byName["endpoint"]
	assert.False(t, hasEndpoint)
	_, hasKey := byName["o_key"]
	assert.False(t, hasKey)
}

func TestLookupPreset(t *testing.T) {
	p, ok := LookupPreset("pro")
	require.True(t, ok)
	assert.NotEmpty(t, p.Assignments)

	_, ok = LookupPreset("nope")
	assert.False(t, ok)

	_, ok = LookupPreset("default")
	require.True(t, ok)

	// Preset values must validate against the schema.
	for _, preset := range Presets() {
		for _, a := range preset.Assignments {
			param, ok := paramIndex[a.Name]
			require.True(t, ok, "preset %s references unknown param %s", preset.Name, a.Name)
			_, _, err := param.Validate(a.Value, false)
			require.NoError(t, err, "preset %s value for %s", preset.Name, a.Name)
		}
	}
}

func TestUnknownParamErrorMessage(t *testing.T) {
	err := error(&UnknownParamError{Name: "foo"})
	assert.Contains(t, err.Error(), "foo")

	var unknown *UnknownParamError
	assert.True(t, errors.As(err, &unknown))
}
