package chatconfig

// Preset is a named bag of parameter assignments applied atomically by the
// preset command. Assignments touching the inactive endpoint group are
// skipped at application time, and endpoint switches need a global admin.
type Preset struct {
	Name        string
	Description string
	Assignments []Assignment
}

var presets = []*Preset{
	{
		Name:        "default",
		Description: "Reset common and active endpoint parameters to defaults",
	},
	{
		Name:        "pro",
		Description: "Gemini Pro with visible reasoning",
		Assignments: []Assignment{
			{Name: "endpoint", Value: "google"},
			{Name: "model", Value: "gemini-2.5-pro"},
			{Name: "show_thinking", Value: "true"},
		},
	},
	{
		Name:        "flash",
		Description: "Fast Gemini Flash defaults",
		Assignments: []Assignment{
			{Name: "endpoint", Value: "google"},
			{Name: "model", Value: "gemini-2.5-flash"},
			{Name: "show_thinking", Value: "false"},
		},
	},
	{
		Name:        "gpt",
		Description: "OpenAI-compatible endpoint with gpt-4o",
		Assignments: []Assignment{
			{Name: "endpoint", Value: "openai"},
			{Name: "o_model", Value: "gpt-4o"},
		},
	},
}

// Presets returns the built-in presets in display order.
func Presets() []*Preset {
	return presets
}

// LookupPreset resolves a preset by name.
func LookupPreset(name string) (*Preset, bool) {
	for _, p := range presets {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// DefaultAssignments expands the default preset for an endpoint: every
// common and endpoint-group parameter with a declared default, excluding
// protected and private ones.
func DefaultAssignments(endpoint string) []Assignment {
	var assignments []Assignment
	for _, p := range Params(endpoint) {
		if p.Protected || p.Private || p.Default == "" {
			continue
		}
		assignments = append(assignments, Assignment{Name: p.Name, Value: p.Default})
	}
	return assignments
}
