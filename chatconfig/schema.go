package chatconfig

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/hrygo/mynah/store"
)

// Type is the value type of a parameter.
type Type string

const (
	TypeInteger Type = "integer"
	TypeDecimal Type = "decimal"
	TypeBoolean Type = "boolean"
	TypeText    Type = "text"
)

// Group scopes a parameter to an endpoint. Common parameters apply to every
// chat; endpoint groups only surface when that endpoint is selected.
type Group string

const (
	GroupCommon Group = "common"
	GroupGoogle Group = "google"
	GroupOpenAI Group = "openai"
)

// Param describes one chat configuration parameter. The declaration drives
// column migration, validation and the settings command surface.
type Param struct {
	Name        string
	Group       Group
	Type        Type
	Description string

	// Default is the canonical text default; empty means NULL, read as the
	// process-wide default by the consumer.
	Default string

	// Min/Max bound integer and decimal values when HasRange is set.
	Min, Max float64
	HasRange bool

	// Enum lists the accepted values for enumerable text parameters.
	// PrefixMatch additionally accepts any unambiguous prefix of a value.
	Enum        []string
	PrefixMatch bool

	// Protected parameters can only be changed by global bot admins.
	Protected bool
	// Private parameters never display their value and are set via DM.
	Private bool
	// Sealed parameters are encrypted at rest.
	Sealed bool
	// Advanced parameters are hidden unless show_advanced_settings is on.
	Advanced bool
}

// SQLType returns the column type a parameter maps to.
func (p *Param) SQLType() string {
	switch p.Type {
	case TypeInteger:
		return "INTEGER"
	case TypeDecimal:
		return "DOUBLE PRECISION"
	case TypeBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// DefaultLiteral returns the SQL default expression, or "" for NULL.
func (p *Param) DefaultLiteral() string {
	if p.Default == "" {
		return ""
	}
	if p.Type == TypeText {
		return "'" + strings.ReplaceAll(p.Default, "'", "''") + "'"
	}
	return p.Default
}

// AcceptedValues renders the accepted range or enum for display.
func (p *Param) AcceptedValues() string {
	switch {
	case len(p.Enum) > 0:
		return strings.Join(p.Enum, ", ")
	case p.HasRange && p.Type == TypeInteger:
		return fmt.Sprintf("%d-%d", int64(p.Min), int64(p.Max))
	case p.HasRange:
		return fmt.Sprintf("%s-%s", formatDecimal(p.Min), formatDecimal(p.Max))
	case p.Type == TypeBoolean:
		return "true, false"
	default:
		return ""
	}
}

var googleModels = []string{
	"gemini-2.5-pro",
	"gemini-2.5-flash",
	"gemini-2.5-flash-lite",
	"gemini-3-pro-preview",
	"gemini-3-flash-preview",
}

// params is the static schema. Order matters: the settings command lists
// parameters in declaration order, common group first.
var params = []*Param{
	// Common group.
	{Name: "message_limit", Group: GroupCommon, Type: TypeInteger, Default: "25",
		Min: 1, Max: 200, HasRange: true,
		Description: "Maximum number of messages kept in the bot's memory"},
	{Name: "endpoint", Group: GroupCommon, Type: TypeText, Default: "google",
		Enum: []string{"google", "openai"}, Protected: true,
		Description: "Generation backend used for replies"},
	{Name: "token_limit", Group: GroupCommon, Type: TypeInteger, Default: "0",
		Min: 0, Max: 1_000_000, HasRange: true, Protected: true,
		Description: "Conversation token ceiling, 0 disables the check"},
	{Name: "token_limit_action", Group: GroupCommon, Type: TypeText, Default: "warn",
		Enum: []string{"warn", "block"}, Protected: true,
		Description: "What to do when the token limit is exceeded"},
	{Name: "max_requests_per_hour", Group: GroupCommon, Type: TypeInteger, Default: "0",
		Min: 0, Max: 1000, HasRange: true, Protected: true,
		Description: "Hourly generation cap per chat, 0 disables the limit"},
	{Name: "media_context_max_depth", Group: GroupCommon, Type: TypeInteger, Default: "2",
		Min: 0, Max: 10, HasRange: true,
		Description: "How many reply hops to search for an attached file"},
	{Name: "process_markdown", Group: GroupCommon, Type: TypeBoolean, Default: "true",
		Description: "Render model output as Markdown"},
	{Name: "add_reply_to", Group: GroupCommon, Type: TypeBoolean, Default: "true",
		Description: "Include quoted reply snippets in the prompt"},
	{Name: "add_system_messages", Group: GroupCommon, Type: TypeBoolean, Default: "true",
		Description: "Include /system instructions in the prompt"},
	{Name: "show_error_messages", Group: GroupCommon, Type: TypeBoolean, Default: "true",
		Description: "Show generation errors in the chat"},
	{Name: "memory_alter_permission", Group: GroupCommon, Type: TypeText, Default: "admins",
		Enum: []string{"admins", "everyone"},
		Description: "Who may edit the bot's memory (/forget, /replace, /system)"},
	{Name: "reset_permission", Group: GroupCommon, Type: TypeText, Default: "everyone",
		Enum: []string{"admins", "everyone"},
		Description: "Who may use /reset"},
	{Name: "show_advanced_settings", Group: GroupCommon, Type: TypeBoolean, Default: "false",
		Advanced: true,
		Description: "List advanced parameters in /settings"},

	// Google group.
	{Name: "model", Group: GroupGoogle, Type: TypeText, Default: "gemini-2.5-flash",
		Enum: googleModels, PrefixMatch: true,
		Description: "Gemini model used for generation"},
	{Name: "g_temperature", Group: GroupGoogle, Type: TypeDecimal, Default: "1.0",
		Min: 0, Max: 2, HasRange: true,
		Description: "Sampling temperature"},
	{Name: "g_top_p", Group: GroupGoogle, Type: TypeDecimal, Default: "0.95",
		Min: 0, Max: 1, HasRange: true,
		Description: "Nucleus sampling mass"},
	{Name: "g_top_k", Group: GroupGoogle, Type: TypeInteger, Default: "40",
		Min: 0, Max: 64, HasRange: true,
		Description: "Top-k sampling cutoff"},
	{Name: "max_output_tokens", Group: GroupGoogle, Type: TypeInteger, Default: "8192",
		Min: 1, Max: 65536, HasRange: true,
		Description: "Response length ceiling in tokens"},
	{Name: "show_thinking", Group: GroupGoogle, Type: TypeBoolean, Default: "false",
		Description: "Append the model's reasoning to replies"},
	{Name: "grounding", Group: GroupGoogle, Type: TypeBoolean, Default: "false",
		Advanced: true,
		Description: "Attach Google Search grounding (needs a billing key)"},
	{Name: "g_dynamic_threshold", Group: GroupGoogle, Type: TypeDecimal, Default: "0.3",
		Min: 0, Max: 1, HasRange: true, Advanced: true,
		Description: "Grounding dynamic retrieval threshold"},
	{Name: "code_execution", Group: GroupGoogle, Type: TypeBoolean, Default: "false",
		Advanced: true,
		Description: "Attach the code execution tool"},

	// OpenAI group.
	{Name: "o_model", Group: GroupOpenAI, Type: TypeText, Default: "gpt-4o",
		Description: "Model name sent to the OpenAI-compatible endpoint"},
	{Name: "o_url", Group: GroupOpenAI, Type: TypeText, Default: "",
		Private:     true,
		Description: "Endpoint base URL, empty uses the process default"},
	{Name: "o_key", Group: GroupOpenAI, Type: TypeText, Default: "",
		Private: true, Sealed: true,
		Description: "API key, empty uses the process default"},
	{Name: "o_timeout", Group: GroupOpenAI, Type: TypeInteger, Default: "120",
		Min: 1, Max: 600, HasRange: true,
		Description: "Request timeout in seconds"},
	{Name: "o_temperature", Group: GroupOpenAI, Type: TypeDecimal, Default: "1.0",
		Min: 0, Max: 2, HasRange: true,
		Description: "Sampling temperature"},
	{Name: "o_top_p", Group: GroupOpenAI, Type: TypeDecimal, Default: "1.0",
		Min: 0, Max: 1, HasRange: true,
		Description: "Nucleus sampling mass"},
	{Name: "o_frequency_penalty", Group: GroupOpenAI, Type: TypeDecimal, Default: "0",
		Min: -2, Max: 2, HasRange: true,
		Description: "Frequency penalty"},
	{Name: "o_presence_penalty", Group: GroupOpenAI, Type: TypeDecimal, Default: "0",
		Min: -2, Max: 2, HasRange: true,
		Description: "Presence penalty"},
	{Name: "o_add_system_prompt", Group: GroupOpenAI, Type: TypeBoolean, Default: "true",
		Description: "Prepend the system prompt template"},
	{Name: "o_clarify_target_message", Group: GroupOpenAI, Type: TypeBoolean, Default: "false",
		Description: "Restate the trigger message at the end of the prompt"},
	{Name: "o_vision", Group: GroupOpenAI, Type: TypeBoolean, Default: "false",
		Description: "Attach photos as image_url parts"},
	{Name: "o_log_prompt", Group: GroupOpenAI, Type: TypeBoolean, Default: "false",
		Advanced:    true,
		Description: "Log assembled prompts at debug level"},
	{Name: "o_auto_fallback", Group: GroupOpenAI, Type: TypeBoolean, Default: "false",
		Description: "Retry failed generations through the Google backend"},
}

var paramIndex = func() map[string]*Param {
	m := make(map[string]*Param, len(params))
	for _, p := range params {
		m[p.Name] = p
	}
	return m
}()

// Params returns the common parameters plus the group for the endpoint, in
// declaration order.
func Params(endpoint string) []*Param {
	var list []*Param
	for _, p := range params {
		if p.Group == GroupCommon || string(p.Group) == endpoint {
			list = append(list, p)
		}
	}
	return list
}

// AllParams returns every declared parameter regardless of endpoint.
func AllParams() []*Param {
	return params
}

// Lookup resolves a parameter name within the common group and the active
// endpoint group. Unknown names carry a closest-name suggestion.
func Lookup(endpoint, name string) (*Param, error) {
	name = strings.ToLower(name)
	p, ok := paramIndex[name]
	if ok && (p.Group == GroupCommon || string(p.Group) == endpoint) {
		return p, nil
	}
	return nil, &UnknownParamError{Name: name, Suggestion: closestName(endpoint, name)}
}

// LookupAny resolves a parameter name across every group. Used when the
// parameter was already validated against an endpoint, such as resuming a
// private set over DM.
func LookupAny(name string) (*Param, bool) {
	p, ok := paramIndex[strings.ToLower(name)]
	return p, ok
}

// Columns maps the schema onto migration column declarations.
func Columns() []store.ConfigColumn {
	cols := make([]store.ConfigColumn, 0, len(params))
	for _, p := range params {
		cols = append(cols, store.ConfigColumn{
			Name:    p.Name,
			SQLType: p.SQLType(),
			Default: p.DefaultLiteral(),
		})
	}
	return cols
}

// Validate parses and canonicalises a raw value for the parameter. Enumerable
// values accept a unique prefix and are canonicalised to the full value.
// adminOverride admits out-of-range and out-of-enum values; the returned flag
// reports that the override was used.
func (p *Param) Validate(raw string, adminOverride bool) (canonical string, overrode bool, err error) {
	raw = strings.TrimSpace(raw)

	switch p.Type {
	case TypeInteger:
		v, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			return "", false, &InvalidValueError{Param: p, Reason: "not an integer"}
		}
		if p.HasRange && (float64(v) < p.Min || float64(v) > p.Max) {
			if !adminOverride {
				return "", false, &InvalidValueError{Param: p, Reason: "out of range " + p.AcceptedValues()}
			}
			overrode = true
		}
		return strconv.FormatInt(v, 10), overrode, nil

	case TypeDecimal:
		v, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			return "", false, &InvalidValueError{Param: p, Reason: "not a number"}
		}
		if p.HasRange && (v < p.Min || v > p.Max) {
			if !adminOverride {
				return "", false, &InvalidValueError{Param: p, Reason: "out of range " + p.AcceptedValues()}
			}
			overrode = true
		}
		return formatDecimal(v), overrode, nil

	case TypeBoolean:
		v, perr := parseBool(raw)
		if perr != nil {
			return "", false, &InvalidValueError{Param: p, Reason: "expected true or false"}
		}
		return strconv.FormatBool(v), false, nil

	default:
		if len(p.Enum) == 0 {
			return raw, false, nil
		}
		value := strings.ToLower(raw)
		match, merr := matchEnum(value, p.Enum, p.PrefixMatch)
		if merr == nil {
			return match, false, nil
		}
		if adminOverride {
			return value, true, nil
		}
		return "", false, merr.withParam(p)
	}
}

// matchEnum resolves a value against an enum, optionally by unique prefix.
func matchEnum(value string, enum []string, prefix bool) (string, *enumError) {
	var candidates []string
	for _, e := range enum {
		if e == value {
			return e, nil
		}
		if prefix && strings.HasPrefix(e, value) {
			candidates = append(candidates, e)
		}
	}
	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return "", &enumError{suggestion: closestString(value, enum)}
	default:
		return "", &enumError{candidates: candidates}
	}
}

type enumError struct {
	candidates []string
	suggestion string
}

func (e *enumError) withParam(p *Param) error {
	if len(e.candidates) > 0 {
		return &AmbiguousValueError{Param: p, Candidates: e.candidates}
	}
	return &InvalidValueError{Param: p, Reason: "not in accepted values", Suggestion: e.suggestion}
}

// parseBool accepts the spellings users actually type plus the 1/0 form
// SQLite stores booleans as.
func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// closestString picks the candidate with the smallest edit distance, or ""
// when nothing is reasonably close.
func closestString(value string, candidates []string) string {
	best, bestDist := "", -1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(value, c)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if best == "" || bestDist > len(best) {
		return ""
	}
	return best
}

func closestName(endpoint, name string) string {
	var names []string
	for _, p := range Params(endpoint) {
		names = append(names, p.Name)
	}
	return closestString(name, names)
}
