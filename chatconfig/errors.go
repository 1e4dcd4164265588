package chatconfig

import (
	"fmt"
	"strings"
)

// UnknownParamError reports a parameter name outside the active schema.
type UnknownParamError struct {
	Name       string
	Suggestion string
}

func (e *UnknownParamError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown parameter %q, did you mean %q", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("unknown parameter %q", e.Name)
}

// InvalidValueError reports a value that failed type or range validation.
type InvalidValueError struct {
	Param      *Param
	Reason     string
	Suggestion string
}

func (e *InvalidValueError) Error() string {
	msg := fmt.Sprintf("invalid value for %s: %s", e.Param.Name, e.Reason)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(", did you mean %q", e.Suggestion)
	}
	return msg
}

// AmbiguousValueError reports a prefix that matches more than one enum value.
type AmbiguousValueError struct {
	Param      *Param
	Candidates []string
}

func (e *AmbiguousValueError) Error() string {
	return fmt.Sprintf("ambiguous value for %s, matches: %s",
		e.Param.Name, strings.Join(e.Candidates, ", "))
}
