// Package template renders analysis prompts and parses raw model output
// back into structured result fields.
package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// OutputFormat declares how a template expects the model to answer.
type OutputFormat string

const (
	FormatMarkdown OutputFormat = "markdown"
	FormatJSON     OutputFormat = "json"
)

// MissingVariableError reports every absent required variable, not just
// the first. Template misuse is a configuration bug and never retried.
type MissingVariableError struct {
	Template  string
	Variables []string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("template %q: missing required variables: %s",
		e.Template, strings.Join(e.Variables, ", "))
}

// Template is a named analysis prompt with a declared output format.
type Template struct {
	Name               string       `yaml:"name"`
	Description        string       `yaml:"description,omitempty"`
	SystemPrompt       string       `yaml:"system_prompt"`
	UserPrompt         string       `yaml:"user_prompt"`
	OutputFormat       OutputFormat `yaml:"output_format"`
	SupportsMultimodal bool         `yaml:"multimodal"`
	Required           []string     `yaml:"required"`
	Optional           []string     `yaml:"optional,omitempty"`
}

var placeholderRe = regexp.MustCompile(`\{([a-z][a-z0-9_]*)\}`)

// Render substitutes variables into the user-prompt body. All required
// variables must be present; absent optional variables render empty.
// Placeholders that are neither required nor optional are left verbatim.
func (t *Template) Render(vars map[string]string) (string, error) {
	var missing []string
	for _, name := range t.Required {
		if v, ok := vars[name]; !ok || v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", &MissingVariableError{Template: t.Name, Variables: missing}
	}

	declared := make(map[string]bool, len(t.Required)+len(t.Optional))
	for _, name := range t.Required {
		declared[name] = true
	}
	for _, name := range t.Optional {
		declared[name] = true
	}

	return placeholderRe.ReplaceAllStringFunc(t.UserPrompt, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		if declared[name] {
			return ""
		}
		return m
	}), nil
}

// Validate checks the template definition itself.
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("template without a name")
	}
	if strings.TrimSpace(t.UserPrompt) == "" {
		return fmt.Errorf("template %q: empty user prompt", t.Name)
	}
	switch t.OutputFormat {
	case FormatMarkdown, FormatJSON:
	default:
		return fmt.Errorf("template %q: unsupported output format %q", t.Name, t.OutputFormat)
	}
	return nil
}
