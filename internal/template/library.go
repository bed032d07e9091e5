package template

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Builtins returns the templates that ship with the binary. Files in the
// template directory may override them by name.
func Builtins() []Template {
	return []Template{
		{
			Name:               "paper-analysis",
			Description:        "Markdown analysis of a research paper: summary, key points, methodology, conclusions",
			OutputFormat:       FormatMarkdown,
			SupportsMultimodal: true,
			Required:           []string{"title", "content"},
			Optional:           []string{"authors", "publication", "year", "tables"},
			SystemPrompt: `You are a research analyst. You read academic papers carefully and produce
faithful, structured analyses. Base every statement on the provided content;
never invent results, numbers, or citations. When figures are attached,
describe what they show and how they support the paper's claims.`,
			UserPrompt: `Analyze the following research paper.

Title: {title}
Authors: {authors}
Publication: {publication} {year}

Respond in markdown with exactly these sections:

## Summary
A 2-3 paragraph summary of the paper.

## Key Points
A bulleted list of the paper's most important findings.

## Methodology
How the authors conducted their work.

## Conclusions
What the authors conclude and what limitations they acknowledge.

Paper content:
{content}

Detected tables:
{tables}`,
		},
		{
			Name:               "structured-analysis",
			Description:        "JSON analysis for machine consumption",
			OutputFormat:       FormatJSON,
			SupportsMultimodal: false,
			Required:           []string{"title", "content"},
			Optional:           []string{"authors"},
			SystemPrompt: `You are a research analyst producing machine-readable output. Respond with a
single JSON object and nothing else: no prose, no code fences.`,
			UserPrompt: `Analyze the research paper "{title}" by {authors} and answer with a JSON
object with exactly these keys:
  "summary": string, 2-3 paragraph summary
  "key_points": array of strings, the most important findings
  "methodology": string, how the work was conducted
  "conclusions": string, conclusions and acknowledged limitations

Paper content:
{content}`,
		},
	}
}

// Library resolves template names to definitions.
type Library struct {
	byName map[string]Template
}

// NewLibrary builds a library from the given templates. Later templates
// override earlier ones with the same name.
func NewLibrary(templates ...Template) (*Library, error) {
	lib := &Library{byName: make(map[string]Template, len(templates))}
	for _, t := range templates {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		lib.byName[t.Name] = t
	}
	return lib, nil
}

// Load builds a library of the builtins plus any YAML definitions under
// dir. A missing directory is fine: builtins only.
func Load(dir string) (*Library, error) {
	templates := Builtins()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return NewLibrary(templates...)
		}
		return nil, fmt.Errorf("read template dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", path, err)
		}
		var t Template
		if err := yaml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", path, err)
		}
		templates = append(templates, t)
	}

	return NewLibrary(templates...)
}

// Get resolves a template by name.
func (l *Library) Get(name string) (Template, error) {
	t, ok := l.byName[name]
	if !ok {
		return Template{}, fmt.Errorf("template %q not found", name)
	}
	return t, nil
}

// Names lists the available template names, sorted.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.byName))
	for name := range l.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
