package template

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleTemplate() Template {
	return Template{
		Name:         "test",
		UserPrompt:   "Title: {title}\nAuthors: {authors}\nBody: {content}\nKeep {this} verbatim.",
		OutputFormat: FormatMarkdown,
		Required:     []string{"title", "content"},
		Optional:     []string{"authors"},
	}
}

func TestRenderSubstitutesVariables(t *testing.T) {
	tpl := sampleTemplate()

	out, err := tpl.Render(map[string]string{
		"title":   "Attention Is All You Need",
		"content": "abstract...",
		"authors": "Vaswani et al.",
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out, "Title: Attention Is All You Need") {
		t.Errorf("title not substituted: %q", out)
	}
	if !strings.Contains(out, "Authors: Vaswani et al.") {
		t.Errorf("authors not substituted: %q", out)
	}
	// Undeclared placeholders stay verbatim.
	if !strings.Contains(out, "Keep {this} verbatim.") {
		t.Errorf("undeclared placeholder rewritten: %q", out)
	}
}

func TestRenderMissingOptionalRendersEmpty(t *testing.T) {
	tpl := sampleTemplate()

	out, err := tpl.Render(map[string]string{"title": "T", "content": "C"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out, "Authors: \n") {
		t.Errorf("optional variable should render empty: %q", out)
	}
}

func TestRenderReportsAllMissingVariables(t *testing.T) {
	tpl := sampleTemplate()

	_, err := tpl.Render(map[string]string{})

	var missing *MissingVariableError
	if !errors.As(err, &missing) {
		t.Fatalf("Render() error = %v, want *MissingVariableError", err)
	}
	if len(missing.Variables) != 2 {
		t.Fatalf("missing = %v, want both required variables", missing.Variables)
	}
	if missing.Variables[0] != "content" || missing.Variables[1] != "title" {
		t.Errorf("missing = %v", missing.Variables)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Template)
		wantErr bool
	}{
		{"valid", func(*Template) {}, false},
		{"empty name", func(tpl *Template) { tpl.Name = "" }, true},
		{"empty prompt", func(tpl *Template) { tpl.UserPrompt = " " }, true},
		{"bad format", func(tpl *Template) { tpl.OutputFormat = "xml" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := sampleTemplate()
			tt.mutate(&tpl)
			err := tpl.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuiltinsAreValid(t *testing.T) {
	for _, tpl := range Builtins() {
		if err := tpl.Validate(); err != nil {
			t.Errorf("builtin %q invalid: %v", tpl.Name, err)
		}
	}
}

func TestLoadMergesDirOverBuiltins(t *testing.T) {
	dir := t.TempDir()
	override := `name: paper-analysis
description: customized
system_prompt: custom system
user_prompt: "Analyze {title}: {content}"
output_format: markdown
required: [title, content]
`
	if err := os.WriteFile(filepath.Join(dir, "paper-analysis.yaml"), []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}

	lib, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tpl, err := lib.Get("paper-analysis")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tpl.Description != "customized" {
		t.Errorf("file should override builtin, got description %q", tpl.Description)
	}

	// Builtins not overridden survive.
	if _, err := lib.Get("structured-analysis"); err != nil {
		t.Errorf("builtin lost after Load: %v", err)
	}
}

func TestLoadMissingDirFallsBackToBuiltins(t *testing.T) {
	lib, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(lib.Names()) != len(Builtins()) {
		t.Errorf("Names() = %v", lib.Names())
	}
}
