package template

import (
	"bufio"
	"encoding/json"
	"strings"

	"paperlens/internal/models"
)

// Parse maps raw model output onto structured result fields according to
// the template's declared output format. Parsing never fails hard: a
// JSON response that does not parse degrades to raw text with empty
// structured fields, since the caller may still want it for review.
func (t *Template) Parse(raw string) *models.AnalysisResult {
	switch t.OutputFormat {
	case FormatJSON:
		return parseJSON(raw)
	default:
		return parseMarkdown(raw)
	}
}

// structuredOutput is the canonical JSON answer shape the builtin JSON
// template asks the model for.
type structuredOutput struct {
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points"`
	Methodology string   `json:"methodology"`
	Conclusions string   `json:"conclusions"`
}

func parseJSON(raw string) *models.AnalysisResult {
	result := &models.AnalysisResult{RawOutput: raw, Formatted: raw}

	var out structuredOutput
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &out); err != nil {
		// Recoverable degradation: keep the raw text, leave fields empty.
		return result
	}
	result.Summary = strings.TrimSpace(out.Summary)
	result.Methodology = strings.TrimSpace(out.Methodology)
	result.Conclusions = strings.TrimSpace(out.Conclusions)
	for _, p := range out.KeyPoints {
		if p = strings.TrimSpace(p); p != "" {
			result.KeyPoints = append(result.KeyPoints, p)
		}
	}
	return result
}

// stripCodeFence unwraps ```json ... ``` fences models like to add.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// section name buckets for markdown output. Unrecognized headings stay in
// the formatted output verbatim but populate no structured field.
func sectionField(heading string) string {
	h := strings.ToLower(strings.TrimSpace(heading))
	switch {
	case strings.Contains(h, "key point"), strings.Contains(h, "key finding"), strings.Contains(h, "highlights"):
		return "keypoints"
	case strings.Contains(h, "summary"), strings.Contains(h, "overview"):
		return "summary"
	case strings.Contains(h, "methodolog"), strings.Contains(h, "method"), strings.Contains(h, "approach"):
		return "methodology"
	case strings.Contains(h, "conclusion"):
		return "conclusions"
	default:
		return ""
	}
}

func parseMarkdown(raw string) *models.AnalysisResult {
	result := &models.AnalysisResult{RawOutput: raw, Formatted: raw}

	var field string
	var buf strings.Builder
	flush := func() {
		text := strings.TrimSpace(buf.String())
		buf.Reset()
		if text == "" {
			return
		}
		switch field {
		case "summary":
			result.Summary = text
		case "methodology":
			result.Methodology = text
		case "conclusions":
			result.Conclusions = text
		case "keypoints":
			for _, line := range strings.Split(text, "\n") {
				if point := stripBullet(line); point != "" {
					result.KeyPoints = append(result.KeyPoints, point)
				}
			}
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if heading, ok := headingTitle(line); ok {
			flush()
			field = sectionField(heading)
			continue
		}
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	flush()
	return result
}

// headingTitle returns the title of an ATX heading line.
func headingTitle(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	title := strings.TrimLeft(trimmed, "#")
	if title == trimmed || (title != "" && !strings.HasPrefix(title, " ")) {
		return "", false
	}
	return strings.TrimSpace(title), true
}

// stripBullet removes a leading list marker from one key-point line.
func stripBullet(line string) string {
	s := strings.TrimSpace(line)
	for _, marker := range []string{"- ", "* ", "• ", "+ "} {
		if strings.HasPrefix(s, marker) {
			return strings.TrimSpace(s[len(marker):])
		}
	}
	// Numbered lists: "1. point" / "12) point"
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return strings.TrimSpace(s[i+1:])
	}
	if s == "" {
		return ""
	}
	return s
}
