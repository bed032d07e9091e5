package workflow

import (
	"fmt"
	"html"
	"strings"

	"paperlens/internal/models"
)

// noteHTML renders an analysis result as the HTML note stored alongside
// the document in the library.
func noteHTML(doc models.SourceDocument, result models.AnalysisResult, templateName string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<h1>Analysis: %s</h1>\n", html.EscapeString(doc.Title))

	if result.Structured() {
		writeSection(&sb, "Summary", result.Summary)
		if len(result.KeyPoints) > 0 {
			sb.WriteString("<h2>Key Points</h2>\n<ul>\n")
			for _, p := range result.KeyPoints {
				fmt.Fprintf(&sb, "<li>%s</li>\n", html.EscapeString(p))
			}
			sb.WriteString("</ul>\n")
		}
		writeSection(&sb, "Methodology", result.Methodology)
		writeSection(&sb, "Conclusions", result.Conclusions)
	} else {
		// Unstructured output is preserved verbatim, escaped.
		text := result.Formatted
		if text == "" {
			text = result.RawOutput
		}
		fmt.Fprintf(&sb, "<pre>%s</pre>\n", html.EscapeString(text))
	}

	fmt.Fprintf(&sb, "<p><em>Generated by paperlens (template: %s, backend: %s)</em></p>\n",
		html.EscapeString(templateName), html.EscapeString(result.Backend))
	return sb.String()
}

func writeSection(sb *strings.Builder, heading, body string) {
	if body == "" {
		return
	}
	fmt.Fprintf(sb, "<h2>%s</h2>\n", heading)
	for _, para := range strings.Split(body, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		fmt.Fprintf(sb, "<p>%s</p>\n", html.EscapeString(para))
	}
}
