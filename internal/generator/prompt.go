package generator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BuildPrompt wraps a user's feature description with the contract generated
// components must follow.
func BuildPrompt(description, componentsDir string) string {
	var b strings.Builder
	b.WriteString("Create a new React component for the dashboard.\n\n")
	fmt.Fprintf(&b, "Feature request: %s\n\n", description)
	b.WriteString("Requirements:\n")
	fmt.Fprintf(&b, "- Write one .tsx file per component in %s\n", componentsDir)
	b.WriteString("- Name the file after the component in PascalCase, e.g. TodoList.tsx\n")
	b.WriteString("- Begin the file with a block comment whose first line describes the component\n")
	b.WriteString("- Export the component as a named export and as the default export\n")
	b.WriteString("- Do not modify or delete existing files\n\n")
	b.WriteString(`When done, print a single JSON object on the last line: {"success": true, "files": ["<path>", ...]}`)
	b.WriteString("\n")
	return b.String()
}

// report is the JSON summary a generator prints on stdout.
type report struct {
	Success *bool    `json:"success"`
	Files   []string `json:"files"`
	Error   string   `json:"error"`
	// Result carries the model's final text when the CLI wraps its output.
	Result string `json:"result"`
	// IsError is set by wrapping CLIs on failure.
	IsError bool `json:"is_error"`
}

type parsedReport struct {
	Success bool
	Files   []string
	Error   string
}

// parseReport finds the last JSON object line in out that describes the run.
// Wrapped output ({"result": "..."}) is searched recursively.
func parseReport(out string) (parsedReport, bool) {
	lines := strings.Split(out, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}
		var r report
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			continue
		}
		if r.Success != nil {
			return parsedReport{Success: *r.Success, Files: r.Files, Error: r.Error}, true
		}
		if r.Result != "" {
			if inner, ok := parseReport(r.Result); ok {
				if r.IsError {
					inner.Success = false
				}
				return inner, true
			}
		}
		if r.IsError {
			return parsedReport{Success: false, Error: r.Result}, true
		}
	}
	return parsedReport{}, false
}
