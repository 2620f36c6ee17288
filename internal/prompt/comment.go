package prompt

import (
	"fmt"
	"strings"
)

// RenderTrackingComment renders the initial body of the tracking comment.
// Security runs get their own wording; runURL links the workflow run.
func RenderTrackingComment(security bool, runURL string) (string, error) {
	const name = "templates/tracking_comment.tmpl"
	raw, err := builtinTemplates.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("load comment template %s: %w", name, err)
	}
	data := struct {
		Security bool
		RunURL   string
	}{
		Security: security,
		RunURL:   strings.TrimSpace(runURL),
	}
	out, err := renderTemplate(name, raw, data)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
