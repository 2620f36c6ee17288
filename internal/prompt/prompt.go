// Package prompt renders the built-in prompt templates and writes the prompt
// artifact consumed by the agent run.
package prompt

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/chainguard-dev/clog"

	"github.com/droid-action/droidprep/internal/promptctx"
)

// Kind selects a built-in prompt template.
type Kind string

// Built-in prompt kinds.
const (
	KindReview           Kind = "review"
	KindSecurityReview   Kind = "security_review"
	KindSecurityScan     Kind = "security_scan"
	KindFill             Kind = "fill"
	KindReviewValidator  Kind = "review_validator"
	KindReviewCandidates Kind = "review_candidates"
	KindCombine          Kind = "combine"

	// FileName is the prompt artifact name inside the prompt directory.
	FileName = "droid-prompt.txt"

	builtinTemplateDir = "templates"
	builtinTemplateExt = ".tmpl"
)

//go:embed templates/*.tmpl
var builtinTemplates embed.FS

// RenderBuiltin renders the template of kind with prepared.
func RenderBuiltin(kind Kind, prepared *promptctx.Prepared) ([]byte, error) {
	if strings.TrimSpace(string(kind)) == "" {
		return nil, fmt.Errorf("builtin prompt kind is empty")
	}
	if prepared == nil {
		return nil, fmt.Errorf("render builtin prompt %q: prepared context is nil", kind)
	}
	path := builtinTemplatePath(string(kind))
	raw, err := builtinTemplates.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load builtin prompt kind=%q: %w", kind, err)
	}
	return renderTemplate(path, raw, prepared)
}

// Writer writes prompt artifacts into Dir.
type Writer struct {
	Dir string
}

// Result describes a written prompt.
type Result struct {
	Path string
	// Env holds ALLOWED_TOOLS and DISALLOWED_TOOLS for the run step.
	Env map[string]string
}

// Write renders kind and stores it as Dir/droid-prompt.txt, replacing any
// previous prompt.
func (w Writer) Write(ctx context.Context, kind Kind, prepared *promptctx.Prepared, allowed, disallowed []string) (Result, error) {
	out, err := RenderBuiltin(kind, prepared)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create prompt dir %q: %w", w.Dir, err)
	}
	path := filepath.Join(w.Dir, FileName)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return Result{}, fmt.Errorf("write prompt %q: %w", path, err)
	}
	clog.FromContext(ctx).InfoContext(ctx, "wrote prompt", "kind", string(kind), "path", path, "bytes", len(out))
	clog.FromContext(ctx).DebugContext(ctx, "prompt content", "prompt", string(out))

	return Result{
		Path: path,
		Env: map[string]string{
			"ALLOWED_TOOLS":    strings.Join(allowed, ","),
			"DISALLOWED_TOOLS": strings.Join(disallowed, ","),
		},
	}, nil
}

func renderTemplate(name string, raw []byte, data any) ([]byte, error) {
	tmpl, err := template.New(filepath.Base(name)).Funcs(funcMap()).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute template %q: %w", name, err)
	}
	return buf.Bytes(), nil
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"default": funcDef,
		"join":    strings.Join,
		"headRef": func(p *promptctx.Prepared) string {
			if p.PRBranch == nil {
				return "unknown"
			}
			return funcDef(p.PRBranch.HeadRefName, "unknown")
		},
		"headSHA": func(p *promptctx.Prepared) string {
			if p.PRBranch == nil {
				return "unknown"
			}
			return funcDef(p.PRBranch.HeadRefOid, "unknown")
		},
	}
}

// funcDef returns def when value is empty or whitespace, otherwise value.
func funcDef(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

// builtinTemplatePath constructs the embedded template path for a given kind.
func builtinTemplatePath(kind string) string {
	base := strings.ToLower(strings.TrimSpace(kind))
	return filepath.ToSlash(filepath.Join(builtinTemplateDir, base+builtinTemplateExt))
}
