package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	varRe      = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)
	ifOpenRe   = regexp.MustCompile(`\{\{#if\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)
	ifCloseStr = "{{/if}}"
)

// Vars maps placeholder names to their values.
type Vars map[string]string

// Render expands {{name}} placeholders in tmpl from vars. A
// {{#if name}}...{{/if}} block is kept only when vars[name] is non-empty;
// blocks nest. Every placeholder left without a value is reported in one error.
// Substituted values are inserted verbatim and never expanded again.
func Render(tmpl string, vars Vars) (string, error) {
	body, err := resolveBlocks(tmpl, vars)
	if err != nil {
		return "", err
	}

	var missing []string
	out := varRe.ReplaceAllStringFunc(body, func(tag string) string {
		name := varRe.FindStringSubmatch(tag)[1]
		val, ok := vars[name]
		if !ok {
			missing = append(missing, name)
			return tag
		}
		return val
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// resolveBlocks collapses conditional blocks until none remain. Each pass
// pairs the first {{/if}} with the nearest {{#if}} before it.
func resolveBlocks(tmpl string, vars Vars) (string, error) {
	for {
		end := strings.Index(tmpl, ifCloseStr)
		if end < 0 {
			break
		}
		opens := ifOpenRe.FindAllStringSubmatchIndex(tmpl[:end], -1)
		if len(opens) == 0 {
			return "", fmt.Errorf("dangling {{/if}} without matching {{#if}}")
		}
		open := opens[len(opens)-1]
		name := tmpl[open[2]:open[3]]

		kept := ""
		if vars[name] != "" {
			kept = tmpl[open[1]:end]
		}
		tmpl = tmpl[:open[0]] + kept + tmpl[end+len(ifCloseStr):]
	}

	if tag := ifOpenRe.FindString(tmpl); tag != "" {
		return "", fmt.Errorf("unclosed conditional block: %s", tag)
	}
	return tmpl, nil
}

// Load returns the named template. A file of that name in overrideDir wins over
// the built-in template. Names must not escape overrideDir.
func Load(name string, overrideDir string) (string, error) {
	if filepath.IsAbs(name) || strings.Contains(filepath.ToSlash(filepath.Clean(name)), "../") || name == ".." {
		return "", fmt.Errorf("template name %q escapes template dir", name)
	}
	if overrideDir != "" {
		data, err := os.ReadFile(filepath.Join(overrideDir, name))
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("read template %q: %w", name, err)
		}
	}
	tmpl, ok := builtinTemplates[name]
	if !ok {
		return "", fmt.Errorf("template %q not found", name)
	}
	return tmpl, nil
}

// InstallBuiltins writes the built-in templates into dir, leaving existing files alone.
func InstallBuiltins(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create templates dir: %w", err)
	}

	var written []string
	for _, name := range BuiltinNames() {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(builtinTemplates[name]), 0o644); err != nil {
			return written, fmt.Errorf("write template %q: %w", name, err)
		}
		written = append(written, path)
	}
	return written, nil
}
