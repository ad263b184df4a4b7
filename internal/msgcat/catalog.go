// Package msgcat holds the user-facing strings sent to clients, keyed by
// dotted paths such as errors.room_full.
package msgcat

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

const defaultFile = "messages.en.yaml"

//go:embed messages.en.yaml
var defaults embed.FS

// Catalog is immutable once built. Every entry is parsed at load time so a
// broken override fails startup instead of the first error reply.
type Catalog struct {
	entries map[string]*template.Template
}

// New loads the embedded messages, then the *.yaml / *.yml files in
// overrideDir when it is set.
func New(overrideDir string) (*Catalog, error) {
	var overrides fs.FS
	if strings.TrimSpace(overrideDir) != "" {
		overrides = os.DirFS(overrideDir)
	}
	return NewFS(overrides)
}

// NewFS is New with the override files read from fsys (nil for none).
// Overrides may only replace keys that already exist, and each key may be
// overridden by at most one file.
func NewFS(overrides fs.FS) (*Catalog, error) {
	raw, err := fs.ReadFile(defaults, defaultFile)
	if err != nil {
		return nil, fmt.Errorf("read embedded messages: %w", err)
	}
	src, err := flatten(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", defaultFile, err)
	}
	if overrides != nil {
		if err := applyOverrides(src, overrides); err != nil {
			return nil, err
		}
	}

	c := &Catalog{entries: make(map[string]*template.Template, len(src))}
	for key, text := range src {
		t, err := template.New(key).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", key, err)
		}
		c.entries[key] = t
	}
	return c, nil
}

func applyOverrides(src map[string]string, fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read message overrides: %w", err)
	}
	var names []string
	for _, e := range entries {
		ext := strings.ToLower(path.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	owner := make(map[string]string)
	for _, name := range names {
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		flat, err := flatten(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		for key, text := range flat {
			if _, known := src[key]; !known {
				return fmt.Errorf("%s: unknown message key %q", name, key)
			}
			if prev, dup := owner[key]; dup {
				return fmt.Errorf("duplicate override key %q in %s and %s", key, prev, name)
			}
			owner[key] = name
			src[key] = text
		}
	}
	return nil
}

// flatten turns nested mappings into dotted keys. Only string leaves are allowed.
func flatten(raw []byte) (map[string]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if len(doc.Content) == 0 {
		return out, nil
	}
	return out, walk(doc.Content[0], "", out)
}

func walk(n *yaml.Node, prefix string, out map[string]string) error {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if prefix != "" {
				key = prefix + "." + key
			}
			if err := walk(n.Content[i+1], key, out); err != nil {
				return err
			}
		}
		return nil
	case yaml.ScalarNode:
		if prefix == "" {
			return fmt.Errorf("line %d: value without a key", n.Line)
		}
		if n.Tag != "!!str" {
			return fmt.Errorf("line %d: %s must be a string, got %s", n.Line, prefix, n.Tag)
		}
		out[prefix] = n.Value
		return nil
	default:
		return fmt.Errorf("line %d: %s must be a string or mapping", n.Line, prefix)
	}
}

// Render executes the message for key with data. Unknown keys and fields
// missing from data are errors.
func (c *Catalog) Render(key string, data any) (string, error) {
	t, ok := c.entries[key]
	if !ok {
		return "", fmt.Errorf("message not found: %s", key)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Text is Render that falls back to key on any failure. A nil Catalog
// always returns key.
func (c *Catalog) Text(key string, data any) string {
	if c == nil {
		return key
	}
	out, err := c.Render(key, data)
	if err != nil {
		return key
	}
	return out
}

func (c *Catalog) Has(key string) bool {
	_, ok := c.entries[key]
	return ok
}

// ErrorKey returns the key of the message for a wire error kind.
func ErrorKey(kind string) string { return "errors." + kind }
