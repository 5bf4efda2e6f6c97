package templates

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"sync"
	"text/template"

	"erpinsight/pkg/errors"
)

//go:embed assets/**/*.tmpl
var embeddedFS embed.FS

// Template is one parsed prompt. ID is the path below the source root without
// the .tmpl extension, e.g. "prompts/forecast_user".
type Template struct {
	ID     string
	Source string

	parsed *template.Template
}

func (t *Template) Render(data any) (string, error) {
	var buf bytes.Buffer
	if err := t.parsed.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "render template %s", t.ID)
	}
	return buf.String(), nil
}

// Registry resolves prompt templates from layered sources. A template found in
// a later source replaces the one with the same ID from an earlier source.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

type source struct {
	name string
	fsys fs.FS
}

// New parses every .tmpl file of the embedded assets followed by each overlay
func New(overlays ...fs.FS) (*Registry, error) {
	base, err := fs.Sub(embeddedFS, "assets")
	if err != nil {
		return nil, errors.Wrap(err, "embedded templates")
	}

	sources := []source{{name: "embedded", fsys: base}}
	for i, o := range overlays {
		sources = append(sources, source{name: fmt.Sprintf("overlay %d", i+1), fsys: o})
	}

	r := &Registry{templates: make(map[string]*Template)}
	for _, s := range sources {
		if err := r.load(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewWithDir layers the prompt files under dir over the embedded ones.
// An empty dir yields the embedded registry.
func NewWithDir(dir string) (*Registry, error) {
	if dir == "" {
		return New()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(err, "prompt overrides")
	}
	if !info.IsDir() {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "prompt overrides: %s is not a directory", dir)
	}
	return New(os.DirFS(dir))
}

func (r *Registry) load(s source) error {
	return fs.WalkDir(s.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".tmpl" {
			return nil
		}

		content, err := fs.ReadFile(s.fsys, p)
		if err != nil {
			return errors.Wrapf(err, "read template %s", p)
		}
		id := strings.TrimSuffix(p, ".tmpl")
		parsed, err := template.New(id).Funcs(FuncMap()).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return errors.Wrapf(err, "parse template %s (%s)", id, s.name)
		}

		r.mu.Lock()
		r.templates[id] = &Template{ID: id, Source: s.name, parsed: parsed}
		r.mu.Unlock()
		return nil
	})
}

// Lookup returns the template registered under id
func (r *Registry) Lookup(id string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tmpl, ok := r.templates[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "template %s", id)
	}
	return tmpl, nil
}

func (r *Registry) Render(id string, data any) (string, error) {
	tmpl, err := r.Lookup(id)
	if err != nil {
		return "", err
	}
	return tmpl.Render(data)
}

// List returns the known IDs in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

var (
	defaultMu  sync.RWMutex
	defaultReg *Registry
	embedOnce  sync.Once
	embedErr   error
)

// Get returns the process-wide registry. Until Use is called it serves the
// embedded prompts and panics if one of them fails to parse.
func Get() *Registry {
	defaultMu.RLock()
	reg := defaultReg
	defaultMu.RUnlock()
	if reg != nil {
		return reg
	}

	embedOnce.Do(func() {
		var r *Registry
		r, embedErr = New()
		if embedErr == nil {
			defaultMu.Lock()
			if defaultReg == nil {
				defaultReg = r
			}
			defaultMu.Unlock()
		}
	})
	if embedErr != nil {
		panic(embedErr)
	}

	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultReg
}

// Use replaces the process-wide registry, e.g. with one carrying overrides
func Use(r *Registry) {
	defaultMu.Lock()
	defaultReg = r
	defaultMu.Unlock()
}
