// Package templ renders HTML templates loaded from a filesystem.
//
// Every *.html file under the root becomes a template named by its slash
// path, e.g. "emails/welcome.html". All templates share one set, so a file
// can {{template}} any other. Templates get sprig's function map plus
// git_commit_hash, the build the binary was stamped with.
package templ

import (
	"bytes"
	"html/template"
	"io"
	"io/fs"
	"strings"
	"sync"

	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"
	"github.com/uwececa/dblayer/internal/config"
)

// ErrTemplateNotFound is returned when no template has the requested name.
var ErrTemplateNotFound = errors.New("template not found")

// Renderer is safe for concurrent use.
type Renderer struct {
	fsys   fs.FS
	reload bool
	funcs  template.FuncMap

	mu  sync.RWMutex
	set *template.Template
}

// Option customises a Renderer.
type Option func(*Renderer)

// WithReload re-parses the templates on every render, so edits show up
// without a restart. It defaults to config.IsDevelopment().
func WithReload(reload bool) Option {
	return func(r *Renderer) { r.reload = reload }
}

// WithFuncs adds template functions, overriding built-in ones of the same
// name.
func WithFuncs(funcs template.FuncMap) Option {
	return func(r *Renderer) {
		for name, fn := range funcs {
			r.funcs[name] = fn
		}
	}
}

// New parses every template under fsys.
func New(fsys fs.FS, opts ...Option) (*Renderer, error) {
	funcs := sprig.HtmlFuncMap()
	funcs["git_commit_hash"] = config.BuildID

	r := &Renderer{fsys: fsys, reload: config.IsDevelopment(), funcs: funcs}
	for _, opt := range opts {
		opt(r)
	}

	set, err := r.parse()
	if err != nil {
		return nil, err
	}
	r.set = set
	return r, nil
}

func (r *Renderer) parse() (*template.Template, error) {
	set := template.New("").Funcs(r.funcs)
	err := fs.WalkDir(r.fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}
		body, err := fs.ReadFile(r.fsys, path)
		if err != nil {
			return errors.Wrapf(err, "failed to read template %s", path)
		}
		if _, err := set.New(path).Parse(string(body)); err != nil {
			return errors.Wrapf(err, "failed to parse template %s", path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// lookup returns the named template, re-parsing first when reloading.
func (r *Renderer) lookup(name string) (*template.Template, error) {
	if r.reload {
		set, err := r.parse()
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.set = set
		r.mu.Unlock()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	t := r.set.Lookup(name)
	if t == nil || t.Tree == nil {
		return nil, errors.Wrapf(ErrTemplateNotFound, "%q", name)
	}
	return t, nil
}

// Render executes the named template with data into w.
func (r *Renderer) Render(w io.Writer, name string, data any) error {
	t, err := r.lookup(name)
	if err != nil {
		return err
	}
	if err := t.Execute(w, data); err != nil {
		return errors.Wrapf(err, "failed to execute template %s", name)
	}
	return nil
}

// RenderString executes the named template and returns the output.
func (r *Renderer) RenderString(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
