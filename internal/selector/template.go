package selector

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

//go:embed queries/*.sql
var queryFS embed.FS

var (
	ErrUnknownQuery      = errors.New("unknown query")
	ErrMissingParam      = errors.New("query parameter not provided")
	ErrUnknownParam      = errors.New("unknown query parameter")
	ErrInvalidParamValue = errors.New("query parameter includes invalid characters")
)

var (
	placeholderRe = regexp.MustCompile(`\$\{(\w+)\}`)
	substRe       = regexp.MustCompile(`'\$\{(\w+)\}'|\$\{(\w+)\}`)
)

// Params maps placeholder names to values. Strings and nil render inside
// quoted placeholders ('${name}'), integers render in bare ones (${name}).
type Params map[string]any

// Templates is a set of named query templates.
type Templates struct {
	byName map[string]string
}

// DefaultTemplates returns the embedded query set.
func DefaultTemplates() *Templates {
	t, err := LoadTemplates(queryFS, "queries")
	if err != nil {
		panic(fmt.Sprintf("embedded queries: %v", err))
	}
	return t
}

// LoadTemplates reads every .sql file under dir. A template's name is its
// file name without extension.
func LoadTemplates(fsys fs.FS, dir string) (*Templates, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}
	t := &Templates{byName: make(map[string]string, len(entries))}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		b, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read query %s: %w", e.Name(), err)
		}
		t.byName[strings.TrimSuffix(e.Name(), ".sql")] = string(b)
	}
	return t, nil
}

// NewTemplates builds a template set from literal sources.
func NewTemplates(byName map[string]string) *Templates {
	t := &Templates{byName: make(map[string]string, len(byName))}
	for k, v := range byName {
		t.byName[k] = v
	}
	return t
}

// Names lists the template names in sorted order.
func (t *Templates) Names() []string {
	names := make([]string, 0, len(t.byName))
	for n := range t.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Render substitutes params into the named template. Every placeholder must be
// supplied, no extra parameter may be supplied, and string values must not
// contain a quote character.
func (t *Templates) Render(name string, params Params) (string, error) {
	query, ok := t.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownQuery, name)
	}

	required := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(query, -1) {
		required[m[1]] = true
	}
	for p := range required {
		if _, ok := params[p]; !ok {
			return "", fmt.Errorf("%w: %s (query %s)", ErrMissingParam, p, name)
		}
	}
	for p := range params {
		if !required[p] {
			return "", fmt.Errorf("%w: %s (query %s)", ErrUnknownParam, p, name)
		}
	}

	var renderErr error
	out := substRe.ReplaceAllStringFunc(query, func(ph string) string {
		m := substRe.FindStringSubmatch(ph)
		p, isQuoted := m[1], true
		if p == "" {
			p, isQuoted = m[2], false
		}
		quoted, bare, err := renderValue(params[p])
		switch {
		case err != nil:
			renderErr = fmt.Errorf("%w: %s (query %s)", err, p, name)
		case isQuoted:
			return quoted
		case bare == "":
			renderErr = fmt.Errorf("%w: %s must be numeric (query %s)", ErrInvalidParamValue, p, name)
		default:
			return bare
		}
		return ph
	})
	if renderErr != nil {
		return "", renderErr
	}
	return out, nil
}

// renderValue returns the quoted rendering and, for numbers, the bare one.
func renderValue(v any) (quoted, bare string, err error) {
	switch x := v.(type) {
	case nil:
		return "NULL", "NULL", nil
	case string:
		if strings.ContainsAny(x, `'"`) {
			return "", "", ErrInvalidParamValue
		}
		return "'" + x + "'", "", nil
	case int:
		s := strconv.Itoa(x)
		return "'" + s + "'", s, nil
	case int64:
		s := strconv.FormatInt(x, 10)
		return "'" + s + "'", s, nil
	}
	return "", "", fmt.Errorf("%w: unsupported type %T", ErrInvalidParamValue, v)
}
