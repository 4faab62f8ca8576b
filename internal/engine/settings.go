package engine

import (
	"maps"
	"slices"
	"strings"

	"pgmem/internal/catalog"
	"pgmem/internal/pgerr"
	"pgmem/internal/sql"
	"pgmem/internal/types"
)

type parameter struct {
	name   string // spelling reported to clients
	value  string
	report bool // sent in ParameterStatus at startup
}

var defaultParameters = []parameter{
	{name: "server_version", value: "16.4", report: true},
	{name: "server_encoding", value: "UTF8", report: true},
	{name: "client_encoding", value: "UTF8", report: true},
	{name: "DateStyle", value: "ISO, MDY", report: true},
	{name: "IntervalStyle", value: "postgres", report: true},
	{name: "TimeZone", value: "UTC", report: true},
	{name: "integer_datetimes", value: "on", report: true},
	{name: "standard_conforming_strings", value: "on", report: true},
	{name: "is_superuser", value: "on", report: true},
	{name: "application_name", value: "", report: true},
	{name: "search_path", value: strings.Join(catalog.DefaultSearchPath, ", ")},
	{name: "transaction_isolation", value: "serializable"},
	{name: "max_identifier_length", value: "63"},
	{name: "extra_float_digits", value: "1"},
	{name: "statement_timeout", value: "0"},
	{name: "lock_timeout", value: "0"},
}

// settings holds the run-time parameters of a session. Keys are lower case.
type settings struct {
	params   map[string]*parameter
	defaults map[string]string
}

func newSettings() *settings {
	s := &settings{
		params:   make(map[string]*parameter, len(defaultParameters)),
		defaults: make(map[string]string, len(defaultParameters)),
	}
	for _, p := range defaultParameters {
		cp := p
		key := strings.ToLower(p.name)
		s.params[key] = &cp
		s.defaults[key] = p.value
	}
	return s
}

func (s *settings) clone() *settings {
	out := &settings{
		params:   make(map[string]*parameter, len(s.params)),
		defaults: maps.Clone(s.defaults),
	}
	for k, p := range s.params {
		cp := *p
		out.params[k] = &cp
	}
	return out
}

func (s *settings) get(name string) (string, bool) {
	p, ok := s.params[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	return p.value, true
}

// set assigns a parameter; an empty value restores the default. Names
// containing a dot are custom placeholders and always accepted.
func (s *settings) set(name, value string) error {
	key := strings.ToLower(name)
	p, ok := s.params[key]
	if !ok {
		if !strings.Contains(key, ".") {
			return unrecognizedParameter(name)
		}
		p = &parameter{name: key}
		s.params[key] = p
		s.defaults[key] = ""
	}
	if value == "" {
		value = s.defaults[key]
	}
	p.value = value
	return nil
}

func (s *settings) setDefault(name, value string) {
	key := strings.ToLower(name)
	if p, ok := s.params[key]; ok {
		p.value = value
	} else {
		s.params[key] = &parameter{name: key, value: value}
	}
	s.defaults[key] = value
}

func (s *settings) reported() map[string]string {
	out := make(map[string]string)
	for _, p := range s.params {
		if p.report {
			out[p.name] = p.value
		}
	}
	return out
}

// searchPath splits search_path into schema names. "$user" is skipped:
// there are no per-user schemas.
func (s *settings) searchPath() []string {
	raw, _ := s.get("search_path")
	var out []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.Trim(strings.TrimSpace(part), `"`)
		if name == "" || name == "$user" {
			continue
		}
		out = append(out, name)
	}
	return out
}

func unrecognizedParameter(name string) error {
	return pgerr.New(pgerr.KindSchema, pgerr.CodeUndefinedParameter,
		"unrecognized configuration parameter %q", name)
}

func (e *DBEngine) executeSet(s *sql.SetStmt) (*Result, error) {
	if err := e.settings.set(s.Name, s.Value); err != nil {
		return nil, err
	}
	return &Result{Tag: "SET"}, nil
}

func (e *DBEngine) executeShow(s *sql.ShowStmt) (*Result, error) {
	if strings.ToLower(s.Name) == "all" {
		res := &Result{
			Columns: []Column{{Name: "name", Type: types.TypeString}, {Name: "setting", Type: types.TypeString}},
			Rows:    make([]types.Row, 0, len(e.settings.params)),
		}
		for _, key := range slices.Sorted(maps.Keys(e.settings.params)) {
			p := e.settings.params[key]
			res.Rows = append(res.Rows, types.Row{types.Text(p.name), types.Text(p.value)})
		}
		res.Tag = "SHOW"
		return res, nil
	}
	v, ok := e.settings.get(s.Name)
	if !ok {
		return nil, unrecognizedParameter(s.Name)
	}
	return &Result{
		Columns: []Column{{Name: strings.ToLower(s.Name), Type: types.TypeString}},
		Rows:    []types.Row{{types.Text(v)}},
		Tag:     "SHOW",
	}, nil
}

// SetParameter sets a run-time parameter outside of SQL, e.g. from the
// startup packet.
func (e *DBEngine) SetParameter(name, value string) error {
	return e.settings.set(name, value)
}
