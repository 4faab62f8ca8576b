// Package catalog holds the in-memory database: schemas, tables, column
// definitions, constraints and row storage.
//
// The catalog is not safe for concurrent use; callers serialise access.
package catalog

import (
	"maps"
	"slices"
	"sort"

	"pgmem/internal/pgerr"
	"pgmem/internal/sql"
)

const (
	PublicSchema    = "public"
	PgCatalogSchema = "pg_catalog"
)

// DefaultSearchPath is the search path of a fresh session.
var DefaultSearchPath = []string{PublicSchema}

// Schema is a namespace of tables and indexes.
type Schema struct {
	Name    string
	Tables  map[string]*Table
	Indexes map[string]*Index
}

func newSchema(name string) *Schema {
	return &Schema{
		Name:    name,
		Tables:  make(map[string]*Table),
		Indexes: make(map[string]*Index),
	}
}

// Catalog is the set of schemas.
type Catalog struct {
	schemas map[string]*Schema
}

// New creates a catalog containing the public and pg_catalog schemas.
func New() *Catalog {
	return &Catalog{
		schemas: map[string]*Schema{
			PublicSchema:    newSchema(PublicSchema),
			PgCatalogSchema: newSchema(PgCatalogSchema),
		},
	}
}

// Schema returns the named schema or a 3F000 error.
func (c *Catalog) Schema(name string) (*Schema, error) {
	s, ok := c.schemas[name]
	if !ok {
		return nil, pgerr.InvalidSchema(name)
	}
	return s, nil
}

// HasSchema reports whether the schema exists.
func (c *Catalog) HasSchema(name string) bool {
	_, ok := c.schemas[name]
	return ok
}

// SchemaNames returns the schema names in sorted order.
func (c *Catalog) SchemaNames() []string {
	return slices.Sorted(maps.Keys(c.schemas))
}

// CreateSchema adds an empty schema. It reports whether a schema was created;
// with ifNotExists an existing schema is not an error.
func (c *Catalog) CreateSchema(name string, ifNotExists bool) (bool, error) {
	if _, ok := c.schemas[name]; ok {
		if ifNotExists {
			return false, nil
		}
		return false, pgerr.New(pgerr.KindSchema, pgerr.CodeDuplicateSchema, "schema %q already exists", name)
	}
	if len(name) >= 3 && name[:3] == "pg_" {
		return false, pgerr.New(pgerr.KindSchema, pgerr.CodeReservedName,
			"unacceptable schema name %q", name).
			WithDetail("The prefix \"pg_\" is reserved for system schemas.")
	}
	c.schemas[name] = newSchema(name)
	return true, nil
}

// DropSchema removes a schema. A schema that still contains tables is only
// dropped with cascade, which also drops foreign keys in other schemas that
// reference its tables.
func (c *Catalog) DropSchema(name string, cascade bool) error {
	s, ok := c.schemas[name]
	if !ok {
		return pgerr.InvalidSchema(name)
	}
	if name == PgCatalogSchema {
		return pgerr.New(pgerr.KindSchema, pgerr.CodeDependentObjects,
			"cannot drop schema %s because it is required by the database system", name)
	}
	if len(s.Tables) > 0 && !cascade {
		names := slices.Sorted(maps.Keys(s.Tables))
		return pgerr.New(pgerr.KindSchema, pgerr.CodeDependentObjects,
			"cannot drop schema %s because other objects depend on it", name).
			WithDetail("table %s.%s depends on schema %s", name, names[0], name).
			WithHint("Use DROP ... CASCADE to drop the dependent objects too.")
	}
	for _, t := range s.Tables {
		c.detachReferences(t)
	}
	delete(c.schemas, name)
	return nil
}

// ResolveSchema picks the schema a new object goes into: the explicit one,
// or the first existing schema on the search path.
func (c *Catalog) ResolveSchema(explicit string, path []string) (*Schema, error) {
	if explicit != "" {
		return c.Schema(explicit)
	}
	for _, name := range path {
		if s, ok := c.schemas[name]; ok {
			return s, nil
		}
	}
	return nil, pgerr.New(pgerr.KindSchema, pgerr.CodeInvalidSchemaName, "no schema has been selected to create in")
}

// LookupTable resolves a possibly qualified name. Unqualified names search
// the path in order.
func (c *Catalog) LookupTable(name sql.TableName, path []string) (*Table, error) {
	if name.Schema != "" {
		s, err := c.Schema(name.Schema)
		if err != nil {
			return nil, err
		}
		t, ok := s.Tables[name.Name]
		if !ok {
			return nil, pgerr.UndefinedTable(name.String())
		}
		return t, nil
	}
	for _, sn := range path {
		if s, ok := c.schemas[sn]; ok {
			if t, ok := s.Tables[name.Name]; ok {
				return t, nil
			}
		}
	}
	return nil, pgerr.UndefinedTable(name.Name)
}

// Table returns schema.name without search path resolution.
func (c *Catalog) Table(schema, name string) (*Table, bool) {
	s, ok := c.schemas[schema]
	if !ok {
		return nil, false
	}
	t, ok := s.Tables[name]
	return t, ok
}

// AddTable registers a new table in its schema.
func (c *Catalog) AddTable(t *Table) error {
	s, err := c.Schema(t.Schema)
	if err != nil {
		return err
	}
	if t.Schema == PgCatalogSchema {
		return pgerr.New(pgerr.KindSchema, pgerr.CodeInsufficientPrivilege,
			"permission denied to create \"%s.%s\"", t.Schema, t.Name).
			WithDetail("System catalog modifications are currently disallowed.")
	}
	if _, exists := s.Tables[t.Name]; exists {
		return pgerr.DuplicateTable(t.Name)
	}
	s.Tables[t.Name] = t
	return nil
}

// ReplaceTable swaps in a modified copy of a table registered under the same
// schema and name.
func (c *Catalog) ReplaceTable(t *Table) {
	c.schemas[t.Schema].Tables[t.Name] = t
}

// Reference is a foreign key constraint as seen from the referenced table.
type Reference struct {
	Table      *Table
	Constraint *Constraint
}

// ReferencesTo lists the foreign keys that point at t, including
// self-references, ordered by referencing table name.
func (c *Catalog) ReferencesTo(t *Table) []Reference {
	var out []Reference
	for _, sn := range c.SchemaNames() {
		s := c.schemas[sn]
		for _, tn := range slices.Sorted(maps.Keys(s.Tables)) {
			other := s.Tables[tn]
			for _, con := range other.Constraints {
				if con.Kind == ForeignKey && con.RefSchema == t.Schema && con.RefTable == t.Name {
					out = append(out, Reference{Table: other, Constraint: con})
				}
			}
		}
	}
	return out
}

// DropTables removes every table in ts. Foreign keys from tables outside the
// set block the drop unless cascade is set, in which case those constraints
// are removed. Nothing is dropped when an error is returned.
func (c *Catalog) DropTables(ts []*Table, cascade bool) error {
	if !cascade {
		for _, t := range ts {
			for _, ref := range c.ReferencesTo(t) {
				if slices.Contains(ts, ref.Table) {
					continue
				}
				return pgerr.New(pgerr.KindSchema, pgerr.CodeDependentObjects,
					"cannot drop table %s because other objects depend on it", t.Name).
					WithDetail("constraint %s on table %s depends on table %s", ref.Constraint.Name, ref.Table.Name, t.Name).
					WithHint("Use DROP ... CASCADE to drop the dependent objects too.")
			}
		}
	}
	for _, t := range ts {
		c.detachReferences(t)
		s := c.schemas[t.Schema]
		for name, idx := range s.Indexes {
			if idx.Table == t.Name {
				delete(s.Indexes, name)
			}
		}
		delete(s.Tables, t.Name)
	}
	return nil
}

// detachReferences removes foreign keys in other tables that point at t.
func (c *Catalog) detachReferences(t *Table) {
	for _, ref := range c.ReferencesTo(t) {
		if ref.Table == t {
			continue
		}
		ref.Table.Constraints = slices.DeleteFunc(ref.Table.Constraints, func(con *Constraint) bool {
			return con == ref.Constraint
		})
	}
}

// RenameTable changes t's name within its schema.
func (c *Catalog) RenameTable(t *Table, newName string) error {
	s := c.schemas[t.Schema]
	if _, exists := s.Tables[newName]; exists {
		return pgerr.DuplicateTable(newName)
	}
	for _, ref := range c.ReferencesTo(t) {
		ref.Constraint.RefTable = newName
	}
	for _, idx := range s.Indexes {
		if idx.Table == t.Name {
			idx.Table = newName
		}
	}
	delete(s.Tables, t.Name)
	t.Name = newName
	s.Tables[newName] = t
	return nil
}

// TableCount returns the number of user tables across all schemas.
func (c *Catalog) TableCount() int {
	n := 0
	for _, s := range c.schemas {
		n += len(s.Tables)
	}
	return n
}

// Clone returns a deep copy of the catalog. Row slices are copied; the
// values in them are immutable and shared.
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{schemas: make(map[string]*Schema, len(c.schemas))}
	for name, s := range c.schemas {
		ns := newSchema(name)
		for tn, t := range s.Tables {
			ns.Tables[tn] = t.Clone()
		}
		for in, idx := range s.Indexes {
			cp := *idx
			ns.Indexes[in] = &cp
		}
		out.schemas[name] = ns
	}
	return out
}

// Restore replaces the contents of c with those of snap, which must not be
// used afterwards.
func (c *Catalog) Restore(snap *Catalog) {
	c.schemas = snap.schemas
}

// Tables returns every table ordered by schema then name.
func (c *Catalog) Tables() []*Table {
	var out []*Table
	for _, s := range c.schemas {
		for _, t := range s.Tables {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Schema != out[j].Schema {
			return out[i].Schema < out[j].Schema
		}
		return out[i].Name < out[j].Name
	})
	return out
}
