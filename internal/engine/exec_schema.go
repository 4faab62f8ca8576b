package engine

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"pgmem/internal/catalog"
	"pgmem/internal/pgerr"
	"pgmem/internal/sql"
)

func (e *DBEngine) executeCreateSchema(cat *catalog.Catalog, s *sql.CreateSchemaStmt) (*Result, error) {
	res := &Result{Tag: "CREATE SCHEMA"}
	created, err := cat.CreateSchema(s.Name, s.IfNotExists)
	if err != nil {
		return nil, err
	}
	if !created {
		res.Notices = append(res.Notices, pgerr.Notice("NOTICE", pgerr.CodeDuplicateSchema,
			"schema %q already exists, skipping", s.Name))
		return res, nil
	}
	e.log.Info("schema created", "schema", s.Name)
	return res, nil
}

// executeDropSchema drops the named schemas; either all of them go or none.
func (e *DBEngine) executeDropSchema(cat *catalog.Catalog, s *sql.DropSchemaStmt) (*Result, error) {
	res := &Result{Tag: "DROP SCHEMA"}
	err := atomically(cat, func() error {
		for _, name := range s.Names {
			if !cat.HasSchema(name) {
				if s.IfExists {
					res.Notices = append(res.Notices, pgerr.Notice("NOTICE", "00000",
						"schema %q does not exist, skipping", name))
					continue
				}
				return pgerr.InvalidSchema(name)
			}
			if s.Cascade {
				if n := cascadeNotice(cat, name); n != nil {
					res.Notices = append(res.Notices, n)
				}
			}
			if err := cat.DropSchema(name, s.Cascade); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("schemas dropped", "schemas", s.Names)
	return res, nil
}

// cascadeNotice lists the tables dropped along with schema name, or returns
// nil when it holds none.
func cascadeNotice(cat *catalog.Catalog, name string) *pgconn.Notice {
	schema, err := cat.Schema(name)
	if err != nil || len(schema.Tables) == 0 {
		return nil
	}
	var lines []string
	for _, t := range slices.Sorted(maps.Keys(schema.Tables)) {
		lines = append(lines, fmt.Sprintf("drop cascades to table %s.%s", name, t))
	}
	if len(lines) == 1 {
		return pgerr.Notice("NOTICE", "00000", "%s", lines[0])
	}
	n := pgerr.Notice("NOTICE", "00000", "drop cascades to %d other objects", len(lines))
	n.Detail = strings.Join(lines, "\n")
	return n
}
