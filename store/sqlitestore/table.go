package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
)

type (
	TableDef struct {
		Name       string
		Columns    []ColumnDef
		PrimaryKey []string
		Unique     []UniqueDef
	}

	UniqueDef struct {
		Name    string
		Columns []string
	}

	ColumnDef struct {
		Name     string
		Datatype string
	}
)

// expectedSchema lists what a read-only store needs from the database.
var expectedSchema = []TableDef{
	{
		Name: "counters",
		Columns: []ColumnDef{
			{Name: "name", Datatype: "text"},
			{Name: "val", Datatype: "integer"},
		},
		PrimaryKey: []string{"name"},
	},
	{
		Name: "users",
		Columns: []ColumnDef{
			{Name: "email", Datatype: "text"},
			{Name: "email_hash64", Datatype: "integer"},
			{Name: "name", Datatype: "text"},
			{Name: "password", Datatype: "text"},
			{Name: "user_id", Datatype: "integer"},
		},
		PrimaryKey: []string{"user_id"},
		Unique:     []UniqueDef{{Columns: []string{"email"}}},
	},
	{
		Name: "posts",
		Columns: []ColumnDef{
			{Name: "content", Datatype: "text"},
			{Name: "created_at", Datatype: "integer"},
			{Name: "post_id", Datatype: "integer"},
			{Name: "title", Datatype: "text"},
			{Name: "user_id", Datatype: "integer"},
		},
		PrimaryKey: []string{"post_id"},
	},
}

func (c *Control) verifySchema(ctx context.Context) error {
	for _, expected := range expectedSchema {
		td, err := loadTableDef(ctx, c.db, expected.Name)
		if err != nil {
			return SchemaMismatch{Table: expected.Name, Reason: fmt.Sprintf("unable to read table definition: %v", err)}
		}
		if err = td.satisfies(expected); err != nil {
			return SchemaMismatch{Table: expected.Name, Reason: err.Error()}
		}
	}
	return nil
}

// satisfies checks td has every column, key and unique constraint of
// expected, extra columns are allowed.
func (td *TableDef) satisfies(expected TableDef) error {
	for _, col := range expected.Columns {
		found, ok := td.column(col.Name)
		if !ok {
			return fmt.Errorf("missing column %v", col.Name)
		}
		if !strings.EqualFold(found.Datatype, col.Datatype) {
			return fmt.Errorf("column %v has type %v, expecting %v", col.Name, found.Datatype, col.Datatype)
		}
	}
	if !slices.Equal(td.PrimaryKey, expected.PrimaryKey) {
		return fmt.Errorf("primary key is %v, expecting %v", td.PrimaryKey, expected.PrimaryKey)
	}
	for _, u := range expected.Unique {
		if !td.uniqueOn(u.Columns...) {
			return fmt.Errorf("%v is not unique", strings.Join(u.Columns, ", "))
		}
	}
	return nil
}

func (td *TableDef) column(name string) (ColumnDef, bool) {
	for _, c := range td.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

func (td *TableDef) uniqueOn(columns ...string) bool {
	for _, u := range td.Unique {
		if slices.Equal(u.Columns, columns) {
			return true
		}
	}
	return false
}


func loadTableDef(ctx context.Context, db *sql.DB, name string) (*TableDef, error) {
	td := TableDef{
		Name: name,
	}

	type tableInfoRow struct {
		name     string
		datatype string
		pk       int
	}
	rows, err := db.QueryContext(ctx, `select name, type, pk from pragma_table_info(?) order by name`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var row tableInfoRow
		err = rows.Scan(&row.name, &row.datatype, &row.pk)
		if err != nil {
			return nil, err
		}
		td.Columns = append(td.Columns, ColumnDef{Name: row.name, Datatype: row.datatype})
		if row.pk > 0 {
			td.PrimaryKey = append(td.PrimaryKey, row.name)
		}
	}
	if len(td.Columns) == 0 {
		return nil, sql.ErrNoRows
	}
	uniqueIdx, err := listUniqueIndexes(ctx, db, name)
	if err != nil {
		return nil, err
	}
	for _, v := range uniqueIdx {
		udef, err := loadUniqueDef(ctx, db, v)
		if err != nil {
			return nil, err
		}
		td.Unique = append(td.Unique, udef)
	}
	return &td, nil
}

func loadUniqueDef(ctx context.Context, db *sql.DB, name string) (UniqueDef, error) {
	rows, err := db.QueryContext(ctx, `select name from pragma_index_info(?) order by name`, name)
	if err != nil {
		return UniqueDef{}, err
	}
	defer rows.Close()
	ud := UniqueDef{
		Name: name,
	}
	for rows.Next() {
		var name string
		err = rows.Scan(&name)
		if err != nil {
			return UniqueDef{}, err
		}
		ud.Columns = append(ud.Columns, name)
	}
	return ud, nil
}

func listUniqueIndexes(ctx context.Context, db *sql.DB, name string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `select name from pragma_index_list(?) where [unique] = 1 order by name`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ret []string
	for rows.Next() {
		var name string
		err = rows.Scan(&name)
		if err != nil {
			return nil, err
		}
		ret = append(ret, name)
	}
	return ret, nil
}
