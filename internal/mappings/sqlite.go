package mappings

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
	"github.com/FocuswithJustin/OTMapKit/core/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pairs (
		id INTEGER PRIMARY KEY,
		from_client INTEGER NOT NULL,
		to_client INTEGER NOT NULL,
		UNIQUE (from_client, to_client)
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		pair_id INTEGER NOT NULL REFERENCES pairs(id) ON DELETE CASCADE,
		source_id INTEGER NOT NULL,
		target_id INTEGER NOT NULL,
		source_name TEXT NOT NULL DEFAULT '',
		target_name TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (pair_id, source_id)
	)`,
	`CREATE TABLE IF NOT EXISTS changes (
		pair_id INTEGER NOT NULL,
		source_id INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		action TEXT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT '',
		value TEXT NOT NULL DEFAULT '',
		rename_to TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (pair_id, source_id, seq)
	)`,
}

// SaveSQLite replaces the content of the database at path with t.
func SaveSQLite(ctx context.Context, t *Table, path string) error {
	db, err := sqlite.Open(path)
	if err != nil {
		return errors.NewIO("open", path, err)
	}
	defer db.Close()
	if err := sqlite.Migrate(ctx, db, schema...); err != nil {
		return err
	}
	return sqlite.WithTx(ctx, db, func(tx *sql.Tx) error {
		for _, stmt := range []string{"DELETE FROM changes", "DELETE FROM items", "DELETE FROM pairs"} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		for _, p := range t.Pairs() {
			res, err := tx.ExecContext(ctx, "INSERT INTO pairs (from_client, to_client) VALUES (?, ?)", uint32(p.From), uint32(p.To))
			if err != nil {
				return err
			}
			pid, err := res.LastInsertId()
			if err != nil {
				return err
			}
			for _, m := range t.Mappings(p.From, p.To) {
				if _, err := tx.ExecContext(ctx,
					"INSERT INTO items (pair_id, source_id, target_id, source_name, target_name) VALUES (?, ?, ?, ?, ?)",
					pid, m.SourceID, m.TargetID, m.SourceName, m.TargetName); err != nil {
					return err
				}
				for seq, c := range m.Changes {
					var kind, value string
					if c.Op == OpSet {
						kind, value = kindName(c.Value.Kind), FormatValue(c.Value)
					}
					if _, err := tx.ExecContext(ctx,
						"INSERT INTO changes (pair_id, source_id, seq, action, name, kind, value, rename_to) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
						pid, m.SourceID, seq, string(c.Op), c.Name, kind, value, c.To); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

// LoadSQLite adds the mappings stored in the database at path to t.
func LoadSQLite(ctx context.Context, t *Table, path string) error {
	db, err := sqlite.OpenReadOnly(path)
	if err != nil {
		return errors.NewIO("open", path, err)
	}
	defer db.Close()

	pairs := map[int64]Pair{}
	rows, err := db.QueryContext(ctx, "SELECT id, from_client, to_client FROM pairs")
	if err != nil {
		return &errors.ParseError{Format: "mapping database", Path: path, Message: err.Error(), Err: err}
	}
	for rows.Next() {
		var id int64
		var from, to uint32
		if err := rows.Scan(&id, &from, &to); err != nil {
			rows.Close()
			return err
		}
		p := Pair{mapversion.Client(from), mapversion.Client(to)}
		pairs[id] = p
		t.AddPair(p.From, p.To)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	type key struct {
		pair int64
		src  uint16
	}
	changes := map[key][]AttributeChange{}
	rows, err = db.QueryContext(ctx, "SELECT pair_id, source_id, action, name, kind, value, rename_to FROM changes ORDER BY pair_id, source_id, seq")
	if err != nil {
		return err
	}
	for rows.Next() {
		var k key
		var action, name, kind, value, to string
		if err := rows.Scan(&k.pair, &k.src, &action, &name, &kind, &value, &to); err != nil {
			rows.Close()
			return err
		}
		c, err := newChange(action, name, kind, value, to)
		if err != nil {
			rows.Close()
			return errors.NewParse("mapping database", path, fmt.Sprintf("item %d: %v", k.src, err))
		}
		changes[k] = append(changes[k], c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = db.QueryContext(ctx, "SELECT pair_id, source_id, target_id, source_name, target_name FROM items")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var k key
		var m Mapping
		if err := rows.Scan(&k.pair, &m.SourceID, &m.TargetID, &m.SourceName, &m.TargetName); err != nil {
			return err
		}
		p, ok := pairs[k.pair]
		if !ok {
			return errors.NewParse("mapping database", path, fmt.Sprintf("item %d references missing pair %d", m.SourceID, k.pair))
		}
		k.src = m.SourceID
		m.Changes = changes[k]
		t.Add(p.From, p.To, m)
	}
	return rows.Err()
}
