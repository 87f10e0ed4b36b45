package db

import (
	"bytes"
	"context"
	"embed"
	"io/fs"
	"sort"
	"strings"
	"text/template"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationLockID = 7741520

// Migrate applies the embedded migrations for table in lexicographic order.
// Applied files are tracked per table in seeder_migrations so the same
// database can hold more than one farms table. Everything runs in one
// transaction holding a transaction-scoped advisory lock, so the lock and
// the statements share a connection and concurrent runs serialize.
func Migrate(ctx context.Context, pool Pool, table string) error {
	if table == "" {
		return eris.New("db: empty table name")
	}
	log := zap.L().With(zap.String("component", "db.migrate"), zap.String("table", table))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "db: begin migration transaction")
	}
	if err := migrateTx(ctx, tx, table, log); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			log.Warn("db: rollback migration transaction", zap.Error(rbErr))
		}
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "db: commit migrations")
}

func migrateTx(ctx context.Context, tx pgx.Tx, table string, log *zap.Logger) error {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "db: acquire migration advisory lock")
	}

	if err := ensureMigrationTable(ctx, tx); err != nil {
		return err
	}

	names, err := migrationNames()
	if err != nil {
		return err
	}

	applied, err := appliedMigrations(ctx, tx, table)
	if err != nil {
		return err
	}

	for _, name := range names {
		if applied[name] {
			continue
		}

		sql, err := renderMigration(name, table)
		if err != nil {
			return err
		}

		log.Info("applying migration", zap.String("file", name))

		if _, err := tx.Exec(ctx, sql); err != nil {
			return eris.Wrapf(err, "db: apply migration %s", name)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO seeder_migrations (target, filename, applied_at) VALUES ($1, $2, now())",
			table, name,
		); err != nil {
			return eris.Wrapf(err, "db: record migration %s", name)
		}
	}

	return nil
}

func migrationNames() ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, eris.Wrap(err, "db: read migration dir")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// renderMigration fills the table placeholders of a migration file. Index
// names are derived from the unqualified table name.
func renderMigration(name, table string) (string, error) {
	data, err := migrationFS.ReadFile("migrations/" + name)
	if err != nil {
		return "", eris.Wrapf(err, "db: read migration %s", name)
	}

	base := table
	if i := strings.LastIndex(table, "."); i >= 0 {
		base = table[i+1:]
	}
	funcs := template.FuncMap{
		"ident": func(suffix string) string {
			return pgx.Identifier{base + "_" + suffix}.Sanitize()
		},
	}

	tmpl, err := template.New(name).Funcs(funcs).Parse(string(data))
	if err != nil {
		return "", eris.Wrapf(err, "db: parse migration %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Table string }{QuoteTable(table)}); err != nil {
		return "", eris.Wrapf(err, "db: render migration %s", name)
	}
	return buf.String(), nil
}

func ensureMigrationTable(ctx context.Context, tx pgx.Tx) error {
	sql := `
		CREATE TABLE IF NOT EXISTS seeder_migrations (
			id         SERIAL PRIMARY KEY,
			target     TEXT NOT NULL,
			filename   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (target, filename)
		)
	`
	if _, err := tx.Exec(ctx, sql); err != nil {
		return eris.Wrap(err, "db: ensure migration table")
	}
	return nil
}

func appliedMigrations(ctx context.Context, tx pgx.Tx, table string) (map[string]bool, error) {
	rows, err := tx.Query(ctx, "SELECT filename FROM seeder_migrations WHERE target = $1", table)
	if err != nil {
		return nil, eris.Wrap(err, "db: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "db: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
