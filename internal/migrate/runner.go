package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"wrdms.org/internal/obs"
)

const (
	defaultVersionTable = "schema_migrations"
	defaultSeedTable    = "schema_seeds"
)

// Runner applies SQL migrations and seed files from an fs.FS. Migrations
// come in .up.sql/.down.sql pairs ordered by filename; seeds are plain .sql
// files applied once.
type Runner struct {
	db         *sql.DB
	migrations fs.FS
	seeds      fs.FS

	versionTable string
	seedTable    string
}

// Option configures Runner.
type Option func(*Runner)

// WithVersionTable overrides the migrations bookkeeping table.
func WithVersionTable(name string) Option {
	return func(r *Runner) {
		if name != "" {
			r.versionTable = name
		}
	}
}

// WithSeedTable overrides the seeds bookkeeping table.
func WithSeedTable(name string) Option {
	return func(r *Runner) {
		if name != "" {
			r.seedTable = name
		}
	}
}

// NewRunner constructs a Runner. seeds may be nil when the deployment has
// no seed data.
func NewRunner(db *sql.DB, migrations, seeds fs.FS, opts ...Option) *Runner {
	r := &Runner{
		db:           db,
		migrations:   migrations,
		seeds:        seeds,
		versionTable: defaultVersionTable,
		seedTable:    defaultSeedTable,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Up applies every pending migration in filename order.
func (r *Runner) Up(ctx context.Context) error {
	if err := r.ensureTables(ctx); err != nil {
		return err
	}
	applied, err := r.appliedSet(ctx, r.versionTable)
	if err != nil {
		return err
	}
	names, err := listSQL(r.migrations, ".up.sql")
	if err != nil {
		return err
	}
	for _, name := range names {
		if applied[name] {
			continue
		}
		if err := r.execFile(ctx, r.migrations, name); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if err := r.record(ctx, r.versionTable, name); err != nil {
			return err
		}
		obs.Log(map[string]any{
			"level": "info",
			"msg":   "migration applied",
			"name":  name,
		})
	}
	return nil
}

// Down rolls back the most recently applied migration using its .down.sql
// counterpart.
func (r *Runner) Down(ctx context.Context) error {
	history, err := r.Status(ctx)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return errors.New("no migrations applied")
	}
	last := history[len(history)-1]
	down := strings.TrimSuffix(last, ".up.sql") + ".down.sql"
	if _, err := fs.Stat(r.migrations, down); err != nil {
		return fmt.Errorf("missing down migration for %s", last)
	}
	if err := r.execFile(ctx, r.migrations, down); err != nil {
		return fmt.Errorf("rollback migration %s: %w", last, err)
	}
	_, err = r.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where name = $1`, r.versionTable), last)
	if err != nil {
		return err
	}
	obs.Log(map[string]any{
		"level": "info",
		"msg":   "migration rolled back",
		"name":  last,
	})
	return nil
}

// Seed applies seed files idempotently.
func (r *Runner) Seed(ctx context.Context) error {
	if r.seeds == nil {
		return nil
	}
	if err := r.ensureTables(ctx); err != nil {
		return err
	}
	applied, err := r.appliedSet(ctx, r.seedTable)
	if err != nil {
		return err
	}
	names, err := listSQL(r.seeds, ".sql")
	if err != nil {
		return err
	}
	for _, name := range names {
		if applied[name] {
			continue
		}
		if err := r.execFile(ctx, r.seeds, name); err != nil {
			return fmt.Errorf("apply seed %s: %w", name, err)
		}
		if err := r.record(ctx, r.seedTable, name); err != nil {
			return err
		}
	}
	return nil
}

// Status returns applied migrations in application order.
func (r *Runner) Status(ctx context.Context) ([]string, error) {
	if err := r.ensureTables(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s order by applied_at asc, name asc`, r.versionTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Pending returns migrations present on disk but not yet applied.
func (r *Runner) Pending(ctx context.Context) ([]string, error) {
	if err := r.ensureTables(ctx); err != nil {
		return nil, err
	}
	applied, err := r.appliedSet(ctx, r.versionTable)
	if err != nil {
		return nil, err
	}
	names, err := listSQL(r.migrations, ".up.sql")
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, name := range names {
		if !applied[name] {
			pending = append(pending, name)
		}
	}
	return pending, nil
}

func (r *Runner) ensureTables(ctx context.Context) error {
	for _, table := range []string{r.versionTable, r.seedTable} {
		ddl := fmt.Sprintf(`
			create table if not exists %s (
				name text primary key,
				applied_at timestamptz not null default now()
			)`, table)
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// execFile runs every statement of one SQL file inside a transaction.
func (r *Runner) execFile(ctx context.Context, fsys fs.FS, name string) error {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Runner) record(ctx context.Context, table, name string) error {
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, table),
		name, time.Now().UTC())
	return err
}

func (r *Runner) appliedSet(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func listSQL(fsys fs.FS, suffix string) ([]string, error) {
	if fsys == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// splitStatements breaks a SQL file on top-level semicolons. Semicolons
// inside single-quoted strings and $$-quoted bodies are preserved.
func splitStatements(src string) []string {
	var (
		stmts   []string
		current strings.Builder
		inQuote bool
		inBody  bool
	)
	runes := []rune(src)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'' && !inBody:
			inQuote = !inQuote
		case r == '$' && !inQuote && i+1 < len(runes) && runes[i+1] == '$':
			inBody = !inBody
			current.WriteRune(r)
			current.WriteRune(runes[i+1])
			i++
			continue
		case r == ';' && !inQuote && !inBody:
			if s := strings.TrimSpace(current.String()); s != "" {
				stmts = append(stmts, s)
			}
			current.Reset()
			continue
		}
		current.WriteRune(r)
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}
