package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

// schemaStep is one numbered schema file, e.g. 002_markdown_files.sql.
type schemaStep struct {
	version int
	file    string
}

// migrate brings the database schema up to the highest numbered file in
// files. The current level lives in PRAGMA user_version, so every step runs
// once and a failed step leaves the previous level in place.
func migrate(ctx context.Context, db *sql.DB, files fs.FS) error {
	steps, err := schemaSteps(files)
	if err != nil {
		return err
	}

	var current int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, step := range steps {
		if step.version <= current {
			continue
		}
		body, err := fs.ReadFile(files, step.file)
		if err != nil {
			return fmt.Errorf("schema %s: %w", step.file, err)
		}
		if err := upgrade(ctx, db, step.version, string(body)); err != nil {
			return fmt.Errorf("schema %s: %w", step.file, err)
		}
		current = step.version
	}
	return nil
}

// upgrade runs body and bumps user_version in a single transaction.
func upgrade(ctx context.Context, db *sql.DB, version int, body string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	// PRAGMA arguments cannot be bound; version comes from a parsed file name.
	if _, err := tx.ExecContext(ctx, "PRAGMA user_version = "+strconv.Itoa(version)); err != nil {
		return err
	}
	return tx.Commit()
}

// schemaSteps lists the *.sql files in files ordered by their numeric prefix.
func schemaSteps(files fs.FS) ([]schemaStep, error) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list schema files: %w", err)
	}

	steps := make([]schemaStep, 0, len(names))
	seen := make(map[int]string, len(names))
	for _, name := range names {
		prefix, _, _ := strings.Cut(strings.TrimSuffix(path.Base(name), ".sql"), "_")
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("schema file %s: name must start with a positive number", name)
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("schema files %s and %s share version %d", other, name, version)
		}
		seen[version] = name
		steps = append(steps, schemaStep{version: version, file: name})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].version < steps[j].version })
	return steps, nil
}
