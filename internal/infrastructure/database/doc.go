// Package database provides SQLite connectivity for the valve core.
//
// The store is small: the control configuration with its weekly schedule,
// and an append-only actuation history. This package manages:
//   - Database connection with WAL mode so API reads never block history writes
//   - Schema migrations embedded in the binary
//   - A single-connection pool, matching SQLite's single writer
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be NULLABLE or carry a DEFAULT,
// and each .up.sql file should ship with a matching .down.sql.
package database
