// Package database manages the SQLite connection backing the identity registry.
//
// The registry's persistence needs are deliberately small: a single table of
// instance mappings, written one row at a time. SQLite with WAL mode and a
// busy timeout covers this with per-statement atomicity, which is the
// durability contract the registry relies on.
//
// # Migrations
//
// Schema migrations are embedded into the binary via the top-level migrations
// package and applied on startup:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    return err
//	}
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files follow the naming scheme
// YYYYMMDD_HHMMSS_description.up.sql (and optional .down.sql).
package database
