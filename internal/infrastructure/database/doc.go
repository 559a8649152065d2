// Package database provides SQLite connectivity for Coldtag Core.
//
// This package manages:
//   - The connection, with WAL mode and foreign keys enabled
//   - Schema migrations read from an fs.FS (normally the embedded migrations package)
//   - Single-operation transactions through WithTx
//   - Classification of SQLite constraint failures into unique/foreign-key violations
//
// SQLite allows one writer, so the pool is capped at a single connection.
// Every multi-statement write goes through WithTx and either commits fully
// or rolls back.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
package database
