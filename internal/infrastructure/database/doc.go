// Package database provides the SQLite connection behind the command journal.
//
// The journal is optional (database.enabled) and records hardware commands
// issued through the API. Centred positions are never stored here.
//
// Usage:
//
//	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// All queries use parameterised statements. The file is created 0600.
package database
