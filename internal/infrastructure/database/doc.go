// Package database opens the SQLite file that backs the history store and
// the audit log, and applies their schema migrations.
//
// Thing state lives in memory; nothing here is needed to serve a Thing.
// Migrations are read from any fs.FS as {version}_{name}.up.sql and
// .down.sql pairs and only ever add: new columns are NULLable or have a
// default.
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
