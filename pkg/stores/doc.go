// Package stores persists manifest snapshots and diff gate reports in a
// SQLite file.
//
// A snapshot is the raw bytes of a manifest together with its sha256 and
// the schema generation it was written in. Snapshots are saved by name
// ("prod", "main") and later loaded back as the base state of a state
// comparison; saving the same name again adds a newer snapshot rather than
// replacing the old one. Diff reports record each run of the diff gate.
//
// The schema is managed with golang-migrate from embedded SQL files.
//
//	store, err := stores.NewSQLiteStore(stores.Config{Path: ".manifold/snapshots.db"})
//	if err != nil {
//		return err
//	}
//	if err := store.Init(ctx); err != nil {
//		return err
//	}
//	defer store.Close()
//	if err := store.Migrate(ctx); err != nil {
//		return err
//	}
//	snap, err := store.LatestSnapshot(ctx, "prod")
package stores
