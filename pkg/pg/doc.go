// Package pg connects to PostgreSQL with pgx/v5, exposes a readiness probe
// and applies the job subsystem's goose migrations.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, db.Migrations, cfg, log); err != nil {
//		return err
//	}
package pg
