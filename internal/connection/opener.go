package connection

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgresOpener dials a tenant's dedicated PostgreSQL storage with a
// bounded pool.
func PostgresOpener(dsn string, pool PoolConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if pool.MinPoolSize > 0 {
		sqlDB.SetMaxIdleConns(pool.MinPoolSize)
	}
	if pool.MaxPoolSize > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxPoolSize)
	}
	if pool.IdleTimeout > 0 {
		sqlDB.SetConnMaxIdleTime(pool.IdleTimeout)
	}

	return db, nil
}
