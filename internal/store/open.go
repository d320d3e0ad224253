package store

import (
	"github.com/sirupsen/logrus"
)

// Open returns the record store for driver: a FileStore under dataDir for
// "file" (or empty), and a migrated SQLStore for postgres and sqlite3.
func Open(driver, dataSourceName, dataDir string, logger *logrus.Logger) (RecordStore, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
		db, err := ConnectDB(driver, dataSourceName)
		if err != nil {
			return nil, err
		}
		if err := RunMigrations(db, Migrations(), logger); err != nil {
			db.Close()
			return nil, err
		}
		logger.WithField("driver", driver).Info("Using SQL record store")
		return NewSQLStore(db, driver), nil
	default:
		logger.WithField("dir", dataDir).Info("Using file record store")
		return NewFileStore(dataDir)
	}
}
