// database_utils should be the canonical place to put shared DB utils.
// It should not include:
// 1. Any util that doesn't manipulate DB
// 2. Any util that contains business logic
package utils

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/magicjudges/announcer/model"
	"github.com/magicjudges/announcer/utils/flag"
)

const (
	TestDBPrefix         = "testonlydb_"
	TestDBNameCharLength = 8
)

func randomTestDBName() string {
	return TestDBPrefix + RandomAlphabetString(TestDBNameCharLength)
}

// GetDBConnection get a connection to the database described by opts.
func GetDBConnection(opts flag.DatabaseOptions) (*gorm.DB, error) {
	switch opts.Driver {
	case "sqlite":
		db, err := getDB(sqlite.Open(opts.SqlitePath))
		if err != nil {
			return nil, err
		}
		return db, singleWriter(db)
	case "postgres", "":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			opts.Host, opts.User, opts.Password, opts.Name, opts.Port)
		return getDB(postgres.Open(dsn))
	}
	return nil, errors.Errorf("unsupported database driver %q", opts.Driver)
}

func getDB(dialector gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		// Every timestamp is stored in UTC so that ordering comparisons agree
		// between drivers.
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
}

// singleWriter funnels all sqlite access through one connection. Concurrent
// writers on separate connections would fail with "database is locked"
// instead of waiting.
func singleWriter(db *gorm.DB) error {
	conn, err := db.DB()
	if err != nil {
		return err
	}
	conn.SetMaxOpenConns(1)
	return nil
}

// DatabaseSetupAndMigration creates or updates every table.
func DatabaseSetupAndMigration(db *gorm.DB) error {
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		return errors.Wrap(err, "failed to migrate database")
	}
	return nil
}

// CreateTempDB creates an isolated in-memory database with the full schema.
// It is closed when the test finishes, so callers never clean it up.
func CreateTempDB(t *testing.T) (*gorm.DB, string) {
	t.Helper()
	dbName := randomTestDBName()
	// A named shared-cache memory database lives as long as one connection to
	// it is open, and every pooled connection sees the same data.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbName)
	db, err := getDB(sqlite.Open(dsn))
	if err != nil {
		t.Fatalf("fail to open temp DB %s: %v", dbName, err)
	}
	if err := singleWriter(db); err != nil {
		t.Fatalf("fail to configure temp DB %s: %v", dbName, err)
	}
	if err := DatabaseSetupAndMigration(db); err != nil {
		t.Fatalf("fail to migrate temp DB %s: %v", dbName, err)
	}
	t.Cleanup(func() {
		conn, err := db.DB()
		if err == nil {
			conn.Close()
		}
	})
	return db, dbName
}
