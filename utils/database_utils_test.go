package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicjudges/announcer/model"
	"github.com/magicjudges/announcer/utils/flag"
)

func TestCreateTempDB(t *testing.T) {
	db, dbName := CreateTempDB(t)
	assert.True(t, strings.HasPrefix(dbName, TestDBPrefix))

	for _, m := range model.AllModels() {
		assert.True(t, db.Migrator().HasTable(m))
	}
}

func TestCreateTempDB_Isolated(t *testing.T) {
	db1, _ := CreateTempDB(t)
	db2, _ := CreateTempDB(t)

	require.Nil(t, db1.Create(&model.AdMessage{Id: "a", Text: "hello", Live: true}).Error)

	var count int64
	require.Nil(t, db2.Model(&model.AdMessage{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestGetDBConnection_UnknownDriver(t *testing.T) {
	_, err := GetDBConnection(flag.DatabaseOptions{Driver: "mysql"})
	assert.NotNil(t, err)
}

func TestGetDBConnection_Sqlite(t *testing.T) {
	db, err := GetDBConnection(flag.DatabaseOptions{Driver: "sqlite", SqlitePath: t.TempDir() + "/test.db"})
	require.Nil(t, err)
	require.Nil(t, DatabaseSetupAndMigration(db))
	assert.True(t, db.Migrator().HasTable(&model.Source{}))
	conn, _ := db.DB()
	conn.Close()
}
