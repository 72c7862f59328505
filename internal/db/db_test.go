package db

import (
	"testing"
	"testing/fstest"

	qt "github.com/frankban/quicktest"
)

func TestLoadMigrationsOrdersByVersion(t *testing.T) {
	c := qt.New(t)

	fsys := fstest.MapFS{
		"migrations/0002_second.sql": {Data: []byte("SELECT 2")},
		"migrations/0001_first.sql":  {Data: []byte("SELECT 1")},
		"migrations/README.md":       {Data: []byte("ignored")},
	}
	ms, err := loadMigrations(fsys)
	c.Assert(err, qt.IsNil)
	c.Assert(ms, qt.HasLen, 2)
	c.Assert(ms[0].version, qt.Equals, 1)
	c.Assert(ms[1].name, qt.Equals, "0002_second.sql")
}

func TestLoadMigrationsRejectsBadNames(t *testing.T) {
	c := qt.New(t)

	_, err := loadMigrations(fstest.MapFS{"migrations/init.sql": {Data: []byte("")}})
	c.Assert(err, qt.IsNotNil)

	_, err = loadMigrations(fstest.MapFS{
		"migrations/0001_a.sql": {Data: []byte("")},
		"migrations/0001_b.sql": {Data: []byte("")},
	})
	c.Assert(err, qt.ErrorMatches, "duplicate migration version 1")
}

func TestEmbeddedMigrations(t *testing.T) {
	c := qt.New(t)

	ms, err := loadMigrations(migrationFiles)
	c.Assert(err, qt.IsNil)
	c.Assert(len(ms) > 0, qt.IsTrue)
	c.Assert(ms[0].version, qt.Equals, 1)
}
