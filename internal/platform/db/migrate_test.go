package db

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumail/resumail/migrations"
)

func TestLoadMigrationsSortsAndSkips(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_b.sql":   {Data: []byte("SELECT 2;")},
		"0001_a.sql":   {Data: []byte("SELECT 1;")},
		"README.md":    {Data: []byte("docs")},
		"0003_c.sql":   {Data: []byte("  \n")},
		"sub/0000.sql": {Data: []byte("SELECT 0;")},
	}
	got, err := LoadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0001_a.sql", got[0].Name)
	assert.Equal(t, "0002_b.sql", got[1].Name)
}

func TestPending(t *testing.T) {
	all := []Migration{{Name: "0001"}, {Name: "0002"}, {Name: "0003"}}
	got := Pending(all, []string{"0001", "0003"})
	assert.Equal(t, []Migration{{Name: "0002"}}, got)
	assert.Len(t, Pending(all, nil), 3)
}

func TestEmbeddedMigrations(t *testing.T) {
	got, err := LoadMigrations(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "0001_report_archives.sql", got[0].Name)
	assert.Contains(t, got[0].SQL, "CREATE TABLE IF NOT EXISTS report_archives")
}
