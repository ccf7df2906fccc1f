package database

import (
	"context"
	"testing"

	"chirp/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaPolicy(t *testing.T) {
	tests := []struct {
		name      string
		env       string
		mode      string
		allow     bool
		wantSQL   bool
		wantAuto  bool
		wantError bool
	}{
		{"default is hybrid in development", "development", "", false, true, true, false},
		{"hybrid in production skips auto", "production", "hybrid", false, true, false, false},
		{"sql only", "development", "sql", false, true, false, false},
		{"auto in development", "development", "auto", false, false, true, false},
		{"auto in production refused", "production", "auto", false, false, false, true},
		{"auto in production allowed", "production", "auto", true, false, true, false},
		{"unknown mode", "development", "magic", false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Env: tt.env, DBSchemaMode: tt.mode, DBAutoMigrateAllowDestructive: tt.allow}
			runSQL, runAuto, err := schemaPolicy(cfg)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, runSQL)
			assert.Equal(t, tt.wantAuto, runAuto)
		})
	}
}

func TestGetSchemaStatus_AllPendingOnFreshDB(t *testing.T) {
	db := openSQLite(t)
	status, err := GetSchemaStatus(context.Background(), db, &config.Config{Env: "test", DBSchemaMode: "auto"})
	require.NoError(t, err)

	assert.Equal(t, SchemaModeAuto, status.Mode)
	assert.False(t, status.WillRunSQL)
	assert.True(t, status.WillRunAutoMigrate)
	assert.Empty(t, status.AppliedVersions)
	assert.Len(t, status.PendingMigrations, len(GetMigrations()))
}

func TestApplySchema_AutoMode(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, ApplySchema(context.Background(), db, &config.Config{Env: "test", DBSchemaMode: "auto"}))
	for _, table := range []string{"users", "posts", "likes", "follows"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}
