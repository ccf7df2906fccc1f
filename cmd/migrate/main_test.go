package main

import (
	"bytes"
	"testing"

	"chirp/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleStatus() *database.SchemaStatus {
	return &database.SchemaStatus{
		Mode:            database.SchemaModeHybrid,
		Environment:     "development",
		WillRunSQL:      true,
		AppliedVersions: []int{1},
		PendingMigrations: []database.Migration{
			{Version: 2, Name: "social_graph"},
		},
	}
}

func TestRenderStatus_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderStatus(&buf, sampleStatus(), "yaml"))

	var got statusView
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "hybrid", got.Mode)
	assert.Equal(t, []int{1}, got.Applied)
	assert.Equal(t, []string{"000002_social_graph"}, got.Pending)
}

func TestRenderStatus_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderStatus(&buf, sampleStatus(), "text"))
	assert.Equal(t,
		"mode=hybrid env=development run_sql=true run_auto=false applied=1 pending=1\npending: 000002_social_graph\n",
		buf.String())
}

func TestRenderStatus_UnknownFormat(t *testing.T) {
	err := renderStatus(&bytes.Buffer{}, sampleStatus(), "xml")
	assert.EqualError(t, err, `unknown output format "xml"`)
}
