package integrationtests

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/nodeflow/internal/app"
	"github.com/vk/nodeflow/internal/testutil"
)

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		script  string
		nodes   []string
		wantErr string
	}{
		{
			name:    "syntax error",
			script:  `node "Record" "a" {`,
			wantErr: "failed to parse",
		},
		{
			name:    "unknown node type",
			script:  `node "Nope" "a" {}`,
			wantErr: "unknown node type 'Nope'",
		},
		{
			name:    "unknown plug",
			script:  `node "Record" "a" { colour = "red" }`,
			wantErr: "no plug 'colour'",
		},
		{
			name:    "bad connection",
			script:  `node "Record" "a" { connect = { "preTasks.preTask0" = "ghost.task" } }`,
			wantErr: "no plug 'ghost.task'",
		},
		{
			name:    "unknown requested node",
			script:  `node "Record" "a" {}`,
			nodes:   []string{"b"},
			wantErr: "no node named 'b'",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := &testutil.RecorderModule{}
			result := testutil.RunScripts(t, map[string]string{"scripts/main.hcl": tc.script}, app.Config{Nodes: tc.nodes}, rec)
			require.Error(t, result.Err)
			assert.Contains(t, result.Err.Error(), tc.wantErr)
			assert.Empty(t, rec.Order())
		})
	}
}

func TestLoad_EmptyDirectory(t *testing.T) {
	t.Parallel()
	result := testutil.RunScripts(t, map[string]string{}, app.Config{}, &testutil.RecorderModule{})
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "failed to find scripts")
}

func TestLoad_NoTaskNodes(t *testing.T) {
	t.Parallel()
	result := testutil.RunScripts(t, map[string]string{"scripts/main.hcl": "# nothing here\n"}, app.Config{}, &testutil.RecorderModule{})
	require.NoError(t, result.Err)
	assert.Contains(t, result.LogOutput, "No task nodes found in script")
}
