package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "Intake", cfg.Pipeline.Stages[0].Name)
	require.Equal(t, 3, cfg.Workflow.DefaultRevisionLimit)
	require.Equal(t, []string{"Posted", "Archived"}, cfg.Overdue.ExcludeStatuses)
	require.Equal(t, []string{"Approval Needed", "Scheduled", "In Progress"}, cfg.WorkflowStatuses())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestFromYAMLKeepsWorkflowDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`pipeline:
  stages:
    - name: Backlog
    - name: In Progress
      wip_limit: 2
    - name: Approval Needed
    - name: Scheduled
`))
	require.NoError(t, err)
	require.Len(t, cfg.Pipeline.Stages, 4)
	require.Equal(t, 2, *cfg.Pipeline.Stages[1].WIPLimit)
	require.Nil(t, cfg.Pipeline.Stages[0].WIPLimit)
	require.Equal(t, "Approval Needed", cfg.Workflow.ApprovalRequestedStatus)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"no stages": `pipeline:
  stages: []
`,
		"duplicate stage": `pipeline:
  stages:
    - name: Intake
    - name: Intake
`,
		"negative wip": `pipeline:
  stages:
    - name: Intake
      wip_limit: -1
`,
		"workflow status not a stage": `pipeline:
  stages:
    - name: Intake
    - name: Scheduled
    - name: In Progress
`,
		"stage named like archive": `pipeline:
  stages:
    - name: Archived
`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(raw))
			require.Error(t, err)
		})
	}
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "contentline.yml"), []byte(GenerateDefault()), 0o644))
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "/v1", cfg.Server.BasePath)
}
