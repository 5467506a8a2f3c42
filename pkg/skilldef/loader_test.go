// pkg/skilldef/loader_test.go
package skilldef

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpnext-bridge/internal/common/logger"
	"erpnext-bridge/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

const validSkillJSON = `{
  "name": "onboard_customer",
  "description": "Create a customer with a first order",
  "inputs": {"customer_name": null, "item_code": null},
  "workflow": {
    "steps": [
      {
        "step": "create_customer",
        "tool": "create_document",
        "arguments": {"doctype": "Customer", "fields": {"customer_name": "${customer_name}"}},
        "save_as": "customer",
        "compensate": {"tool": "delete_document", "arguments": {"doctype": "Customer", "name": "${customer.name}"}}
      },
      {
        "step": "create_order",
        "tool": "create_document",
        "arguments": {"doctype": "Sales Order", "fields": {"customer": "${customer.name}", "item": "${item_code}"}}
      }
    ]
  }
}`

const validSkillYAML = `name: close_project
description: Close a project after archiving tasks
inputs:
  project: null
workflow:
  steps:
    - step: archive_tasks
      tool: bulk_update_documents
      arguments:
        doctype: Task
        filters:
          project: ${project}
    - step: close
      tool: update_document
      arguments:
        doctype: Project
        name: ${project}
        fields:
          status: Completed
`

func writeSkillDir(t *testing.T, files map[string]string) string {
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func newTestLoader(t *testing.T, dir string) *Loader {
	loader, err := NewLoader(dir, logger.NewTestLogger(t))
	require.NoError(t, err)
	return loader
}

// ==========================
// Loader Tests
// ==========================

func TestLoader_LoadsJSONAndYAML(t *testing.T) {
	dir := writeSkillDir(t, map[string]string{
		"onboard.json": validSkillJSON,
		"close.yaml":   validSkillYAML,
		"notes.txt":    "not a skill",
	})
	loader := newTestLoader(t, dir)

	skills, err := loader.Load()

	require.NoError(t, err)
	require.Len(t, skills, 2)

	onboard := skills["onboard_customer"]
	require.NotNil(t, onboard)
	require.Len(t, onboard.Workflow.Steps, 2)
	assert.Equal(t, "create_customer", onboard.Workflow.Steps[0].Name)
	assert.Equal(t, "customer", onboard.Workflow.Steps[0].SaveAs)
	require.NotNil(t, onboard.Workflow.Steps[0].Compensate)
	assert.Equal(t, "delete_document", onboard.Workflow.Steps[0].Compensate.Tool)

	closeProject := skills["close_project"]
	require.NotNil(t, closeProject)
	assert.Equal(t, "Task", closeProject.Workflow.Steps[0].Arguments["doctype"])
}

func TestLoader_SkipsInvalidFiles(t *testing.T) {
	dir := writeSkillDir(t, map[string]string{
		"good.json":     validSkillJSON,
		"no_steps.json": `{"name": "empty", "workflow": {"steps": []}}`,
		"no_name.json":  `{"workflow": {"steps": [{"step": "s", "tool": "t"}]}}`,
		"garbage.json":  `{{{`,
	})
	loader := newTestLoader(t, dir)

	skills, err := loader.Load()

	require.NoError(t, err)
	assert.Len(t, skills, 1)
	assert.Contains(t, skills, "onboard_customer")
}

func TestLoader_RejectsUnresolvedBinding(t *testing.T) {
	dir := writeSkillDir(t, map[string]string{
		"bad.json": `{
  "name": "bad",
  "inputs": {"a": null},
  "workflow": {"steps": [
    {"step": "s1", "tool": "t", "arguments": {"x": "${nonexistent}"}}
  ]}
}`,
	})
	loader := newTestLoader(t, dir)

	skills, err := loader.Load()

	require.NoError(t, err)
	assert.Empty(t, skills)
}

func TestLoader_MissingDirectoryErrors(t *testing.T) {
	loader := newTestLoader(t, filepath.Join(t.TempDir(), "nope"))

	_, err := loader.Load()

	assert.Error(t, err)
}

// ==========================
// Binding Analysis Tests
// ==========================

func TestAnalyzeBindings(t *testing.T) {
	tests := []struct {
		name    string
		skill   Skill
		wantErr bool
	}{
		{
			name: "later step reads earlier output",
			skill: Skill{
				Name:   "ok",
				Inputs: map[string]interface{}{"seed": nil},
				Workflow: Workflow{Steps: []models.WorkflowStep{
					{Name: "first", Tool: "t", Arguments: map[string]interface{}{"v": "${seed}"}, SaveAs: "out"},
					{Name: "second", Tool: "t", Arguments: map[string]interface{}{"v": "${out.name}"}},
				}},
			},
		},
		{
			name: "step name doubles as output key",
			skill: Skill{
				Name: "ok",
				Workflow: Workflow{Steps: []models.WorkflowStep{
					{Name: "first", Tool: "t"},
					{Name: "second", Tool: "t", Arguments: map[string]interface{}{"v": "${first}"}},
				}},
			},
		},
		{
			name: "forward reference fails",
			skill: Skill{
				Name: "bad",
				Workflow: Workflow{Steps: []models.WorkflowStep{
					{Name: "first", Tool: "t", Arguments: map[string]interface{}{"v": "${second}"}},
					{Name: "second", Tool: "t"},
				}},
			},
			wantErr: true,
		},
		{
			name: "compensation may read own output",
			skill: Skill{
				Name:   "ok",
				Inputs: map[string]interface{}{"doctype": nil},
				Workflow: Workflow{Steps: []models.WorkflowStep{
					{
						Name: "create", Tool: "t",
						Arguments:  map[string]interface{}{"doctype": "${doctype}"},
						SaveAs:     "doc",
						Compensate: &models.CompensationAction{Tool: "undo", Arguments: map[string]interface{}{"name": "${doc.name}"}},
					},
				}},
			},
		},
		{
			name: "compensation unresolved reference fails",
			skill: Skill{
				Name: "bad",
				Workflow: Workflow{Steps: []models.WorkflowStep{
					{
						Name: "create", Tool: "t",
						Compensate: &models.CompensationAction{Tool: "undo", Arguments: map[string]interface{}{"name": "${other.name}"}},
					},
				}},
			},
			wantErr: true,
		},
		{
			name: "nested references are found",
			skill: Skill{
				Name: "bad",
				Workflow: Workflow{Steps: []models.WorkflowStep{
					{Name: "s", Tool: "t", Arguments: map[string]interface{}{
						"fields": map[string]interface{}{"deep": []interface{}{"${missing}"}},
					}},
				}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AnalyzeBindings(&tt.skill)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOutputKey(t *testing.T) {
	assert.Equal(t, "saved", OutputKey(models.WorkflowStep{Name: "s", SaveAs: "saved"}, 0))
	assert.Equal(t, "s", OutputKey(models.WorkflowStep{Name: "s"}, 0))
	assert.Equal(t, "step-3", OutputKey(models.WorkflowStep{}, 2))
}
