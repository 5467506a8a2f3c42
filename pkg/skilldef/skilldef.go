// Package skilldef loads and validates skill definitions: declarative
// multi-step workflows stored as JSON or YAML files.
package skilldef

import (
	"fmt"
	"regexp"
	"strings"

	"erpnext-bridge/internal/models"
)

// Skill is one loaded definition.
type Skill struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
	// Tools lists the tool names the workflow is allowed to invoke.
	Tools []string `json:"tools,omitempty"`
	// Inputs declares the expected initial-context keys with their default
	// values. A nil default marks a required input.
	Inputs   map[string]interface{} `json:"inputs,omitempty"`
	Workflow Workflow               `json:"workflow"`
}

// Workflow is the ordered step list of a skill.
type Workflow struct {
	Steps []models.WorkflowStep `json:"steps"`
}

// OutputKey returns the context key a step's output is saved under.
func OutputKey(step models.WorkflowStep, index int) string {
	if step.SaveAs != "" {
		return step.SaveAs
	}
	if step.Name != "" {
		return step.Name
	}
	return fmt.Sprintf("step-%d", index+1)
}

var bindingPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// References collects every ${var} root referenced anywhere in a value,
// recursing into maps and slices. Dotted paths report their root segment.
func References(value interface{}) []string {
	seen := make(map[string]bool)
	collectReferences(value, seen)

	out := make([]string, 0, len(seen))
	for ref := range seen {
		out = append(out, ref)
	}
	return out
}

func collectReferences(value interface{}, seen map[string]bool) {
	switch v := value.(type) {
	case string:
		for _, match := range bindingPattern.FindAllStringSubmatch(v, -1) {
			root := strings.SplitN(match[1], ".", 2)[0]
			seen[root] = true
		}
	case map[string]interface{}:
		for _, item := range v {
			collectReferences(item, seen)
		}
	case []interface{}:
		for _, item := range v {
			collectReferences(item, seen)
		}
	}
}

// AnalyzeBindings checks that every ${var} reference in every step resolves
// to a declared input or an earlier step's saved output. This is the
// configuration-time counterpart of the runtime resolution: a definition
// that passes here cannot hit an unresolved binding in declared-order
// execution.
func AnalyzeBindings(skill *Skill) error {
	resolvable := make(map[string]bool, len(skill.Inputs))
	for input := range skill.Inputs {
		resolvable[input] = true
	}

	for i, step := range skill.Workflow.Steps {
		for _, ref := range References(step.Arguments) {
			if !resolvable[ref] {
				return fmt.Errorf("step %q references %q which is neither a declared input nor an earlier step's output", step.Name, ref)
			}
		}
		if step.Compensate != nil {
			// compensations may also read the step's own output
			compensable := make(map[string]bool, len(resolvable)+1)
			for k := range resolvable {
				compensable[k] = true
			}
			compensable[OutputKey(step, i)] = true
			for _, ref := range References(step.Compensate.Arguments) {
				if !compensable[ref] {
					return fmt.Errorf("compensation of step %q references unresolved %q", step.Name, ref)
				}
			}
		}
		resolvable[OutputKey(step, i)] = true
	}
	return nil
}
