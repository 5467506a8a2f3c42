// pkg/skilldef/loader.go
package skilldef

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"erpnext-bridge/internal/common/logger"
)

// definitionSchema is the structural contract every skill file must meet
// before binding analysis runs.
const definitionSchema = `{
  "type": "object",
  "required": ["name", "workflow"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "version": {"type": "string"},
    "tools": {"type": "array", "items": {"type": "string"}},
    "inputs": {"type": "object"},
    "workflow": {
      "type": "object",
      "required": ["steps"],
      "properties": {
        "steps": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "required": ["step", "tool"],
            "properties": {
              "step": {"type": "string", "minLength": 1},
              "tool": {"type": "string", "minLength": 1},
              "arguments": {"type": "object"},
              "save_as": {"type": "string"},
              "continue_on_error": {"type": "boolean"},
              "compensate": {
                "type": "object",
                "required": ["tool"],
                "properties": {
                  "tool": {"type": "string", "minLength": 1},
                  "arguments": {"type": "object"}
                }
              }
            }
          }
        }
      }
    }
  }
}`

// Loader reads skill definitions from a directory.
type Loader struct {
	dir    string
	schema *gojsonschema.Schema
	logger logger.Logger
}

func NewLoader(dir string, log logger.Logger) (*Loader, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(definitionSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile skill definition schema: %w", err)
	}
	return &Loader{
		dir:    dir,
		schema: schema,
		logger: log.WithFields(map[string]interface{}{"component": "skilldef"}),
	}, nil
}

// Load scans the directory for *.json, *.yaml, and *.yml files and returns
// the valid skills keyed by name. Invalid files are logged and skipped so
// one broken definition never takes the whole catalog down.
func (l *Loader) Load() (map[string]*Skill, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read skills directory %s: %w", l.dir, err)
	}

	skills := make(map[string]*Skill)
	for _, entry := range entries {
		if entry.IsDir() || !isDefinitionFile(entry.Name()) {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		skill, err := l.LoadFile(path)
		if err != nil {
			l.logger.Warn("skipping invalid skill definition", map[string]interface{}{
				"file":  entry.Name(),
				"error": err.Error(),
			})
			continue
		}
		if _, exists := skills[skill.Name]; exists {
			l.logger.Warn("skipping duplicate skill name", map[string]interface{}{
				"file": entry.Name(),
				"name": skill.Name,
			})
			continue
		}
		skills[skill.Name] = skill
		l.logger.Info("skill loaded", map[string]interface{}{
			"name":  skill.Name,
			"steps": len(skill.Workflow.Steps),
		})
	}
	return skills, nil
}

// LoadFile parses, validates, and binding-checks a single definition file.
func (l *Loader) LoadFile(path string) (*Skill, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return l.Parse(raw, strings.HasSuffix(strings.ToLower(path), ".json"))
}

// Parse validates raw definition bytes. YAML is normalized to JSON first so
// both formats share one validation path.
func (l *Loader) Parse(raw []byte, isJSON bool) (*Skill, error) {
	jsonBytes := raw
	if !isJSON {
		var doc interface{}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		jsonBytes, _ = json.Marshal(normalizeYAML(doc))
	}

	result, err := l.schema.Validate(gojsonschema.NewBytesLoader(jsonBytes))
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, issue := range result.Errors() {
			issues = append(issues, issue.String())
		}
		return nil, fmt.Errorf("definition failed validation: %s", strings.Join(issues, "; "))
	}

	var skill Skill
	if err := json.Unmarshal(jsonBytes, &skill); err != nil {
		return nil, fmt.Errorf("failed to decode definition: %w", err)
	}
	if err := AnalyzeBindings(&skill); err != nil {
		return nil, err
	}
	return &skill, nil
}

func isDefinitionFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// normalizeYAML rewrites yaml.v3 interface maps into string-keyed maps so
// they survive a json.Marshal round trip.
func normalizeYAML(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = normalizeYAML(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = normalizeYAML(item)
		}
		return out
	default:
		return v
	}
}
