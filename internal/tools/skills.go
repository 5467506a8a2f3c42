// internal/tools/skills.go
package tools

import (
	"context"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"

	stderrors "erpnext-bridge/internal/common/errors"
)

func (s *Server) registerSkillTools() {
	s.register(
		mcp.NewTool(
			"list_skills",
			mcp.WithDescription("List the loaded skill workflows"),
		),
		s.handleListSkills,
	)

	s.register(
		mcp.NewTool(
			"get_skill",
			mcp.WithDescription("Get the full definition of a loaded skill"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Skill name")),
		),
		s.handleGetSkill,
	)

	s.register(
		mcp.NewTool(
			"run_skill",
			mcp.WithDescription("Execute a skill workflow step by step, compensating on failure"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Skill name")),
			mcp.WithObject("inputs", mcp.Description("Initial context values for the run")),
		),
		s.handleRunSkill,
	)

	s.register(
		mcp.NewTool(
			"validate_skill",
			mcp.WithDescription("Validate a skill definition without loading it into the catalog"),
			mcp.WithString("definition", mcp.Required(), mcp.Description("Skill definition as JSON or YAML text")),
			mcp.WithString("format", mcp.Description("json or yaml, default json")),
		),
		s.handleValidateSkill,
	)
}

func (s *Server) handleListSkills(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	names := make([]string, 0, len(s.catalog))
	for name := range s.catalog {
		names = append(names, name)
	}
	sort.Strings(names)

	summaries := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		skill := s.catalog[name]
		summaries = append(summaries, map[string]interface{}{
			"name":        skill.Name,
			"description": skill.Description,
			"steps":       len(skill.Workflow.Steps),
		})
	}
	return map[string]interface{}{"skills": summaries, "count": len(summaries)}, nil
}

func (s *Server) handleGetSkill(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}
	skill, ok := s.catalog[name]
	if !ok {
		return nil, stderrors.NewSkillNotFoundError(name)
	}
	return skill, nil
}

func (s *Server) handleRunSkill(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}
	skill, ok := s.catalog[name]
	if !ok {
		return nil, stderrors.NewSkillNotFoundError(name)
	}
	inputs, err := argMap(args, "inputs")
	if err != nil {
		return nil, err
	}

	return s.runner.Run(ctx, skill, inputs), nil
}

func (s *Server) handleValidateSkill(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	definition, err := requireString(args, "definition")
	if err != nil {
		return nil, err
	}
	isJSON := argString(args, "format") != "yaml"

	skill, err := s.loader.Parse([]byte(definition), isJSON)
	if err != nil {
		return map[string]interface{}{"valid": false, "error": err.Error()}, nil
	}
	return map[string]interface{}{
		"valid": true,
		"name":  skill.Name,
		"steps": len(skill.Workflow.Steps),
	}, nil
}
