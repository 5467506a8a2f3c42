// internal/tools/schema.go
package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerSchemaTools() {
	s.register(
		mcp.NewTool(
			"list_doctypes",
			mcp.WithDescription("List DocType names available in the remote store"),
			mcp.WithString("module", mcp.Description("Restrict to one module")),
			mcp.WithBoolean("custom_only", mcp.Description("Only list custom DocTypes")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of names, default 200")),
		),
		s.handleListDocTypes,
	)

	s.register(
		mcp.NewTool(
			"get_doctype_schema",
			mcp.WithDescription("Get the field metadata for a DocType, served from cache when fresh"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
		),
		s.handleGetSchema,
	)

	s.register(
		mcp.NewTool(
			"refresh_doctype_schema",
			mcp.WithDescription("Invalidate the cached schema for a DocType and refetch it"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
		),
		s.handleRefreshSchema,
	)
}

func (s *Server) handleListDocTypes(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	names, err := s.client.ListDocTypes(ctx, argString(args, "module"), argBool(args, "custom_only"), argInt(args, "limit", 200))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"doctypes": names, "count": len(names)}, nil
}

func (s *Server) handleGetSchema(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	return s.schemas.Get(ctx, doctype)
}

func (s *Server) handleRefreshSchema(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	s.schemas.Invalidate(doctype)
	return s.schemas.Get(ctx, doctype)
}
