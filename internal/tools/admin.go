// internal/tools/admin.go
package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	stderrors "erpnext-bridge/internal/common/errors"
)

// permissionTypes are the grantable flags on a role permission row.
var permissionTypes = map[string]bool{
	"read":   true,
	"write":  true,
	"create": true,
	"delete": true,
	"submit": true,
	"cancel": true,
	"amend":  true,
}

func (s *Server) registerAdminTools() {
	s.register(
		mcp.NewTool(
			"get_permissions",
			mcp.WithDescription("List the role permission rows declared on a DocType"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
		),
		s.handleGetPermissions,
	)

	s.register(
		mcp.NewTool(
			"set_permissions",
			mcp.WithDescription("Grant or revoke one permission type for a role on a DocType. Requires admin privileges on the remote store"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithString("role", mcp.Required(), mcp.Description("Role name, e.g. \"Sales User\"")),
			mcp.WithString("ptype", mcp.Description("Permission type: read, write, create, delete, submit, cancel, or amend; default read")),
			mcp.WithBoolean("value", mcp.Description("true to grant, false to revoke; default true")),
		),
		s.handleSetPermissions,
	)

	s.register(
		mcp.NewTool(
			"rollback_document",
			mcp.WithDescription("Restore a document to the state captured by an earlier version"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Document name")),
			mcp.WithNumber("version", mcp.Required(), mcp.Description("Version number to restore")),
		),
		s.handleRollbackDocument,
	)

	s.register(
		mcp.NewTool(
			"get_print_format",
			mcp.WithDescription("Render a document through a print format on the remote store"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Document name")),
			mcp.WithString("format", mcp.Description("Print format name, default Standard")),
		),
		s.handleGetPrintFormat,
	)
}

// handleGetPermissions reads the permission rows off the DocType document
// itself; the remote store declares them inline.
func (s *Server) handleGetPermissions(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}

	doc, err := s.client.Get(ctx, "DocType", doctype)
	if err != nil {
		return nil, err
	}
	perms, _ := doc["permissions"].([]interface{})
	return map[string]interface{}{
		"doctype":          doctype,
		"permissions":      perms,
		"permission_count": len(perms),
	}, nil
}

// handleSetPermissions writes a Custom Role document carrying the flag, the
// store's supported path for per-role grants without altering the DocType.
func (s *Server) handleSetPermissions(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	role, err := requireString(args, "role")
	if err != nil {
		return nil, err
	}
	ptype := argString(args, "ptype")
	if ptype == "" {
		ptype = "read"
	}
	if !permissionTypes[ptype] {
		return nil, stderrors.NewInvalidInputError(fmt.Sprintf("unknown permission type %q", ptype))
	}
	grant := true
	if v, ok := args["value"].(bool); ok {
		grant = v
	}

	fields := map[string]interface{}{
		"role":        role,
		"ref_doctype": doctype,
	}
	for pt := range permissionTypes {
		fields[pt] = 0
	}
	if grant {
		fields[ptype] = 1
	}

	result, err := s.execute(ctx, "set_permissions", fields, func(ctx context.Context) (string, map[string]interface{}, error) {
		return s.client.Create(ctx, "Custom Role", fields)
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"doctype":         doctype,
		"role":            role,
		"permission_type": ptype,
		"granted":         grant,
		"result":          result,
	}, nil
}

func (s *Server) handleRollbackDocument(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}
	version := argInt(args, "version", 0)
	if version <= 0 {
		return nil, stderrors.NewInvalidInputError("version must be a positive integer")
	}

	doc, err := s.execute(ctx, "rollback", nil, func(ctx context.Context) (string, map[string]interface{}, error) {
		restored, err := s.client.Rollback(ctx, doctype, name, version)
		if err != nil {
			return "", nil, err
		}
		return name, restored, nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"doctype":  doctype,
		"name":     name,
		"version":  version,
		"restored": true,
		"document": doc,
	}, nil
}

func (s *Server) handleGetPrintFormat(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}
	format := argString(args, "format")
	if format == "" {
		format = "Standard"
	}

	if err := s.client.RenderPrintFormat(ctx, doctype, name, format); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"doctype":   doctype,
		"name":      name,
		"format":    format,
		"generated": true,
	}, nil
}
