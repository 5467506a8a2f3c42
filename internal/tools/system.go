// internal/tools/system.go
package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerSystemTools() {
	s.register(
		mcp.NewTool(
			"system_ping",
			mcp.WithDescription("Check connectivity and credentials against the remote store"),
		),
		s.handleSystemPing,
	)

	s.register(
		mcp.NewTool(
			"get_current_user",
			mcp.WithDescription("Resolve the user the configured API credentials act as"),
		),
		s.handleGetCurrentUser,
	)
}

func (s *Server) handleSystemPing(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	user, err := s.client.LoggedUser(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"ok": true, "user": user}, nil
}

func (s *Server) handleGetCurrentUser(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	user, err := s.client.LoggedUser(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"user": user}, nil
}
