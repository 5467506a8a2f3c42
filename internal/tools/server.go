// Package tools exposes the bridge's operations as MCP tools. Every tool
// is also registered in an internal dispatch table so skill workflows can
// invoke the same operations without going over the wire.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"erpnext-bridge/internal/autofill"
	"erpnext-bridge/internal/bulk"
	stderrors "erpnext-bridge/internal/common/errors"
	"erpnext-bridge/internal/common/logger"
	"erpnext-bridge/internal/erpnext"
	"erpnext-bridge/internal/retry"
	"erpnext-bridge/internal/schema"
	"erpnext-bridge/internal/skills"
	"erpnext-bridge/pkg/skilldef"
)

// toolFunc is one tool implementation. The returned value is serialized to
// JSON for MCP callers and handed to skill steps as their output.
type toolFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// OperationRecorder receives a per-tool outcome and latency measurement for
// every dispatch. The observability package's instruments satisfy it.
type OperationRecorder interface {
	RecordOperation(ctx context.Context, operation, status string)
	RecordOperationDuration(ctx context.Context, duration time.Duration, operation string)
}

// Server wires the tool families onto an MCP server.
type Server struct {
	mcpServer *server.MCPServer
	ops       map[string]toolFunc
	logger    logger.Logger
	recorder  OperationRecorder

	client   *erpnext.Client
	schemas  *schema.Cache
	engine   *autofill.Engine
	policy   *retry.Policy
	executor *bulk.Executor
	runner   *skills.Runner
	loader   *skilldef.Loader
	catalog  map[string]*skilldef.Skill
}

type ServerOption func(*Server)

// WithRecorder attaches observability instruments to tool dispatch.
func WithRecorder(recorder OperationRecorder) ServerOption {
	return func(s *Server) { s.recorder = recorder }
}

func NewServer(version string, client *erpnext.Client, schemas *schema.Cache, engine *autofill.Engine, policy *retry.Policy, executor *bulk.Executor, loader *skilldef.Loader, catalog map[string]*skilldef.Skill, log logger.Logger, opts ...ServerOption) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"erpnext-bridge",
			version,
			server.WithToolCapabilities(true),
		),
		ops:      make(map[string]toolFunc),
		logger:   log.WithFields(map[string]interface{}{"component": "tools"}),
		client:   client,
		schemas:  schemas,
		engine:   engine,
		policy:   policy,
		executor: executor,
		loader:   loader,
		catalog:  catalog,
	}
	if s.catalog == nil {
		s.catalog = make(map[string]*skilldef.Skill)
	}
	for _, opt := range opts {
		opt(s)
	}

	// skill steps dispatch back through the server's own tool table
	s.runner = skills.NewRunner(s, policy, log)

	s.registerSystemTools()
	s.registerSchemaTools()
	s.registerDocumentTools()
	s.registerQueryTools()
	s.registerBulkTools()
	s.registerSkillTools()
	s.registerAdminTools()
	return s
}

// MCPServer exposes the underlying server for transport mounting.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// register adds a tool to both the MCP surface and the internal dispatch
// table used by skill workflows.
func (s *Server) register(tool mcp.Tool, fn toolFunc) {
	s.ops[tool.Name] = fn
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			args = map[string]interface{}{}
		}

		result, err := s.call(ctx, tool.Name, fn, args)
		if err != nil {
			stdErr := stderrors.Enrich(err, argString(args, "doctype"), tool.Name)
			payload, _ := json.Marshal(stdErr)
			return mcp.NewToolResultError(string(payload)), nil
		}

		payload, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(payload)), nil
	})
}

// call runs one tool implementation and reports its outcome and latency to
// the attached recorder, if any. Both MCP dispatch and Invoke route here so
// every tool call is measured exactly once.
func (s *Server) call(ctx context.Context, tool string, fn toolFunc, args map[string]interface{}) (interface{}, error) {
	start := time.Now()
	result, err := fn(ctx, args)
	if s.recorder != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		s.recorder.RecordOperation(ctx, tool, status)
		s.recorder.RecordOperationDuration(ctx, time.Since(start), tool)
	}
	return result, err
}

// Invoke dispatches a tool by name, for workflow steps. The result is
// normalized into a map so step outputs can be referenced by path.
func (s *Server) Invoke(ctx context.Context, tool string, args map[string]interface{}) (map[string]interface{}, error) {
	fn, ok := s.ops[tool]
	if !ok {
		return nil, stderrors.NewInvalidInputError(fmt.Sprintf("unknown tool %q", tool))
	}
	result, err := s.call(ctx, tool, fn, args)
	if err != nil {
		return nil, err
	}
	if m, ok := result.(map[string]interface{}); ok {
		return m, nil
	}
	// flatten typed results through JSON so dotted bindings work on them
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, stderrors.NewInternalError(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(payload, &m); err != nil {
		return map[string]interface{}{"result": result}, nil
	}
	return m, nil
}

// ServeStdio runs the MCP server over stdin/stdout until EOF.
func (s *Server) ServeStdio() error {
	s.logger.Info("serving MCP over stdio", nil)
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE runs the MCP server over HTTP with SSE endpoints under basePath.
func (s *Server) ServeSSE(ctx context.Context, address, basePath string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithStaticBasePath(basePath))
	httpServer := &http.Server{Addr: address, Handler: sseServer}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving MCP over SSE", map[string]interface{}{
			"address":   address,
			"base_path": basePath,
		})
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
