// internal/tools/documents.go
package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"erpnext-bridge/internal/autofill"
	stderrors "erpnext-bridge/internal/common/errors"
	"erpnext-bridge/internal/models"
	"erpnext-bridge/internal/retry"
)

func (s *Server) registerDocumentTools() {
	s.register(
		mcp.NewTool(
			"get_document",
			mcp.WithDescription("Fetch one document by name"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Document name")),
		),
		s.handleGetDocument,
	)

	s.register(
		mcp.NewTool(
			"create_document",
			mcp.WithDescription("Create a document. With smart_mode, missing required fields are autofilled from the schema first"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithObject("fields", mcp.Required(), mcp.Description("Field values for the new document")),
			mcp.WithBoolean("smart_mode", mcp.Description("Autofill missing required fields before dispatch")),
		),
		s.handleCreateDocument,
	)

	s.register(
		mcp.NewTool(
			"update_document",
			mcp.WithDescription("Apply a partial field update to a document"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Document name")),
			mcp.WithObject("fields", mcp.Required(), mcp.Description("Fields to change")),
		),
		s.handleUpdateDocument,
	)

	s.register(
		mcp.NewTool(
			"delete_document",
			mcp.WithDescription("Delete a document"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Document name")),
		),
		s.handleDeleteDocument,
	)

	s.register(
		mcp.NewTool(
			"submit_document",
			mcp.WithDescription("Submit a draft document (docstatus 0 to 1)"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Document name")),
		),
		s.handleSubmitDocument,
	)

	s.register(
		mcp.NewTool(
			"cancel_document",
			mcp.WithDescription("Cancel a submitted document (docstatus 1 to 2)"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Document name")),
		),
		s.handleCancelDocument,
	)

	s.register(
		mcp.NewTool(
			"amend_document",
			mcp.WithDescription("Create a new draft amending a cancelled document"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Cancelled document name")),
		),
		s.handleAmendDocument,
	)

	s.register(
		mcp.NewTool(
			"clone_document",
			mcp.WithDescription("Create a new document copied from an existing one, with optional overrides"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Source document name")),
			mcp.WithObject("overrides", mcp.Description("Fields to change on the copy")),
		),
		s.handleCloneDocument,
	)

	s.register(
		mcp.NewTool(
			"run_doc_method",
			mcp.WithDescription("Invoke a controller method on a specific document"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Document name")),
			mcp.WithString("method", mcp.Required(), mcp.Description("Controller method name")),
			mcp.WithObject("args", mcp.Description("Method arguments")),
		),
		s.handleRunDocMethod,
	)

	s.register(
		mcp.NewTool(
			"attach_file",
			mcp.WithDescription("Attach a base64-encoded file to a document"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Document name")),
			mcp.WithString("filename", mcp.Required(), mcp.Description("File name")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Base64-encoded file content")),
			mcp.WithBoolean("private", mcp.Description("Store the file as private")),
		),
		s.handleAttachFile,
	)
}

// outcomeError converts a failed retry outcome back into an error carrying
// the enrichment context for the caller.
func outcomeError(outcome models.OperationOutcome) error {
	stdErr := &stderrors.StandardError{
		Code:      stderrors.ErrorCode(outcome.ErrorCode),
		Message:   outcome.ErrorMessage,
		Details:   outcome.RawError,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
	stdErr.WithMetadata("attempts", outcome.Attempts)
	stdErr.WithMetadata("elapsed_ms", outcome.Elapsed.Milliseconds())
	if outcome.Suggestion != "" {
		stdErr.WithMetadata("suggestion", outcome.Suggestion)
	}
	if outcome.Input != nil {
		stdErr.WithMetadata("input", outcome.Input)
	}
	return stdErr
}

// execute runs one remote call through the retry policy and returns the
// store's document on success.
func (s *Server) execute(ctx context.Context, operation string, input map[string]interface{}, op retry.Operation) (interface{}, error) {
	outcome := s.policy.Execute(ctx, operation, input, op)
	if !outcome.Succeeded() {
		return nil, outcomeError(outcome)
	}
	if outcome.Returned != nil {
		return outcome.Returned, nil
	}
	return map[string]interface{}{"name": outcome.RemoteID}, nil
}

// resolverFor pre-resolves the child-table schemas referenced by a parent
// schema so autofill can recurse without doing I/O.
func (s *Server) resolverFor(ctx context.Context, parent *models.DocTypeSchema) autofill.SchemaResolver {
	children := make(map[string]*models.DocTypeSchema)
	for _, field := range parent.Fields {
		if field.Kind != models.FieldKindChildTable || field.LinkTarget() == "" {
			continue
		}
		if child, err := s.schemas.Get(ctx, field.LinkTarget()); err == nil {
			children[field.LinkTarget()] = child
		}
	}
	return func(name string) (*models.DocTypeSchema, bool) {
		child, ok := children[name]
		return child, ok
	}
}

func (s *Server) handleGetDocument(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}
	return s.client.Get(ctx, doctype, name)
}

func (s *Server) handleCreateDocument(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	fields, err := argMap(args, "fields")
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, stderrors.NewInvalidInputError("missing required parameter: fields")
	}

	if argBool(args, "smart_mode") {
		docSchema, err := s.schemas.Get(ctx, doctype)
		if err != nil {
			return nil, err
		}
		filled := s.engine.Fill(models.Record{DocType: doctype, Fields: fields}, docSchema, s.resolverFor(ctx, docSchema))
		fields = filled.Fields
	}

	return s.execute(ctx, "create", fields, func(ctx context.Context) (string, map[string]interface{}, error) {
		return s.client.Create(ctx, doctype, fields)
	})
}

func (s *Server) handleUpdateDocument(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}
	fields, err := argMap(args, "fields")
	if err != nil {
		return nil, err
	}

	return s.execute(ctx, "update", fields, func(ctx context.Context) (string, map[string]interface{}, error) {
		return s.client.Update(ctx, doctype, name, fields)
	})
}

func (s *Server) handleDeleteDocument(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}

	outcome := s.policy.Execute(ctx, "delete", nil, func(ctx context.Context) (string, map[string]interface{}, error) {
		if err := s.client.Delete(ctx, doctype, name); err != nil {
			return "", nil, err
		}
		return name, nil, nil
	})
	if !outcome.Succeeded() {
		return nil, outcomeError(outcome)
	}
	return map[string]interface{}{"deleted": true, "name": name}, nil
}

func (s *Server) handleSubmitDocument(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.docstatusTransition(ctx, args, "submit", s.client.Submit)
}

func (s *Server) handleCancelDocument(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.docstatusTransition(ctx, args, "cancel", s.client.Cancel)
}

func (s *Server) docstatusTransition(ctx context.Context, args map[string]interface{}, operation string, call func(ctx context.Context, doctype, name string) (map[string]interface{}, error)) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}

	return s.execute(ctx, operation, nil, func(ctx context.Context) (string, map[string]interface{}, error) {
		doc, err := call(ctx, doctype, name)
		if err != nil {
			return "", nil, err
		}
		return name, doc, nil
	})
}

func (s *Server) handleAmendDocument(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}

	return s.execute(ctx, "amend", nil, func(ctx context.Context) (string, map[string]interface{}, error) {
		return s.client.Amend(ctx, doctype, name)
	})
}

func (s *Server) handleCloneDocument(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}
	overrides, err := argMap(args, "overrides")
	if err != nil {
		return nil, err
	}

	return s.execute(ctx, "clone", overrides, func(ctx context.Context) (string, map[string]interface{}, error) {
		return s.client.Clone(ctx, doctype, name, overrides)
	})
}

func (s *Server) handleRunDocMethod(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}
	method, err := requireString(args, "method")
	if err != nil {
		return nil, err
	}
	methodArgs, err := argMap(args, "args")
	if err != nil {
		return nil, err
	}

	raw, err := s.client.RunDocMethod(ctx, doctype, name, method, methodArgs)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"message": json.RawMessage(raw)}, nil
}

func (s *Server) handleAttachFile(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}
	filename, err := requireString(args, "filename")
	if err != nil {
		return nil, err
	}
	content, err := requireString(args, "content")
	if err != nil {
		return nil, err
	}

	return s.client.AttachFile(ctx, doctype, name, filename, content, argBool(args, "private"))
}
