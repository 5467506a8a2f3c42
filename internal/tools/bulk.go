// internal/tools/bulk.go
package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"erpnext-bridge/internal/bulk"
	stderrors "erpnext-bridge/internal/common/errors"
	"erpnext-bridge/internal/erpnext"
	"erpnext-bridge/internal/models"
)

func (s *Server) registerBulkTools() {
	recordsDesc := mcp.Description("JSON array of documents; an optional client_id per document is echoed back in the report")

	s.register(
		mcp.NewTool(
			"bulk_create_documents",
			mcp.WithDescription("Create a batch of documents through the bounded worker pool"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithArray("records", mcp.Required(), recordsDesc),
		),
		s.bulkHandler(bulk.ModeCreate),
	)

	s.register(
		mcp.NewTool(
			"bulk_update_documents",
			mcp.WithDescription("Update a batch of documents; each record must carry the target name"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithArray("records", mcp.Required(), recordsDesc),
		),
		s.bulkHandler(bulk.ModeUpdate),
	)

	s.register(
		mcp.NewTool(
			"bulk_delete_documents",
			mcp.WithDescription("Delete a batch of documents; each record must carry the target name"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithArray("records", mcp.Required(), recordsDesc),
		),
		s.bulkHandler(bulk.ModeDelete),
	)

	s.register(
		mcp.NewTool(
			"bulk_smart_create",
			mcp.WithDescription("Create a batch with missing required fields autofilled from the schema first"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithArray("records", mcp.Required(), recordsDesc),
		),
		s.bulkHandler(bulk.ModeSmartCreate),
	)

	s.register(
		mcp.NewTool(
			"export_documents",
			mcp.WithDescription("Export documents of a DocType as a full-field JSON array"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithObject("filters", mcp.Description("Filters: {field: value} or triples")),
			mcp.WithNumber("limit", mcp.Description("Maximum documents, default 100")),
		),
		s.handleExportDocuments,
	)

	s.register(
		mcp.NewTool(
			"import_documents",
			mcp.WithDescription("Import a JSON array of documents through the bulk executor"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithArray("records", mcp.Required(), recordsDesc),
			mcp.WithString("mode", mcp.Description("create or smart_create, default smart_create")),
		),
		s.handleImportDocuments,
	)
}

// bulkHandler builds the tool implementation for one batch mode. Progress
// events are drained into the log; the caller gets the final report.
func (s *Server) bulkHandler(mode string) toolFunc {
	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		doctype, err := requireString(args, "doctype")
		if err != nil {
			return nil, err
		}
		records, err := argRecords(args, "records", doctype)
		if err != nil {
			return nil, err
		}
		return s.runBatch(ctx, doctype, mode, records)
	}
}

func (s *Server) runBatch(ctx context.Context, doctype, mode string, records []models.Record) (*models.BatchReport, error) {
	run, err := s.executor.Start(ctx, doctype, mode, records)
	if err != nil {
		return nil, err
	}

	for event := range run.Progress() {
		s.logger.Debug("batch progress", map[string]interface{}{
			"batch_id":  event.BatchID,
			"index":     event.Index,
			"status":    string(event.Status),
			"completed": event.Completed,
			"total":     event.Total,
		})
	}
	return run.Wait(), nil
}

func (s *Server) handleExportDocuments(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	filters, err := argFilters(args, "filters")
	if err != nil {
		return nil, err
	}

	docs, err := s.client.List(ctx, doctype, erpnext.ListOptions{
		Fields:  []string{"*"},
		Filters: filters,
		Limit:   argInt(args, "limit", 100),
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"doctype": doctype, "documents": docs, "count": len(docs)}, nil
}

func (s *Server) handleImportDocuments(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	records, err := argRecords(args, "records", doctype)
	if err != nil {
		return nil, err
	}

	mode := argString(args, "mode")
	if mode == "" {
		mode = bulk.ModeSmartCreate
	}
	if mode != bulk.ModeCreate && mode != bulk.ModeSmartCreate {
		return nil, stderrors.NewInvalidInputError(fmt.Sprintf("import mode must be create or smart_create, got %q", mode))
	}
	return s.runBatch(ctx, doctype, mode, records)
}
