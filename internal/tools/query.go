// internal/tools/query.go
package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"erpnext-bridge/internal/erpnext"
)

func (s *Server) registerQueryTools() {
	s.register(
		mcp.NewTool(
			"list_documents",
			mcp.WithDescription("List documents of a DocType with optional filters"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithArray("fields", mcp.Description("Fields to return, default name")),
			mcp.WithObject("filters", mcp.Description("Filters: {field: value} or [field, operator, value] triples")),
			mcp.WithString("order_by", mcp.Description("Sort expression, e.g. \"modified desc\"")),
			mcp.WithNumber("limit", mcp.Description("Page size, default 20")),
			mcp.WithNumber("offset", mcp.Description("Page start")),
		),
		s.handleListDocuments,
	)

	s.register(
		mcp.NewTool(
			"search_documents",
			mcp.WithDescription("Search documents where any of the given fields matches the query"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
			mcp.WithArray("fields", mcp.Description("Fields to match against, default name")),
			mcp.WithNumber("limit", mcp.Description("Maximum hits, default 20")),
		),
		s.handleSearchDocuments,
	)

	s.register(
		mcp.NewTool(
			"get_count",
			mcp.WithDescription("Count documents matching the filters"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithObject("filters", mcp.Description("Filters: {field: value} or triples")),
		),
		s.handleGetCount,
	)

	s.register(
		mcp.NewTool(
			"run_report",
			mcp.WithDescription("Execute a query report on the remote store"),
			mcp.WithString("report_name", mcp.Required(), mcp.Description("Report name")),
			mcp.WithObject("filters", mcp.Description("Report filters")),
		),
		s.handleRunReport,
	)

	s.register(
		mcp.NewTool(
			"get_document_history",
			mcp.WithDescription("List the recorded versions of a document, newest first"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType name")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Document name")),
			mcp.WithNumber("limit", mcp.Description("Maximum entries, default 10")),
		),
		s.handleDocumentHistory,
	)

	s.register(
		mcp.NewTool(
			"get_linked_documents",
			mcp.WithDescription("List documents of another DocType that link to a given document"),
			mcp.WithString("doctype", mcp.Required(), mcp.Description("DocType of the target document")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Target document name")),
			mcp.WithString("linked_doctype", mcp.Required(), mcp.Description("DocType to search for links")),
			mcp.WithString("link_field", mcp.Description("Link field on the linked DocType, default derived from the target DocType")),
			mcp.WithNumber("limit", mcp.Description("Maximum hits, default 20")),
		),
		s.handleLinkedDocuments,
	)
}

func (s *Server) handleListDocuments(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	fields, err := argStrings(args, "fields")
	if err != nil {
		return nil, err
	}
	filters, err := argFilters(args, "filters")
	if err != nil {
		return nil, err
	}

	docs, err := s.client.List(ctx, doctype, erpnext.ListOptions{
		Fields:  fields,
		Filters: filters,
		OrderBy: argString(args, "order_by"),
		Limit:   argInt(args, "limit", 20),
		Offset:  argInt(args, "offset", 0),
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"documents": docs, "count": len(docs)}, nil
}

func (s *Server) handleSearchDocuments(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	query, err := requireString(args, "query")
	if err != nil {
		return nil, err
	}
	fields, err := argStrings(args, "fields")
	if err != nil {
		return nil, err
	}

	docs, err := s.client.Search(ctx, doctype, query, fields, argInt(args, "limit", 20))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"documents": docs, "count": len(docs)}, nil
}

func (s *Server) handleGetCount(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	filters, err := argFilters(args, "filters")
	if err != nil {
		return nil, err
	}

	count, err := s.client.Count(ctx, doctype, filters)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"doctype": doctype, "count": count}, nil
}

func (s *Server) handleRunReport(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	reportName, err := requireString(args, "report_name")
	if err != nil {
		return nil, err
	}
	filters, err := argMap(args, "filters")
	if err != nil {
		return nil, err
	}

	raw, err := s.client.RunReport(ctx, reportName, filters)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"report": json.RawMessage(raw)}, nil
}

func (s *Server) handleDocumentHistory(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}

	versions, err := s.client.History(ctx, doctype, name, argInt(args, "limit", 10))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"versions": versions, "count": len(versions)}, nil
}

func (s *Server) handleLinkedDocuments(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	doctype, err := requireString(args, "doctype")
	if err != nil {
		return nil, err
	}
	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}
	linkedDoctype, err := requireString(args, "linked_doctype")
	if err != nil {
		return nil, err
	}

	linkField := argString(args, "link_field")
	if linkField == "" {
		linkField = defaultLinkField(doctype)
	}

	docs, err := s.client.List(ctx, linkedDoctype, erpnext.ListOptions{
		Filters: [][]interface{}{{linkField, "=", name}},
		Limit:   argInt(args, "limit", 20),
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"documents": docs, "count": len(docs), "link_field": linkField}, nil
}

// defaultLinkField derives the conventional link fieldname from a DocType
// name, e.g. "Sales Order" becomes "sales_order".
func defaultLinkField(doctype string) string {
	return strings.ReplaceAll(strings.ToLower(doctype), " ", "_")
}
