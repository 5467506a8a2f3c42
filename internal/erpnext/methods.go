// internal/erpnext/methods.go
package erpnext

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ListOptions shape a document list query.
type ListOptions struct {
	Fields  []string
	Filters [][]interface{} // [field, operator, value] triples, AND-ed
	// OrFilters are OR-ed triples, used for search.
	OrFilters [][]interface{}
	OrderBy   string
	Limit     int
	Offset    int
}

// List fetches documents matching the options. Fields default to ["name"].
func (c *Client) List(ctx context.Context, doctype string, opts ListOptions) ([]map[string]interface{}, error) {
	query := url.Values{}

	fields := opts.Fields
	if len(fields) == 0 {
		fields = []string{"name"}
	}
	fieldsJSON, _ := json.Marshal(fields)
	query.Set("fields", string(fieldsJSON))

	if len(opts.Filters) > 0 {
		filtersJSON, _ := json.Marshal(opts.Filters)
		query.Set("filters", string(filtersJSON))
	}
	if len(opts.OrFilters) > 0 {
		orJSON, _ := json.Marshal(opts.OrFilters)
		query.Set("or_filters", string(orJSON))
	}
	if opts.OrderBy != "" {
		query.Set("order_by", opts.OrderBy)
	}
	if opts.Limit > 0 {
		query.Set("limit_page_length", fmt.Sprintf("%d", opts.Limit))
	}
	if opts.Offset > 0 {
		query.Set("limit_start", fmt.Sprintf("%d", opts.Offset))
	}

	body, err := c.doRequest(ctx, http.MethodGet, resourcePath(doctype, ""), query, nil)
	if err != nil {
		return nil, err
	}

	data, err := unwrapData(body)
	if err != nil {
		return nil, err
	}
	var docs []map[string]interface{}
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode document list: %w", err)
	}
	return docs, nil
}

// Search lists documents where any of the given fields matches the query
// with a LIKE filter.
func (c *Client) Search(ctx context.Context, doctype, query string, fields []string, limit int) ([]map[string]interface{}, error) {
	if len(fields) == 0 {
		fields = []string{"name"}
	}
	orFilters := make([][]interface{}, 0, len(fields))
	for _, f := range fields {
		orFilters = append(orFilters, []interface{}{f, "like", "%" + query + "%"})
	}
	return c.List(ctx, doctype, ListOptions{
		Fields:    append([]string{"name"}, fields...),
		OrFilters: orFilters,
		Limit:     limit,
	})
}

// methodEnvelope is the /api/method/* {"message": ...} response wrapper.
type methodEnvelope struct {
	Message json.RawMessage `json:"message"`
}

// CallMethod invokes an arbitrary whitelisted server method.
func (c *Client) CallMethod(ctx context.Context, method string, args map[string]interface{}) (json.RawMessage, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/api/method/"+method, nil, args)
	if err != nil {
		return nil, err
	}
	var env methodEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal method response: %w", err)
	}
	return env.Message, nil
}

// Count returns the number of documents matching the filters.
func (c *Client) Count(ctx context.Context, doctype string, filters [][]interface{}) (int, error) {
	args := map[string]interface{}{"doctype": doctype}
	if len(filters) > 0 {
		filtersJSON, _ := json.Marshal(filters)
		args["filters"] = string(filtersJSON)
	}
	msg, err := c.CallMethod(ctx, "frappe.client.get_count", args)
	if err != nil {
		return 0, err
	}
	var count int
	if err := json.Unmarshal(msg, &count); err != nil {
		return 0, fmt.Errorf("failed to decode count: %w", err)
	}
	return count, nil
}

// Submit moves a draft document to the submitted state (docstatus 1).
func (c *Client) Submit(ctx context.Context, doctype, name string) (map[string]interface{}, error) {
	doc, err := c.Get(ctx, doctype, name)
	if err != nil {
		return nil, err
	}
	msg, err := c.CallMethod(ctx, "frappe.client.submit", map[string]interface{}{"doc": doc})
	if err != nil {
		return nil, err
	}
	return decodeMethodDocument(msg)
}

// Cancel moves a submitted document to the cancelled state (docstatus 2).
func (c *Client) Cancel(ctx context.Context, doctype, name string) (map[string]interface{}, error) {
	msg, err := c.CallMethod(ctx, "frappe.client.cancel", map[string]interface{}{
		"doctype": doctype,
		"name":    name,
	})
	if err != nil {
		return nil, err
	}
	return decodeMethodDocument(msg)
}

// Amend creates a new draft copied from a cancelled document with
// amended_from pointing back at it.
func (c *Client) Amend(ctx context.Context, doctype, name string) (string, map[string]interface{}, error) {
	source, err := c.Get(ctx, doctype, name)
	if err != nil {
		return "", nil, err
	}

	amended := make(map[string]interface{}, len(source))
	for k, v := range source {
		switch k {
		case "name", "docstatus", "creation", "modified", "modified_by", "owner", "idx":
			// remote-managed fields never carry over
		default:
			amended[k] = v
		}
	}
	amended["amended_from"] = name

	return c.Create(ctx, doctype, amended)
}

// Clone creates a new draft copied from an existing document, with
// optional field overrides applied on top.
func (c *Client) Clone(ctx context.Context, doctype, name string, overrides map[string]interface{}) (string, map[string]interface{}, error) {
	source, err := c.Get(ctx, doctype, name)
	if err != nil {
		return "", nil, err
	}

	clone := make(map[string]interface{}, len(source))
	for k, v := range source {
		switch k {
		case "name", "docstatus", "creation", "modified", "modified_by", "owner", "idx", "amended_from":
		default:
			clone[k] = v
		}
	}
	for k, v := range overrides {
		clone[k] = v
	}

	return c.Create(ctx, doctype, clone)
}

// RunDocMethod invokes a controller method on a specific document.
func (c *Client) RunDocMethod(ctx context.Context, doctype, name, method string, args map[string]interface{}) (json.RawMessage, error) {
	payload := map[string]interface{}{
		"dt":     doctype,
		"dn":     name,
		"method": method,
	}
	if len(args) > 0 {
		argsJSON, _ := json.Marshal(args)
		payload["args"] = string(argsJSON)
	}
	return c.CallMethod(ctx, "frappe.client.run_doc_method", payload)
}

// RunReport executes a query report on the remote store.
func (c *Client) RunReport(ctx context.Context, reportName string, filters map[string]interface{}) (json.RawMessage, error) {
	args := map[string]interface{}{"report_name": reportName}
	if len(filters) > 0 {
		filtersJSON, _ := json.Marshal(filters)
		args["filters"] = string(filtersJSON)
	}
	return c.CallMethod(ctx, "frappe.desk.query_report.run", args)
}

// LoggedUser resolves the user the API credentials act as.
func (c *Client) LoggedUser(ctx context.Context) (string, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/method/frappe.auth.get_logged_user", nil, nil)
	if err != nil {
		return "", err
	}
	var env methodEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("failed to unmarshal logged user response: %w", err)
	}
	var user string
	if err := json.Unmarshal(env.Message, &user); err != nil {
		return "", fmt.Errorf("failed to decode logged user: %w", err)
	}
	return user, nil
}

// ListDocTypes lists DocType names, optionally filtered by module or to
// custom types only.
func (c *Client) ListDocTypes(ctx context.Context, module string, customOnly bool, limit int) ([]string, error) {
	filters := [][]interface{}{}
	if module != "" {
		filters = append(filters, []interface{}{"module", "=", module})
	}
	if customOnly {
		filters = append(filters, []interface{}{"custom", "=", 1})
	}

	docs, err := c.List(ctx, "DocType", ListOptions{
		Fields:  []string{"name"},
		Filters: filters,
		OrderBy: "name asc",
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(docs))
	for _, doc := range docs {
		if name, ok := doc["name"].(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// History lists Version entries recorded for a document, newest first.
func (c *Client) History(ctx context.Context, doctype, name string, limit int) ([]map[string]interface{}, error) {
	return c.List(ctx, "Version", ListOptions{
		Fields: []string{"name", "owner", "creation", "data"},
		Filters: [][]interface{}{
			{"ref_doctype", "=", doctype},
			{"docname", "=", name},
		},
		OrderBy: "creation desc",
		Limit:   limit,
	})
}

// AttachFile attaches a base64-encoded file to a document.
func (c *Client) AttachFile(ctx context.Context, doctype, name, filename, contentBase64 string, private bool) (map[string]interface{}, error) {
	args := map[string]interface{}{
		"doctype":       doctype,
		"docname":       name,
		"filename":      filename,
		"filedata":      contentBase64,
		"decode_base64": true,
	}
	if private {
		args["is_private"] = 1
	}
	msg, err := c.CallMethod(ctx, "frappe.client.attach_file", args)
	if err != nil {
		return nil, err
	}
	return decodeMethodDocument(msg)
}

// Rollback restores a document to the state captured by an earlier Version
// entry.
func (c *Client) Rollback(ctx context.Context, doctype, name string, version int) (map[string]interface{}, error) {
	msg, err := c.CallMethod(ctx, "frappe.client.rollback_document", map[string]interface{}{
		"doctype": doctype,
		"name":    name,
		"version": version,
	})
	if err != nil {
		return nil, err
	}
	return decodeMethodDocument(msg)
}

// RenderPrintFormat renders a document through a named print format on the
// remote store. The PDF itself stays remote; only success is reported.
func (c *Client) RenderPrintFormat(ctx context.Context, doctype, name, format string) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/api/method/frappe.utils.print_format.download_pdf", nil, map[string]interface{}{
		"doctype": doctype,
		"name":    name,
		"format":  format,
	})
	return err
}

func decodeMethodDocument(msg json.RawMessage) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(msg, &doc); err != nil {
		// some methods return plain strings; keep them readable
		trimmed := strings.TrimSpace(string(msg))
		return map[string]interface{}{"message": trimmed}, nil
	}
	return doc, nil
}
