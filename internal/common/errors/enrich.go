// internal/common/errors/enrich.go
package errors

import "strings"

// Suggest maps remote error text to an actionable suggestion a caller can
// act on without reading the store's source. Empty when nothing matches.
func Suggest(errText string) string {
	lower := strings.ToLower(errText)
	switch {
	case strings.Contains(lower, "validation") || strings.Contains(lower, "mandatory"):
		return "Check required fields are filled. Use get_doctype_schema to see field requirements."
	case strings.Contains(lower, "permission") || strings.Contains(lower, "forbidden"):
		return "User lacks permission. Check user role permissions in the remote store."
	case strings.Contains(lower, "not found") || strings.Contains(lower, "404"):
		return "Document not found. Verify the document name/ID exists."
	case strings.Contains(lower, "duplicate") || strings.Contains(lower, "unique"):
		return "Duplicate entry. Check if a record with similar data already exists."
	case strings.Contains(lower, "connection") || strings.Contains(lower, "timeout"):
		return "Connection issue. Try again or check the remote store status."
	default:
		return ""
	}
}

// Enrich attaches doctype/operation context and a suggestion to a
// normalized error.
func Enrich(err error, doctype, operation string) *StandardError {
	stdErr := AsStandardError(err)
	if doctype != "" {
		stdErr.WithMetadata("doctype", doctype)
	}
	if operation != "" {
		stdErr.WithMetadata("operation", operation)
	}
	if suggestion := Suggest(stdErr.Details); suggestion != "" {
		stdErr.WithMetadata("suggestion", suggestion)
	}
	return stdErr
}
