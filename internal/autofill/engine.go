// Package autofill completes partial records from DocType schemas using
// deterministic inference rules. The engine does no I/O and never fails;
// required fields it cannot resolve stay absent so the remote store reports
// them.
package autofill

import (
	"strconv"
	"strings"
	"time"

	"erpnext-bridge/internal/models"
)

// SchemaResolver resolves already-cached child-table schemas by DocType
// name. The engine never triggers a fetch through it.
type SchemaResolver func(doctype string) (*models.DocTypeSchema, bool)

// Engine applies autofill rules. The clock only matters for defaults that
// explicitly request the current date or time.
type Engine struct {
	now func() time.Time
}

type Option func(*Engine)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fill returns a copy of the record with missing required fields completed
// where a rule applies. Precedence per missing required field: declared
// default, then a select with exactly one option; link targets are never
// guessed. Applying Fill to its own output is a no-op.
func (e *Engine) Fill(record models.Record, schema *models.DocTypeSchema, resolve SchemaResolver) models.Record {
	out := record.Clone()
	if out.Fields == nil {
		out.Fields = make(map[string]interface{})
	}

	for _, field := range schema.Fields {
		if field.Kind == models.FieldKindChildTable {
			e.fillChildRows(out.Fields, field, resolve)
			continue
		}
		if !field.Required || out.Has(field.Name) {
			continue
		}
		if value, ok := e.resolveValue(field); ok {
			out.Fields[field.Name] = value
		}
	}

	return out
}

// fillChildRows recurses into existing child-table rows when the child
// schema is resolvable. Missing child tables are never invented.
func (e *Engine) fillChildRows(fields map[string]interface{}, field models.FieldDef, resolve SchemaResolver) {
	raw, ok := fields[field.Name]
	if !ok || raw == nil || resolve == nil {
		return
	}
	childSchema, ok := resolve(field.LinkTarget())
	if !ok {
		return
	}

	rows, ok := raw.([]interface{})
	if !ok {
		return
	}
	for i, row := range rows {
		rowFields, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		filled := e.Fill(models.Record{DocType: childSchema.DocType, Fields: rowFields}, childSchema, resolve)
		rows[i] = filled.Fields
	}
}

// resolveValue produces the fill value for one missing required field,
// reporting false when no rule applies.
func (e *Engine) resolveValue(field models.FieldDef) (interface{}, bool) {
	if field.Default != "" {
		return e.coerceDefault(field), true
	}

	switch field.Kind {
	case models.FieldKindLink:
		// never guess a link target
		return nil, false
	case models.FieldKindSelect:
		if options := field.SelectOptions(); len(options) == 1 {
			return options[0], true
		}
	}
	return nil, false
}

// coerceDefault converts the schema's string default into a value of the
// field's kind. "Today" and "Now" defaults resolve against the injected
// clock.
func (e *Engine) coerceDefault(field models.FieldDef) interface{} {
	raw := field.Default

	switch field.Kind {
	case models.FieldKindDate:
		if normalized, ok := e.clockDefault(raw, field.FieldType); ok {
			return normalized
		}
		return raw
	case models.FieldKindNumber:
		if field.FieldType == "Int" {
			if n, err := strconv.Atoi(raw); err == nil {
				return n
			}
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
		return raw
	case models.FieldKindCheck:
		switch strings.ToLower(raw) {
		case "1", "true", "yes":
			return 1
		default:
			return 0
		}
	default:
		return raw
	}
}

func (e *Engine) clockDefault(raw, fieldType string) (string, bool) {
	switch strings.ToLower(raw) {
	case "today":
		return e.now().Format("2006-01-02"), true
	case "now":
		if fieldType == "Time" {
			return e.now().Format("15:04:05"), true
		}
		return e.now().Format("2006-01-02 15:04:05"), true
	}
	return "", false
}
