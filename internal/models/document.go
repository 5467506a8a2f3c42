// internal/models/document.go
package models

import (
	"encoding/json"
	"fmt"
)

// FieldKind classifies a DocType field for autofill and binding purposes.
type FieldKind string

const (
	FieldKindText       FieldKind = "text"
	FieldKindNumber     FieldKind = "number"
	FieldKindDate       FieldKind = "date"
	FieldKindLink       FieldKind = "link"
	FieldKindSelect     FieldKind = "select"
	FieldKindChildTable FieldKind = "child_table"
	FieldKindCheck      FieldKind = "check"
	FieldKindOther      FieldKind = "other"
)

// FieldDef describes one field of a DocType as reported by the remote store.
type FieldDef struct {
	Name      string    `json:"fieldname"`
	Label     string    `json:"label,omitempty"`
	Kind      FieldKind `json:"kind"`
	FieldType string    `json:"fieldtype"` // raw remote fieldtype, e.g. "Data", "Int", "Table"
	Required  bool      `json:"reqd"`
	Hidden    bool      `json:"hidden,omitempty"`
	Default   string    `json:"default,omitempty"`
	// Options carries the remote "options" string: the target DocType for
	// link and child-table fields, newline-separated choices for selects.
	Options string `json:"options,omitempty"`
}

// SelectOptions splits the options string into individual select choices,
// dropping empty lines.
func (f FieldDef) SelectOptions() []string {
	if f.Kind != FieldKindSelect || f.Options == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(f.Options); i++ {
		if i == len(f.Options) || f.Options[i] == '\n' {
			if line := f.Options[start:i]; line != "" && line != "\r" {
				out = append(out, line)
			}
			start = i + 1
		}
	}
	return out
}

// LinkTarget returns the target DocType for link and child-table fields.
func (f FieldDef) LinkTarget() string {
	if f.Kind == FieldKindLink || f.Kind == FieldKindChildTable {
		return f.Options
	}
	return ""
}

// DocTypeSchema is the field metadata for one DocType. Immutable while cached.
type DocTypeSchema struct {
	DocType       string     `json:"doctype"`
	Fields        []FieldDef `json:"fields"`
	IsSubmittable bool       `json:"is_submittable"`
	IsSingle      bool       `json:"is_single"`
	IsChildTable  bool       `json:"istable"`
	Autoname      string     `json:"autoname,omitempty"`
	NamingRule    string     `json:"naming_rule,omitempty"`
}

// Field looks up a field definition by name.
func (s *DocTypeSchema) Field(name string) (FieldDef, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// RequiredFields returns the subset of fields flagged as required, in
// declaration order.
func (s *DocTypeSchema) RequiredFields() []FieldDef {
	var out []FieldDef
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f)
		}
	}
	return out
}

// KindForFieldType maps a raw remote fieldtype to a FieldKind.
func KindForFieldType(fieldType string) FieldKind {
	switch fieldType {
	case "Data", "Small Text", "Text", "Long Text", "Text Editor", "Code":
		return FieldKindText
	case "Int", "Float", "Currency", "Percent":
		return FieldKindNumber
	case "Date", "Datetime", "Time":
		return FieldKindDate
	case "Link", "Dynamic Link":
		return FieldKindLink
	case "Select":
		return FieldKindSelect
	case "Table", "Table MultiSelect":
		return FieldKindChildTable
	case "Check":
		return FieldKindCheck
	default:
		return FieldKindOther
	}
}

// Record is one loosely-specified document payload bound for the store.
// Values may be scalars or, for child-table fields, []Record. A Record is
// mutated only by autofill before dispatch, never after.
type Record struct {
	DocType string `json:"doctype"`
	// ClientID is an optional caller-supplied correlation identifier. It is
	// echoed back in outcomes and never sent to the remote store.
	ClientID string                 `json:"client_id,omitempty"`
	Fields   map[string]interface{} `json:"fields"`
}

// Clone returns a deep copy so autofill never aliases caller-owned maps.
func (r Record) Clone() Record {
	out := Record{DocType: r.DocType, ClientID: r.ClientID}
	if r.Fields != nil {
		out.Fields = cloneFieldMap(r.Fields)
	}
	return out
}

func cloneFieldMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		switch vv := v.(type) {
		case map[string]interface{}:
			out[k] = cloneFieldMap(vv)
		case []Record:
			rows := make([]Record, len(vv))
			for i, row := range vv {
				rows[i] = row.Clone()
			}
			out[k] = rows
		case []interface{}:
			rows := make([]interface{}, len(vv))
			for i, row := range vv {
				if m, ok := row.(map[string]interface{}); ok {
					rows[i] = cloneFieldMap(m)
				} else {
					rows[i] = row
				}
			}
			out[k] = rows
		default:
			out[k] = v
		}
	}
	return out
}

// Has reports whether the record carries a non-nil value for the field.
func (r Record) Has(field string) bool {
	v, ok := r.Fields[field]
	return ok && v != nil
}

// ParseRecords decodes a JSON array of field maps into Records for the
// given DocType.
func ParseRecords(doctype string, payload []byte) ([]Record, error) {
	var raw []map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("parse records payload: %w", err)
	}
	records := make([]Record, len(raw))
	for i, fields := range raw {
		rec := Record{DocType: doctype, Fields: fields}
		if cid, ok := fields["client_id"].(string); ok {
			rec.ClientID = cid
			delete(fields, "client_id")
		}
		records[i] = rec
	}
	return records, nil
}
