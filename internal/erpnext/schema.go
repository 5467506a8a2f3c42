// internal/erpnext/schema.go
package erpnext

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	stderrors "erpnext-bridge/internal/common/errors"
	"erpnext-bridge/internal/models"
)

// rawField is the field metadata shape served by the DocType resource.
type rawField struct {
	Fieldname string `json:"fieldname"`
	Fieldtype string `json:"fieldtype"`
	Label     string `json:"label"`
	Reqd      int    `json:"reqd"`
	Hidden    int    `json:"hidden"`
	Default   string `json:"default"`
	Options   string `json:"options"`
}

type rawDocType struct {
	Name          string     `json:"name"`
	Fields        []rawField `json:"fields"`
	IsSubmittable int        `json:"is_submittable"`
	Issingle      int        `json:"issingle"`
	Istable       int        `json:"istable"`
	Autoname      string     `json:"autoname"`
	NamingRule    string     `json:"naming_rule"`
}

// FetchSchema retrieves and parses the field metadata for a DocType.
func (c *Client) FetchSchema(ctx context.Context, doctype string) (*models.DocTypeSchema, error) {
	body, err := c.doRequest(ctx, http.MethodGet, resourcePath("DocType", doctype), nil, nil)
	if err != nil {
		return nil, stderrors.NewSchemaFetchError(doctype, err)
	}

	data, err := unwrapData(body)
	if err != nil {
		return nil, stderrors.NewSchemaFetchError(doctype, err)
	}

	var raw rawDocType
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, stderrors.NewSchemaFetchError(doctype, fmt.Errorf("failed to decode schema payload: %w", err))
	}

	return parseSchema(doctype, raw), nil
}

func parseSchema(doctype string, raw rawDocType) *models.DocTypeSchema {
	schema := &models.DocTypeSchema{
		DocType:       doctype,
		IsSubmittable: raw.IsSubmittable == 1,
		IsSingle:      raw.Issingle == 1,
		IsChildTable:  raw.Istable == 1,
		Autoname:      raw.Autoname,
		NamingRule:    raw.NamingRule,
	}

	seen := make(map[string]bool, len(raw.Fields))
	for _, f := range raw.Fields {
		if f.Fieldname == "" || seen[f.Fieldname] {
			continue
		}
		seen[f.Fieldname] = true
		schema.Fields = append(schema.Fields, models.FieldDef{
			Name:      f.Fieldname,
			Label:     f.Label,
			Kind:      models.KindForFieldType(f.Fieldtype),
			FieldType: f.Fieldtype,
			Required:  f.Reqd == 1,
			Hidden:    f.Hidden == 1,
			Default:   f.Default,
			Options:   f.Options,
		})
	}

	return schema
}
