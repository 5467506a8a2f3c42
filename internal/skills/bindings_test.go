// internal/skills/bindings_test.go
package skills

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "erpnext-bridge/internal/common/errors"
)

func TestResolveArguments(t *testing.T) {
	context := map[string]interface{}{
		"customer_name": "Acme Corp",
		"qty":           3,
		"customer": map[string]interface{}{
			"name":      "CUST-0001",
			"territory": "EU",
		},
	}

	tests := []struct {
		name     string
		args     map[string]interface{}
		expected map[string]interface{}
	}{
		{
			name:     "plain values pass through",
			args:     map[string]interface{}{"doctype": "Customer", "limit": 5},
			expected: map[string]interface{}{"doctype": "Customer", "limit": 5},
		},
		{
			name:     "whole placeholder keeps value type",
			args:     map[string]interface{}{"qty": "${qty}"},
			expected: map[string]interface{}{"qty": 3},
		},
		{
			name:     "dotted path into step output",
			args:     map[string]interface{}{"name": "${customer.name}"},
			expected: map[string]interface{}{"name": "CUST-0001"},
		},
		{
			name:     "embedded placeholder stringifies",
			args:     map[string]interface{}{"subject": "Order for ${customer_name} x${qty}"},
			expected: map[string]interface{}{"subject": "Order for Acme Corp x3"},
		},
		{
			name: "nested maps and slices resolve",
			args: map[string]interface{}{
				"fields": map[string]interface{}{
					"customer": "${customer.name}",
					"tags":     []interface{}{"${customer.territory}", "bulk"},
				},
			},
			expected: map[string]interface{}{
				"fields": map[string]interface{}{
					"customer": "CUST-0001",
					"tags":     []interface{}{"EU", "bulk"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := resolveArguments("step", tt.args, context)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, resolved)
		})
	}
}

func TestResolveArguments_Unresolved(t *testing.T) {
	context := map[string]interface{}{"customer": map[string]interface{}{"name": "CUST-0001"}}

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing root", map[string]interface{}{"v": "${order}"}},
		{"missing leaf", map[string]interface{}{"v": "${customer.email}"}},
		{"path through scalar", map[string]interface{}{"v": "${customer.name.first}"}},
		{"embedded missing", map[string]interface{}{"v": "hello ${order.name}"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveArguments("create_order", tt.args, context)
			require.Error(t, err)
			assert.Equal(t, stderrors.ErrCodeUnresolvedBinding, stderrors.AsStandardError(err).Code)
		})
	}
}

func TestResolveArguments_EmptyArgs(t *testing.T) {
	resolved, err := resolveArguments("step", nil, map[string]interface{}{})
	require.NoError(t, err)
	assert.Empty(t, resolved)
}
