// internal/tools/args.go
package tools

import (
	"encoding/json"
	"fmt"

	stderrors "erpnext-bridge/internal/common/errors"
	"erpnext-bridge/internal/models"
)

// requireString extracts a mandatory string argument.
func requireString(args map[string]interface{}, key string) (string, error) {
	value, ok := args[key].(string)
	if !ok || value == "" {
		return "", stderrors.NewInvalidInputError(fmt.Sprintf("missing required parameter: %s", key))
	}
	return value, nil
}

func argString(args map[string]interface{}, key string) string {
	value, _ := args[key].(string)
	return value
}

func argBool(args map[string]interface{}, key string) bool {
	value, _ := args[key].(bool)
	return value
}

// argInt reads a numeric argument, tolerating the float64 that JSON
// decoding produces.
func argInt(args map[string]interface{}, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

// argMap reads an object argument, also accepting a JSON string for
// callers that can only pass flat strings.
func argMap(args map[string]interface{}, key string) (map[string]interface{}, error) {
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		var out map[string]interface{}
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, stderrors.NewInvalidInputError(fmt.Sprintf("parameter %s is not a valid JSON object: %v", key, err))
		}
		return out, nil
	default:
		return nil, stderrors.NewInvalidInputError(fmt.Sprintf("parameter %s must be an object", key))
	}
}

// argStrings reads a string-array argument, also accepting a JSON string.
func argStrings(args map[string]interface{}, key string) ([]string, error) {
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, stderrors.NewInvalidInputError(fmt.Sprintf("parameter %s must contain only strings", key))
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		if v == "" {
			return nil, nil
		}
		var out []string
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, stderrors.NewInvalidInputError(fmt.Sprintf("parameter %s is not a valid JSON array: %v", key, err))
		}
		return out, nil
	default:
		return nil, stderrors.NewInvalidInputError(fmt.Sprintf("parameter %s must be an array of strings", key))
	}
}

// argFilters reads list filters: an array of [field, operator, value]
// triples, a {field: value} shorthand object, or either as a JSON string.
func argFilters(args map[string]interface{}, key string) ([][]interface{}, error) {
	raw := args[key]
	if s, ok := raw.(string); ok {
		if s == "" {
			return nil, nil
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, stderrors.NewInvalidInputError(fmt.Sprintf("parameter %s is not valid JSON: %v", key, err))
		}
		raw = decoded
	}

	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		out := make([][]interface{}, 0, len(v))
		for field, value := range v {
			out = append(out, []interface{}{field, "=", value})
		}
		return out, nil
	case []interface{}:
		out := make([][]interface{}, 0, len(v))
		for _, item := range v {
			triple, ok := item.([]interface{})
			if !ok || len(triple) != 3 {
				return nil, stderrors.NewInvalidInputError(fmt.Sprintf("parameter %s must contain [field, operator, value] triples", key))
			}
			out = append(out, triple)
		}
		return out, nil
	default:
		return nil, stderrors.NewInvalidInputError(fmt.Sprintf("parameter %s must be filters", key))
	}
}

// argRecords reads a batch payload: an array of field objects or the same
// as a JSON string.
func argRecords(args map[string]interface{}, key, doctype string) ([]models.Record, error) {
	switch v := args[key].(type) {
	case string:
		records, err := models.ParseRecords(doctype, []byte(v))
		if err != nil {
			return nil, stderrors.NewInvalidInputError(err.Error())
		}
		return records, nil
	case []interface{}:
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, stderrors.NewInvalidInputError(err.Error())
		}
		records, err := models.ParseRecords(doctype, payload)
		if err != nil {
			return nil, stderrors.NewInvalidInputError(err.Error())
		}
		return records, nil
	default:
		return nil, stderrors.NewInvalidInputError(fmt.Sprintf("parameter %s must be a JSON array of documents", key))
	}
}
