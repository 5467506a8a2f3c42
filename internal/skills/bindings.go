// Package skills executes loaded skill definitions as sequential workflow
// runs with saga-style compensation on failure.
package skills

import (
	"fmt"
	"regexp"
	"strings"

	stderrors "erpnext-bridge/internal/common/errors"
)

var bindingPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// resolveArguments substitutes every ${path} placeholder in the argument
// tree from the run context. A string that is exactly one placeholder keeps
// the looked-up value's type; placeholders embedded in longer strings are
// stringified in place.
func resolveArguments(step string, args map[string]interface{}, context map[string]interface{}) (map[string]interface{}, error) {
	if len(args) == 0 {
		return map[string]interface{}{}, nil
	}
	resolved, err := resolveValue(step, args, context)
	if err != nil {
		return nil, err
	}
	return resolved.(map[string]interface{}), nil
}

func resolveValue(step string, value interface{}, context map[string]interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return resolveString(step, v, context)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			resolved, err := resolveValue(step, item, context)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			resolved, err := resolveValue(step, item, context)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

func resolveString(step, s string, context map[string]interface{}) (interface{}, error) {
	// whole-string placeholder keeps the bound value's type
	if match := bindingPattern.FindStringSubmatch(s); match != nil && match[0] == s {
		return lookup(step, match[1], context)
	}

	var lookupErr error
	out := bindingPattern.ReplaceAllStringFunc(s, func(placeholder string) string {
		path := placeholder[2 : len(placeholder)-1]
		value, err := lookup(step, path, context)
		if err != nil {
			lookupErr = err
			return placeholder
		}
		return fmt.Sprintf("%v", value)
	})
	if lookupErr != nil {
		return nil, lookupErr
	}
	return out, nil
}

// lookup walks a dotted path through nested context maps.
func lookup(step, path string, context map[string]interface{}) (interface{}, error) {
	segments := strings.Split(path, ".")
	var current interface{} = context
	for _, segment := range segments {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil, stderrors.NewUnresolvedBindingError(step, path)
		}
		current, ok = node[segment]
		if !ok {
			return nil, stderrors.NewUnresolvedBindingError(step, path)
		}
	}
	return current, nil
}
