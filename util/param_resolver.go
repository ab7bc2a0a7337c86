package util

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{([^}]+)\}`)

// ResolveActionParams substitutes {dot.path} placeholders in every string
// value of params, walking nested maps and lists. Paths resolve against the
// run's trigger metadata only; prior stage outputs are not in scope. An
// unresolvable placeholder is left verbatim.
func ResolveActionParams(params map[string]any, triggerMetadata map[string]any) map[string]any {
	output := make(map[string]any)
	resolveParams(triggerMetadata, params, output)
	return output
}

func resolveParams(data map[string]any, params map[string]any, output map[string]any) {
	for k, v := range params {
		switch v := v.(type) {
		case map[string]any:
			out := make(map[string]any)
			output[k] = out
			resolveParams(data, v, out)
		case string:
			output[k] = resolveString(data, v)
		case []any:
			output[k] = resolveList(data, v)
		default:
			output[k] = v
		}
	}
}

func resolveList(data map[string]any, list []any) []any {
	output := make([]any, 0, len(list))
	for _, v := range list {
		switch v := v.(type) {
		case map[string]any:
			out := make(map[string]any)
			resolveParams(data, v, out)
			output = append(output, out)
		case string:
			output = append(output, resolveString(data, v))
		case []any:
			output = append(output, resolveList(data, v))
		default:
			output = append(output, v)
		}
	}
	return output
}

func resolveString(data map[string]any, s string) string {
	if !strings.Contains(s, "{") {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(token string) string {
		path := token[1 : len(token)-1]
		value, ok := lookupPath(data, path)
		if !ok {
			return token
		}
		return fmt.Sprintf("%v", value)
	})
}

// lookupPath walks data key by key along a dot-separated path. The walk
// fails when a segment is missing or an intermediate value is not a map.
func lookupPath(data map[string]any, path string) (any, bool) {
	var current any = data
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
