package docs

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var supportedMethods = map[string]struct{}{
	"get":     {},
	"put":     {},
	"post":    {},
	"delete":  {},
	"patch":   {},
	"head":    {},
	"options": {},
}

type operation struct {
	responses map[string]struct{}
}

type apiSurface map[string]map[string]operation

// Current returns the registered API document with template fields filled in.
func Current() []byte {
	return []byte(SwaggerInfo.ReadDoc())
}

// BreakingChanges lists paths, operations and response codes present in base
// but missing from revision. Both documents may be YAML or JSON.
func BreakingChanges(base, revision []byte) ([]string, error) {
	baseSurface, err := parseSurface(base)
	if err != nil {
		return nil, fmt.Errorf("base: %w", err)
	}
	revSurface, err := parseSurface(revision)
	if err != nil {
		return nil, fmt.Errorf("revision: %w", err)
	}

	var issues []string
	for path, baseOps := range baseSurface {
		revOps, ok := revSurface[path]
		if !ok {
			issues = append(issues, "removed path: "+path)
			continue
		}
		for method, baseOp := range baseOps {
			revOp, ok := revOps[method]
			if !ok {
				issues = append(issues, fmt.Sprintf("removed operation: %s %s", strings.ToUpper(method), path))
				continue
			}
			for code := range baseOp.responses {
				if _, ok := revOp.responses[code]; !ok {
					issues = append(issues, fmt.Sprintf("removed response code: %s %s -> %s",
						strings.ToUpper(method), path, strings.ToUpper(code)))
				}
			}
		}
	}

	sort.Strings(issues)
	return issues, nil
}

func parseSurface(raw []byte) (apiSurface, error) {
	var doc struct {
		Paths map[string]map[string]any `yaml:"paths"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc.Paths == nil {
		return nil, errors.New("missing top-level paths field")
	}

	surface := make(apiSurface, len(doc.Paths))
	for path, methods := range doc.Paths {
		ops := make(map[string]operation)
		for method, entry := range methods {
			method = strings.ToLower(strings.TrimSpace(method))
			if _, ok := supportedMethods[method]; !ok {
				continue
			}
			opMap, ok := toMap(entry)
			if !ok {
				continue
			}
			codes := make(map[string]struct{})
			if responses, ok := toMap(opMap["responses"]); ok {
				for code := range responses {
					if code = strings.ToLower(strings.TrimSpace(code)); code != "" {
						codes[code] = struct{}{}
					}
				}
			}
			ops[method] = operation{responses: codes}
		}
		if len(ops) > 0 {
			surface[path] = ops
		}
	}
	return surface, nil
}

func toMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}
