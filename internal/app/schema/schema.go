// Package schema implements the three pure transformations spec §6 defines
// over a Function's JSON-Schema parameter document, which carries a
// non-standard extension keyword alongside the usual "type", "properties",
// and "required":
//
//   - "visible" (list of property names, carried on an object-type node):
//     the subset of that node's own "properties" that should be shown to
//     the calling agent at all, rather than injected by the execution
//     engine itself (e.g. a fixed API version header).
//   - "default" (per-property): the value a required-but-invisible
//     property is filled in with when the agent's input omits it.
//
// Grounded on original_source/backend/aci/common/processor.py's
// filter_visible_properties/inject_required_but_invisible_defaults/
// remove_none, reimplemented here over Go's generic JSON document shape
// (map[string]interface{}) with plain recursion rather than a
// schema-validation library, since these transform the schema's own
// structure rather than validate a document against it.
package schema

import "fmt"

// FilterVisible returns a deep copy of an object-type JSON Schema node with
// "properties" and "required" restricted to the names listed in that
// node's own "visible" array, and the "visible" key itself removed from
// the output (spec §3 invariant #4: the catalogue and execution engine
// never expose invisible/injected parameters, or the visibility list
// itself, to the caller). Non-object nodes and nodes without a
// "properties" map pass through with only the deep copy applied.
func FilterVisible(node map[string]interface{}) map[string]interface{} {
	if node == nil {
		return nil
	}
	out := deepCopyMap(node)
	if out["type"] != "object" {
		return out
	}
	visible := stringSet(out["visible"])
	delete(out, "visible")

	properties, ok := out["properties"].(map[string]interface{})
	if !ok {
		return out
	}
	filteredProps := make(map[string]interface{}, len(visible))
	for name := range visible {
		raw, present := properties[name]
		if !present {
			continue
		}
		propSchema, ok := raw.(map[string]interface{})
		if !ok {
			filteredProps[name] = raw
			continue
		}
		filteredProps[name] = FilterVisible(propSchema)
	}
	out["properties"] = filteredProps
	if required, ok := out["required"].([]interface{}); ok {
		out["required"] = filterRequired(required, filteredProps)
	}
	return out
}

func filterRequired(required []interface{}, kept map[string]interface{}) []interface{} {
	filtered := make([]interface{}, 0, len(required))
	for _, name := range required {
		key, ok := name.(string)
		if !ok {
			continue
		}
		if _, stillPresent := kept[key]; stillPresent {
			filtered = append(filtered, key)
		}
	}
	return filtered
}

// InjectInvisibleRequiredDefaults walks the Function's original (unfiltered)
// parameter schema and, for every required property absent from input and
// not named in that node's "visible" list, fills input with the property's
// "default" value. A required, invisible, non-object property with no
// "default" cannot be completed on the caller's behalf and is an error
// (spec §6); an object-typed one defaults to an empty object instead, so
// its own nested invisible defaults can still be injected one level down.
// Recurses into every object-typed property already present (or just
// defaulted) in input, so a bucket like "header" gets its own invisible
// defaults (e.g. a fixed Accept header the agent never supplies).
func InjectInvisibleRequiredDefaults(schemaNode map[string]interface{}, input map[string]interface{}) (map[string]interface{}, error) {
	if input == nil {
		input = map[string]interface{}{}
	}
	properties, ok := schemaNode["properties"].(map[string]interface{})
	if !ok {
		return input, nil
	}
	visible := stringSet(schemaNode["visible"])
	required := stringSet(schemaNode["required"])

	for name, raw := range properties {
		propSchema, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if _, already := input[name]; already {
			continue
		}
		if _, isRequired := required[name]; !isRequired {
			continue
		}
		if _, isVisible := visible[name]; isVisible {
			continue
		}
		if def, has := propSchema["default"]; has {
			input[name] = def
			continue
		}
		if propSchema["type"] == "object" {
			input[name] = map[string]interface{}{}
			continue
		}
		return nil, fmt.Errorf("schema: no default value for required but invisible property %q", name)
	}

	for name, raw := range properties {
		propSchema, ok := raw.(map[string]interface{})
		if !ok || propSchema["type"] != "object" {
			continue
		}
		nestedInput, ok := input[name].(map[string]interface{})
		if !ok {
			continue
		}
		merged, err := InjectInvisibleRequiredDefaults(propSchema, nestedInput)
		if err != nil {
			return nil, err
		}
		input[name] = merged
	}
	return input, nil
}

// RemoveNone recursively strips keys whose value is nil from a decoded
// JSON document, matching the original's remove_none: an agent explicitly
// passing null for an optional field should not send that field to the
// downstream API at all.
func RemoveNone(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			if val == nil {
				continue
			}
			out[k] = RemoveNone(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(v))
		for _, item := range v {
			out = append(out, RemoveNone(item))
		}
		return out
	default:
		return v
	}
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return deepCopyMap(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}

func stringSet(value interface{}) map[string]struct{} {
	list, _ := value.([]interface{})
	set := make(map[string]struct{}, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			set[s] = struct{}{}
		}
	}
	return set
}
