package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterVisibleKeepsOnlyListedProperties(t *testing.T) {
	node := map[string]interface{}{
		"type":    "object",
		"visible": []interface{}{"query"},
		"properties": map[string]interface{}{
			"query":       map[string]interface{}{"type": "string"},
			"api_version": map[string]interface{}{"type": "string", "default": "2024-01"},
		},
		"required": []interface{}{"query", "api_version"},
	}

	filtered := FilterVisible(node)
	props := filtered["properties"].(map[string]interface{})
	require.Len(t, props, 1)
	require.Contains(t, props, "query")
	require.Equal(t, []interface{}{"query"}, filtered["required"])
	require.NotContains(t, filtered, "visible")
}

func TestFilterVisibleRecursesIntoKeptObjectProperties(t *testing.T) {
	node := map[string]interface{}{
		"type":    "object",
		"visible": []interface{}{"header"},
		"properties": map[string]interface{}{
			"header": map[string]interface{}{
				"type":    "object",
				"visible": []interface{}{"accept"},
				"properties": map[string]interface{}{
					"accept":      map[string]interface{}{"type": "string"},
					"api_version": map[string]interface{}{"type": "string", "default": "2024-01"},
				},
				"required": []interface{}{"accept", "api_version"},
			},
		},
		"required": []interface{}{"header"},
	}

	filtered := FilterVisible(node)
	header := filtered["properties"].(map[string]interface{})["header"].(map[string]interface{})
	headerProps := header["properties"].(map[string]interface{})
	require.Len(t, headerProps, 1)
	require.Contains(t, headerProps, "accept")
	require.NotContains(t, header, "visible")
}

func TestFilterVisibleIgnoresNonObjectNodes(t *testing.T) {
	node := map[string]interface{}{
		"type": "string",
	}
	filtered := FilterVisible(node)
	require.Equal(t, "string", filtered["type"])
}

func TestFilterVisibleDoesNotMutateInput(t *testing.T) {
	node := map[string]interface{}{
		"type":    "object",
		"visible": []interface{}{"query"},
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string"},
		},
	}
	_ = FilterVisible(node)
	require.Contains(t, node, "visible", "FilterVisible must operate on a copy, not the caller's schema")
}

func TestInjectInvisibleRequiredDefaultsFillsInvisibleRequiredProperty(t *testing.T) {
	node := map[string]interface{}{
		"type":    "object",
		"visible": []interface{}{"query"},
		"properties": map[string]interface{}{
			"query":       map[string]interface{}{"type": "string"},
			"api_version": map[string]interface{}{"type": "string", "default": "2024-01"},
		},
		"required": []interface{}{"query", "api_version"},
	}
	input := map[string]interface{}{"query": "hello"}

	result, err := InjectInvisibleRequiredDefaults(node, input)
	require.NoError(t, err)
	require.Equal(t, "2024-01", result["api_version"])
	require.Equal(t, "hello", result["query"])
}

func TestInjectInvisibleRequiredDefaultsDefaultsInvisibleObjectToEmptyMap(t *testing.T) {
	node := map[string]interface{}{
		"type":    "object",
		"visible": []interface{}{},
		"properties": map[string]interface{}{
			"header": map[string]interface{}{"type": "object"},
		},
		"required": []interface{}{"header"},
	}

	result, err := InjectInvisibleRequiredDefaults(node, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{}, result["header"])
}

func TestInjectInvisibleRequiredDefaultsErrorsWithoutDefault(t *testing.T) {
	node := map[string]interface{}{
		"type":    "object",
		"visible": []interface{}{},
		"properties": map[string]interface{}{
			"api_key": map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"api_key"},
	}

	_, err := InjectInvisibleRequiredDefaults(node, nil)
	require.Error(t, err)
}

func TestInjectInvisibleRequiredDefaultsRecursesIntoNestedObject(t *testing.T) {
	node := map[string]interface{}{
		"type":    "object",
		"visible": []interface{}{"header"},
		"properties": map[string]interface{}{
			"header": map[string]interface{}{
				"type":    "object",
				"visible": []interface{}{},
				"properties": map[string]interface{}{
					"api_version": map[string]interface{}{"type": "string", "default": "2024-01"},
				},
				"required": []interface{}{"api_version"},
			},
		},
		"required": []interface{}{"header"},
	}
	input := map[string]interface{}{"header": map[string]interface{}{}}

	result, err := InjectInvisibleRequiredDefaults(node, input)
	require.NoError(t, err)
	header := result["header"].(map[string]interface{})
	require.Equal(t, "2024-01", header["api_version"])
}

func TestRemoveNoneStripsNilRecursively(t *testing.T) {
	input := map[string]interface{}{
		"a": "x",
		"b": nil,
		"c": map[string]interface{}{"d": nil, "e": "y"},
	}
	out := RemoveNone(input).(map[string]interface{})
	require.Equal(t, "x", out["a"])
	require.NotContains(t, out, "b")
	nested := out["c"].(map[string]interface{})
	require.NotContains(t, nested, "d")
	require.Equal(t, "y", nested["e"])
}
