package function

import "fmt"

// DefinitionFormat selects the shape GET /functions/{name}/definition
// renders a Function into for direct use by an LLM tool-call API (spec
// §6). Grounded on
// original_source/backend/aci/server/routes/functions.py's
// format_function_definition.
type DefinitionFormat string

const (
	FormatBasic           DefinitionFormat = "basic"
	FormatOpenAI          DefinitionFormat = "openai"
	FormatOpenAIResponses DefinitionFormat = "openai_responses"
	FormatAnthropic       DefinitionFormat = "anthropic"
)

// Definition renders f into the requested format, using parameters (the
// caller's already visibility-filtered schema, via schema.FilterVisible)
// as the "parameters"/"input_schema" payload.
func (f Function) Definition(format DefinitionFormat, parameters map[string]interface{}) (interface{}, error) {
	switch format {
	case FormatBasic:
		return map[string]interface{}{
			"name":        f.Name,
			"description": f.Description,
		}, nil
	case FormatOpenAI:
		return map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        f.Name,
				"description": f.Description,
				"parameters":  parameters,
			},
		}, nil
	case FormatOpenAIResponses:
		return map[string]interface{}{
			"type":        "function",
			"name":        f.Name,
			"description": f.Description,
			"parameters":  parameters,
		}, nil
	case FormatAnthropic:
		return map[string]interface{}{
			"name":         f.Name,
			"description":  f.Description,
			"input_schema": parameters,
		}, nil
	default:
		return nil, fmt.Errorf("function: invalid definition format %q", format)
	}
}
