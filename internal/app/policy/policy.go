// Package policy implements custom-instruction enforcement (spec §4.7): an
// Agent may attach free-text instructions to a Function ("never email
// customer X"), judged against the agent's proposed call by an LLM before
// execution proceeds. Grounded on
// original_source/backend/aci/server/custom_instructions.py's
// judge-then-decide shape, using github.com/sashabaranov/go-openai's chat
// completions API as the judge model.
package policy

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/r3e-network/agentcp/pkg/logger"
)

// Verdict is the judge's decision on one proposed Function call.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Judge evaluates a Function call's input against an Agent's custom
// instruction for that Function.
type Judge struct {
	api   *openai.Client
	model string
	log   *logger.Logger
}

// New constructs a Judge.
func New(apiKey, model string, log *logger.Logger) *Judge {
	return &Judge{api: openai.NewClient(apiKey), model: model, log: log}
}

const judgePrompt = `You enforce a single operator instruction against one proposed function call. Respond ONLY with JSON: {"allowed": bool, "reason": string}.

Instruction: %s
Function: %s
Proposed input: %s`

// Evaluate asks the judge model whether instruction permits calling
// functionName with input. On any inference error it fails open (spec
// §9 "policy-judge fail-open semantics"): the call proceeds, and the
// error is logged rather than surfaced to the agent, since a judge
// outage must never block unrelated traffic that carries no custom
// instruction in the first place.
func (j *Judge) Evaluate(ctx context.Context, instruction, functionName string, input map[string]interface{}) Verdict {
	if instruction == "" {
		return Verdict{Allowed: true}
	}
	inputJSON, err := json.Marshal(input)
	if err != nil {
		j.log.WithField("function", functionName).WithField("error", err).Warn("policy: failed to marshal input, failing open")
		return Verdict{Allowed: true, Reason: "fail-open: could not marshal input"}
	}

	resp, err := j.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: j.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(judgePrompt, instruction, functionName, string(inputJSON))},
		},
		Temperature: 0,
	})
	if err != nil {
		j.log.WithField("function", functionName).WithField("error", err).Warn("policy: judge inference failed, failing open")
		return Verdict{Allowed: true, Reason: "fail-open: judge inference error"}
	}
	if len(resp.Choices) == 0 {
		return Verdict{Allowed: true, Reason: "fail-open: empty judge response"}
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &verdict); err != nil {
		j.log.WithField("function", functionName).WithField("error", err).Warn("policy: malformed judge response, failing open")
		return Verdict{Allowed: true, Reason: "fail-open: malformed judge response"}
	}
	return verdict
}
