package controlplane

import (
	"context"
	"time"

	"github.com/r3e-network/agentcp/internal/apierrors"
	core "github.com/r3e-network/agentcp/internal/app/core/service"
	"github.com/r3e-network/agentcp/internal/app/execution"
	"github.com/r3e-network/agentcp/internal/app/metrics"
	"github.com/r3e-network/agentcp/internal/app/policy"
	"github.com/r3e-network/agentcp/internal/app/schema"
)

// Judge evaluates a proposed Function call against an Agent's custom
// instruction for it, satisfied by *policy.Judge.
type Judge interface {
	Evaluate(ctx context.Context, instruction, functionName string, input map[string]interface{}) policy.Verdict
}

var _ Judge = (*policy.Judge)(nil)

// ExecuteFunction runs the spec §4.4 authorization chain followed by the
// §4.5/§4.6/§4.7/§4.8 resolve-judge-filter-dispatch sequence an agent's
// call to a Function goes through. It is the single entry point the agent
// surface's "execute" route calls.
func (s *Service) ExecuteFunction(ctx context.Context, presentedKey, functionName, linkedAccountOwnerID string, input map[string]interface{}) (execution.Result, error) {
	authCtx, err := s.authz.Authorize(ctx, presentedKey, functionName, linkedAccountOwnerID)
	if err != nil {
		if apiErr, ok := err.(*apierrors.Error); ok && apiErr.Code == apierrors.CodeDailyQuotaExceeded {
			metrics.RecordQuotaRejection(authCtx.Project.ID)
		}
		return execution.Result{}, err
	}

	if instruction, ok := authCtx.Agent.CustomInstructionFor(functionName); ok {
		finish := core.StartObservation(ctx, metrics.PolicyJudgeHooks(), map[string]string{"function_name": functionName})
		verdict := s.judge.Evaluate(ctx, instruction, functionName, input)
		finish(nil)
		if !verdict.Allowed {
			return execution.Result{}, apierrors.New(apierrors.CodeCustomInstructionViolation, verdict.Reason)
		}
	}

	owningApp, err := s.store.GetApp(ctx, authCtx.Function.AppName)
	if err != nil {
		return execution.Result{}, notFoundOrWrap(err, apierrors.CodeAppNotFound, "app not found")
	}

	creds, err := s.resolver.Resolve(ctx, owningApp, authCtx.AppConfiguration, authCtx.LinkedAccount)
	if err != nil {
		return execution.Result{}, err
	}

	filledInput, err := schema.InjectInvisibleRequiredDefaults(authCtx.Function.Parameters, input)
	if err != nil {
		return execution.Result{}, apierrors.New(apierrors.CodeInvalidFunctionInput, err.Error())
	}
	cleanInput, _ := schema.RemoveNone(filledInput).(map[string]interface{})

	start := time.Now()
	var finish func(error)
	if authCtx.Function.ConnectorKey != "" {
		finish = core.StartObservation(ctx, metrics.ConnectorDispatchHooks(authCtx.Function.ConnectorKey), map[string]string{"function_name": functionName})
	}
	result, err := s.engine.Execute(ctx, authCtx.Function, creds, cleanInput)
	if finish != nil {
		finish(err)
	}

	status := "success"
	switch {
	case err != nil:
		status = "error"
	case !result.Success:
		status = "failure"
	}
	metrics.RecordFunctionExecution(status, time.Since(start))

	if err != nil {
		return execution.Result{}, err
	}
	return result, nil
}
