// Package apierrors provides the single hierarchical error type used
// across the control plane (spec §7), grounded on the teacher's
// infrastructure/errors package but carrying this domain's own error
// catalogue instead of the teacher's blockchain/TEE-flavored one.
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a stable error kind (spec §7's Kind column).
type Code string

const (
	CodeInvalidAPIKey                   Code = "InvalidAPIKey"
	CodeAppNotAllowedForThisAgent        Code = "AppNotAllowedForThisAgent"
	CodeDailyQuotaExceeded               Code = "DailyQuotaExceeded"
	CodeProjectAccessDenied              Code = "ProjectAccessDenied"
	CodeOrgAccessDenied                  Code = "OrgAccessDenied"
	CodeAppConfigurationDisabled         Code = "AppConfigurationDisabled"
	CodeLinkedAccountDisabled            Code = "LinkedAccountDisabled"
	CodeCustomInstructionViolation       Code = "CustomInstructionViolation"
	CodeMaxProjectsReached               Code = "MaxProjectsReached"
	CodeMaxAgentsReached                 Code = "MaxAgentsReached"
	CodeAppNotFound                      Code = "AppNotFound"
	CodeAppConfigurationNotFound         Code = "AppConfigurationNotFound"
	CodeLinkedAccountNotFound            Code = "LinkedAccountNotFound"
	CodeFunctionNotFound                 Code = "FunctionNotFound"
	CodeAgentNotFound                    Code = "AgentNotFound"
	CodeProjectNotFound                  Code = "ProjectNotFound"
	CodeUserNotFound                     Code = "UserNotFound"
	CodeSubscriptionPlanNotFound         Code = "SubscriptionPlanNotFound"
	CodeAppConfigurationAlreadyExists    Code = "AppConfigurationAlreadyExists"
	CodeLinkedAccountAlreadyExists       Code = "LinkedAccountAlreadyExists"
	CodeInvalidFunctionInput             Code = "InvalidFunctionInput"
	CodeInvalidFunctionDefinitionFormat  Code = "InvalidFunctionDefinitionFormat"
	CodeAppSecuritySchemeNotSupported    Code = "AppSecuritySchemeNotSupported"
	CodeAgentSecretsManagerError         Code = "AgentSecretsManagerError"
	CodeDependencyCheckError             Code = "DependencyCheckError"
	CodeOAuth2Error                      Code = "OAuth2Error"
	CodeUnexpectedError                  Code = "UnexpectedError"
	CodeNoImplementationFound            Code = "NoImplementationFound"
)

var httpStatus = map[Code]int{
	CodeInvalidAPIKey:                  http.StatusUnauthorized,
	CodeAppNotAllowedForThisAgent:       http.StatusUnauthorized,
	CodeDailyQuotaExceeded:              http.StatusUnauthorized,
	CodeProjectAccessDenied:             http.StatusForbidden,
	CodeOrgAccessDenied:                 http.StatusForbidden,
	CodeAppConfigurationDisabled:        http.StatusForbidden,
	CodeLinkedAccountDisabled:           http.StatusForbidden,
	CodeCustomInstructionViolation:      http.StatusForbidden,
	CodeMaxProjectsReached:              http.StatusForbidden,
	CodeMaxAgentsReached:                http.StatusForbidden,
	CodeAppNotFound:                     http.StatusNotFound,
	CodeAppConfigurationNotFound:        http.StatusNotFound,
	CodeLinkedAccountNotFound:           http.StatusNotFound,
	CodeFunctionNotFound:                http.StatusNotFound,
	CodeAgentNotFound:                   http.StatusNotFound,
	CodeProjectNotFound:                 http.StatusNotFound,
	CodeUserNotFound:                    http.StatusNotFound,
	CodeSubscriptionPlanNotFound:        http.StatusNotFound,
	CodeAppConfigurationAlreadyExists:   http.StatusConflict,
	CodeLinkedAccountAlreadyExists:      http.StatusConflict,
	CodeInvalidFunctionInput:            http.StatusBadRequest,
	CodeInvalidFunctionDefinitionFormat: http.StatusBadRequest,
	CodeAppSecuritySchemeNotSupported:   http.StatusBadRequest,
	CodeAgentSecretsManagerError:        http.StatusBadRequest,
	CodeDependencyCheckError:            http.StatusBadRequest,
	CodeOAuth2Error:                     http.StatusInternalServerError,
	CodeUnexpectedError:                 http.StatusInternalServerError,
	CodeNoImplementationFound:           http.StatusNotImplemented,
}

// Error is the single hierarchical error type (spec §7): a title, an
// optional message, and an HTTP status derived from the code.
type Error struct {
	Code    Code
	Title   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Title, e.Message)
	}
	return e.Title
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the status code the global handler should use.
func (e *Error) HTTPStatus() int {
	if status, ok := httpStatus[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// New constructs an Error with the title spec §7 assigns each Code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Title: string(code), Message: message}
}

// Wrap constructs an Error carrying an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Title: string(code), Message: message, Err: err}
}

// As extracts an *Error from err's chain, if present.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// StatusOf returns the HTTP status for err, defaulting to 500 for
// unrecognized errors.
func StatusOf(err error) int {
	if apiErr, ok := As(err); ok {
		return apiErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// Envelope is the wire shape the global handler serializes (spec §7:
// `{error: "<title>[, <message>]"}`).
type Envelope struct {
	Error string `json:"error"`
}

// ToEnvelope renders err as the wire envelope.
func ToEnvelope(err error) Envelope {
	if apiErr, ok := As(err); ok {
		if apiErr.Message != "" {
			return Envelope{Error: fmt.Sprintf("%s, %s", apiErr.Title, apiErr.Message)}
		}
		return Envelope{Error: apiErr.Title}
	}
	return Envelope{Error: "UnexpectedError"}
}
