package fhir

import "fmt"

// OperationOutcome severity levels.
const (
	IssueSeverityFatal       = "fatal"
	IssueSeverityError       = "error"
	IssueSeverityWarning     = "warning"
	IssueSeverityInformation = "information"
)

// OperationOutcome issue type codes used by the API.
const (
	IssueTypeInvalid    = "invalid"
	IssueTypeRequired   = "required"
	IssueTypeNotFound   = "not-found"
	IssueTypeProcessing = "processing"
	IssueTypeThrottled  = "throttled"
	IssueTypeTooLong    = "too-long"
	IssueTypeException  = "exception"
	IssueTypeTimeout    = "timeout"
)

// OperationOutcome is the error body returned by every endpoint.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string           `json:"severity"`
	Code        string           `json:"code"`
	Details     *CodeableConcept `json:"details,omitempty"`
	Diagnostics string           `json:"diagnostics,omitempty"`
	Expression  []string         `json:"expression,omitempty"`
}

func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{
				Severity:    severity,
				Code:        code,
				Diagnostics: diagnostics,
			},
		},
	}
}

// HasErrors returns true if the outcome contains any error or fatal issues.
func (o *OperationOutcome) HasErrors() bool {
	for _, issue := range o.Issue {
		if issue.Severity == IssueSeverityError || issue.Severity == IssueSeverityFatal {
			return true
		}
	}
	return false
}

func ErrorOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeProcessing, diagnostics)
}

func NotFoundOutcome(resourceType, id string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeNotFound, resourceType+"/"+id+" not found")
}

// ValidationOutcome reports a bad request field.
func ValidationOutcome(field, message string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{
				Severity:    IssueSeverityError,
				Code:        IssueTypeInvalid,
				Diagnostics: fmt.Sprintf("%s: %s", field, message),
				Expression:  []string{field},
			},
		},
	}
}

// RequiredFieldOutcome creates an OperationOutcome for a missing required field.
func RequiredFieldOutcome(field string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{
				Severity:    IssueSeverityError,
				Code:        IssueTypeRequired,
				Diagnostics: fmt.Sprintf("%s is required", field),
				Expression:  []string{field},
			},
		},
	}
}

func InternalErrorOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityFatal, IssueTypeException, diagnostics)
}

// OutcomeForStatus picks the issue code that matches an HTTP status.
func OutcomeForStatus(status int, diagnostics string) *OperationOutcome {
	switch {
	case status == 404:
		return NewOperationOutcome(IssueSeverityError, IssueTypeNotFound, diagnostics)
	case status == 413:
		return NewOperationOutcome(IssueSeverityError, IssueTypeTooLong, diagnostics)
	case status == 429:
		return NewOperationOutcome(IssueSeverityError, IssueTypeThrottled, diagnostics)
	case status == 504:
		return NewOperationOutcome(IssueSeverityError, IssueTypeTimeout, diagnostics)
	case status >= 500:
		return InternalErrorOutcome(diagnostics)
	case status >= 400:
		return NewOperationOutcome(IssueSeverityError, IssueTypeInvalid, diagnostics)
	}
	return NewOperationOutcome(IssueSeverityInformation, IssueTypeProcessing, diagnostics)
}
