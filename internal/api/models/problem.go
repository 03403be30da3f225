package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 style error body. Error carries the short title and
// Message the human readable explanation.
type Problem struct {
	Type      string       `json:"type"`
	Title     string       `json:"title"`
	Status    int          `json:"status"`
	Error     string       `json:"error"`
	Message   string       `json:"message,omitempty"`
	Instance  string       `json:"instance,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
	Errors    []FieldError `json:"errors,omitempty"`
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Problem types.
const (
	ProblemTypeValidation      = "https://bustracking.dev/problems/validation-error"
	ProblemTypeNotFound        = "https://bustracking.dev/problems/not-found"
	ProblemTypeTooManyRequests = "https://bustracking.dev/problems/too-many-requests"
	ProblemTypeInternal        = "https://bustracking.dev/problems/internal-error"
	ProblemTypeBadGateway      = "https://bustracking.dev/problems/bad-gateway"
	ProblemTypeUnavailable     = "https://bustracking.dev/problems/service-unavailable"
)

// NewProblem creates a new Problem.
func NewProblem(problemType, title string, status int, requestID string) *Problem {
	return &Problem{
		Type:      problemType,
		Title:     title,
		Status:    status,
		Error:     title,
		RequestID: requestID,
	}
}

// WithMessage sets the human readable message.
func (p *Problem) WithMessage(message string) *Problem {
	p.Message = message
	return p
}

// WithInstance sets the request path the problem occurred on.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// WithErrors adds field errors.
func (p *Problem) WithErrors(errors []FieldError) *Problem {
	p.Errors = errors
	return p
}

// Write writes the Problem as JSON to the ResponseWriter.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.RequestID != "" {
		w.Header().Set("X-Request-Id", p.RequestID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest creates a 400 problem.
func NewBadRequest(requestID, message string, errors []FieldError) *Problem {
	return NewProblem(ProblemTypeValidation, "Validation error", http.StatusBadRequest, requestID).
		WithMessage(message).
		WithErrors(errors)
}

// NewNotFound creates a 404 problem.
func NewNotFound(requestID, message string) *Problem {
	return NewProblem(ProblemTypeNotFound, "Not found", http.StatusNotFound, requestID).WithMessage(message)
}

// NewTooManyRequests creates a 429 problem.
func NewTooManyRequests(requestID, message string) *Problem {
	return NewProblem(ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests, requestID).WithMessage(message)
}

// NewInternalError creates a 500 problem.
func NewInternalError(requestID, message string) *Problem {
	return NewProblem(ProblemTypeInternal, "Internal server error", http.StatusInternalServerError, requestID).WithMessage(message)
}

// NewBadGateway creates a 502 problem for upstream failures.
func NewBadGateway(requestID, message string) *Problem {
	return NewProblem(ProblemTypeBadGateway, "Upstream unavailable", http.StatusBadGateway, requestID).WithMessage(message)
}

// NewServiceUnavailable creates a 503 problem.
func NewServiceUnavailable(requestID, message string) *Problem {
	return NewProblem(ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable, requestID).WithMessage(message)
}
