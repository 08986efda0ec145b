package errors

import (
	stderrors "errors"
	"fmt"
)

const (
	HttpInternalError         = "internal_error"
	HttpInvalidRequestError   = "invalid_request"
	HttpPipelineNotFoundError = "pipeline_not_found"
	HttpSpecError             = "invalid_spec"
	HttpSourceError           = "source_failed"
	HttpSinkError             = "sink_failed"
)

// ErrorResponse is the error response body returned by the HTTP API.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// ErrPipelineNotFound is returned when a pipeline name is not loaded.
var ErrPipelineNotFound = stderrors.New("pipeline not found")

// SpecError reports an invalid pipeline declaration. It is raised while a
// pipeline is being compiled, before any row is read.
type SpecError struct {
	Pipeline string // may be empty when the spec is used outside a pipeline
	Field    string // e.g. "reducers[2].column"
	Reason   string
}

func (e *SpecError) Error() string {
	switch {
	case e.Pipeline != "" && e.Field != "":
		return fmt.Sprintf("pipeline %q: %s: %s", e.Pipeline, e.Field, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	case e.Pipeline != "":
		return fmt.Sprintf("pipeline %q: %s", e.Pipeline, e.Reason)
	}
	return e.Reason
}

// Specf builds a SpecError for field.
func Specf(field, format string, args ...any) *SpecError {
	return &SpecError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// SourceError reports a failure reading from a row source. It is fatal to the
// pipeline run that observed it.
type SourceError struct {
	Source string // source kind or table
	Reason string
	Err    error
}

func (e *SourceError) Error() string {
	msg := fmt.Sprintf("source %s: %s", e.Source, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SourceError) Unwrap() error { return e.Err }

// SinkError reports a failure writing to a sink. RowsEmitted counts the rows
// the sink accepted before the failure.
type SinkError struct {
	Sink        string
	Reason      string
	RowsEmitted int
	Err         error
}

func (e *SinkError) Error() string {
	msg := fmt.Sprintf("sink %s: %s after %d rows", e.Sink, e.Reason, e.RowsEmitted)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SinkError) Unwrap() error { return e.Err }

// IsSpecError reports whether err is or wraps a *SpecError.
func IsSpecError(err error) bool {
	var se *SpecError
	return stderrors.As(err, &se)
}

// AsSpecError tags err with pipeline when it wraps a SpecError that names
// no pipeline. The wrapped SpecError is left untouched; errors.As on the
// result yields a copy with Pipeline set.
func AsSpecError(pipeline string, err error) error {
	var se *SpecError
	if pipeline == "" || !stderrors.As(err, &se) || se.Pipeline != "" {
		return err
	}
	tagged := *se
	tagged.Pipeline = pipeline
	return &pipelineSpecError{spec: &tagged, err: err}
}

type pipelineSpecError struct {
	spec *SpecError
	err  error
}

func (e *pipelineSpecError) Error() string {
	return fmt.Sprintf("pipeline %q: %s", e.spec.Pipeline, e.err.Error())
}

func (e *pipelineSpecError) Unwrap() error { return e.err }

func (e *pipelineSpecError) As(target any) bool {
	t, ok := target.(**SpecError)
	if ok {
		*t = e.spec
	}
	return ok
}
