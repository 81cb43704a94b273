package apperr

import (
	"errors"
	"net/http"
)

// Error represents a typed, status-aware application error.
// Fields maps an offending request field to the reason it was rejected.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message,omitempty"`
	Status  int            `json:"-"`
	Fields  map[string]any `json:"reasons,omitempty"`
	Extra   map[string]any `json:"extra_info,omitempty"`
	Err     error          `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return "error"
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is the same sentinel (by code) as e, so that
// copies made by Wrap and WithFields still match their base error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code != "" && e.Code == t.Code
}

func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

func Wrap(err error, base *Error, message string) *Error {
	if err == nil {
		return nil
	}
	if base == nil {
		base = ErrInternal
	}
	copy := *base
	if message != "" {
		copy.Message = message
	}
	copy.Err = err
	return &copy
}

func WithFields(base *Error, fields map[string]any) *Error {
	if base == nil {
		return nil
	}
	copy := *base
	copy.Fields = fields
	return &copy
}

// Input builds an ErrInput for a single request field.
func Input(field, reason string) *Error {
	e := WithFields(ErrInput, map[string]any{field: reason})
	e.Message = field + ": " + reason
	return e
}

func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

func Status(err error) int {
	if e, ok := As(err); ok && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

func Code(err error) string {
	if e, ok := As(err); ok && e.Code != "" {
		return e.Code
	}
	return "internal_error"
}

func Message(err error) string {
	if e, ok := As(err); ok {
		if e.Message != "" {
			return e.Message
		}
		if e.Err != nil {
			return e.Err.Error()
		}
		return e.Code
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// Payload renders err as the API error body:
//
//	{"reasons": {...}, "extra_info": {...}}
//
// Errors without field reasons are reported under their code.
func Payload(err error) map[string]any {
	if err == nil {
		return map[string]any{"reasons": map[string]any{}, "extra_info": map[string]any{}}
	}
	reasons := map[string]any{}
	extra := map[string]any{}
	if e, ok := As(err); ok {
		for k, v := range e.Fields {
			reasons[k] = v
		}
		for k, v := range e.Extra {
			extra[k] = v
		}
		if len(reasons) == 0 {
			reasons[Code(e)] = Message(e)
		}
	} else {
		reasons["internal_error"] = err.Error()
	}
	return map[string]any{
		"reasons":    reasons,
		"extra_info": extra,
	}
}

var (
	ErrBadRequest   = New("bad_request", http.StatusBadRequest, "")
	ErrValidation   = New("validation_error", http.StatusBadRequest, "")
	ErrEmptyBody    = New("empty_body", http.StatusBadRequest, "request body is empty")
	ErrUnauthorized = New("unauthorized", http.StatusUnauthorized, "")
	ErrNotFound     = New("not_found", http.StatusNotFound, "")
	ErrConflict     = New("conflict", http.StatusConflict, "")
	ErrInternal     = New("internal_error", http.StatusInternalServerError, "")
	ErrMarshal      = New("marshal_error", http.StatusInternalServerError, "")
	ErrDatabase     = New("database_error", http.StatusInternalServerError, "")

	ErrInput            = New("input_error", http.StatusUnprocessableEntity, "")
	ErrBadPOI           = New("bad_poi", http.StatusUnprocessableEntity, "period of interest start is after its end")
	ErrEphemeris        = New("ephemeris_error", http.StatusUnprocessableEntity, "")
	ErrViewCone         = New("view_cone_error", http.StatusInternalServerError, "unsupported viewing cone and orbit configuration")
	ErrInterpolation    = New("interpolation_error", http.StatusUnprocessableEntity, "")
	ErrVisibilityFinder = New("visibility_finder_error", http.StatusInternalServerError, "")
)
