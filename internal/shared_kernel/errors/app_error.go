package apperrors

type Type string

const (
	TypeValidation  Type = "validation"
	TypeNotFound    Type = "not_found"
	TypeConflict    Type = "conflict"
	TypeUnavailable Type = "unavailable"
	TypeInternal    Type = "internal"
)

type AppError struct {
	Type    Type           `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

// Is reports whether the error carries the given code. Nil-safe.
func (e *AppError) Is(code string) bool {
	return e != nil && e.Code == code
}

func NewInternal(code, message string, details map[string]any) *AppError {
	return &AppError{
		Type:    TypeInternal,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func NewValidation(code, message string, details map[string]any) *AppError {
	return &AppError{
		Type:    TypeValidation,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func NewNotFound(code, message string, details map[string]any) *AppError {
	return &AppError{
		Type:    TypeNotFound,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func NewConflict(code, message string, details map[string]any) *AppError {
	return &AppError{
		Type:    TypeConflict,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewUnavailable marks failures of a remote dependency (transport errors,
// offline state) that are expected to clear on their own.
func NewUnavailable(code, message string, details map[string]any) *AppError {
	return &AppError{
		Type:    TypeUnavailable,
		Code:    code,
		Message: message,
		Details: details,
	}
}
