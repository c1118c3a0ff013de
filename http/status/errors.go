package status

import "errors"

type HTTPError struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

// CodeOf digs an HTTPError out of the chain and returns its code. Errors of
// any other kind are internal ones.
func CodeOf(err error) Code {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}

	return InternalServerError
}

var (
	ErrBadRequest           = NewError(BadRequest, "bad request")
	ErrInvalidBoundary      = NewError(BadRequest, "invalid multipart boundary")
	ErrMalformedMultipart   = NewError(BadRequest, "malformed multipart body")
	ErrNotFound             = NewError(NotFound, "not found")
	ErrMethodNotAllowed     = NewError(MethodNotAllowed, "method not allowed")
	ErrRequestTimeout       = NewError(RequestTimeout, "request timeout")
	ErrBodyTooLarge         = NewError(RequestEntityTooLarge, "request body is too large")
	ErrUnsupportedMediaType = NewError(UnsupportedMediaType, "unsupported media type")
	ErrUnsupportedEncoding  = NewError(UnsupportedMediaType, "unsupported content encoding")
	ErrMalformedEncoding    = NewError(BadRequest, "malformed content encoding")
	ErrUnsafeContent        = NewError(UnprocessableEntity, "form contains unsafe content")
	ErrHeaderFieldsTooLarge = NewError(RequestHeaderFieldsTooLarge, "too large part headers section")
	ErrInternalServerError  = NewError(InternalServerError, "internal server error")
	ErrInsufficientStorage  = NewError(InsufficientStorage, "insufficient storage")
	ErrBadGateway           = NewError(BadGateway, "storage backend failed")
	ErrServiceUnavailable   = NewError(ServiceUnavailable, "storage backend is unavailable")
)
