package knowledge

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// OperationErrorCode classifies index failures.
type OperationErrorCode string

const (
	OperationErrorValidation        OperationErrorCode = "validation_failed"
	OperationErrorUnsupportedFilter OperationErrorCode = "unsupported_filter"
	OperationErrorEncodeFailed      OperationErrorCode = "encode_failed"
	OperationErrorDecodeFailed      OperationErrorCode = "decode_failed"
	OperationErrorTransportFailed   OperationErrorCode = "transport_failed"
	OperationErrorTimeout           OperationErrorCode = "timeout"
	OperationErrorQueryFailed       OperationErrorCode = "query_failed"
	OperationErrorEmbedFailed       OperationErrorCode = "embed_failed"
)

// OperationError is returned by index operations.
type OperationError struct {
	Code    OperationErrorCode
	Op      string
	Status  int
	Message string
	Cause   error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "knowledge operation failed"
	}
	detail := e.Message
	if detail == "" && e.Cause != nil {
		detail = e.Cause.Error()
	}
	if detail == "" {
		return fmt.Sprintf("knowledge operation failed (op=%s code=%s status=%d)", e.Op, e.Code, e.Status)
	}
	return fmt.Sprintf("knowledge operation failed (op=%s code=%s status=%d): %s", e.Op, e.Code, e.Status, detail)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func opErr(op string, code OperationErrorCode, msg string, cause error) error {
	return &OperationError{Code: code, Op: op, Message: msg, Cause: cause}
}

func classifyHTTPCallError(op, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}
