// Package invoke submits chaincode invocations to the network.
//
// This package contains:
//   - Invoker interface: the transport-agnostic invocation contract
//   - HTTPInvoker: REST gateway implementation
//   - GRPCInvoker: gRPC gateway implementation
//   - ClassifyError: failure labelling for metrics
package invoke

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/orchestrator/internal/core/domain"
)

// Invoker submits one chaincode invocation and returns its transaction id.
// Timeouts and cancellation are owned by the implementation and ctx.
type Invoker interface {
	Invoke(ctx context.Context, req domain.InvocationRequest) (string, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req domain.InvocationRequest) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, req domain.InvocationRequest) (string, error) {
	return f(ctx, req)
}

// ErrorClass labels an invocation failure.
type ErrorClass string

const (
	ErrorClassTimeout     ErrorClass = "timeout"
	ErrorClassUnavailable ErrorClass = "unavailable"
	ErrorClassRejected    ErrorClass = "rejected"
	ErrorClassUnknown     ErrorClass = "unknown"
)

// ClassifyError determines the class of an invocation failure.
// It is used for metrics only; failures are never retried.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.DeadlineExceeded:
			return ErrorClassTimeout
		case codes.Unavailable, codes.ResourceExhausted:
			return ErrorClassUnavailable
		case codes.InvalidArgument, codes.PermissionDenied, codes.Unauthenticated,
			codes.FailedPrecondition, codes.NotFound, codes.Aborted:
			return ErrorClassRejected
		}
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 408 || httpErr.StatusCode == 504:
			return ErrorClassTimeout
		case httpErr.StatusCode == 429 || httpErr.StatusCode >= 500:
			return ErrorClassUnavailable
		case httpErr.StatusCode >= 400:
			return ErrorClassRejected
		}
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "timeout") || strings.Contains(s, "deadline"):
		return ErrorClassTimeout
	case strings.Contains(s, "connection refused") || strings.Contains(s, "connection reset") ||
		strings.Contains(s, "no such host") || strings.Contains(s, "unavailable"):
		return ErrorClassUnavailable
	case strings.Contains(s, "endorsement") || strings.Contains(s, "mvcc") ||
		strings.Contains(s, "forbidden") || strings.Contains(s, "unauthorized"):
		return ErrorClassRejected
	}
	return ErrorClassUnknown
}
