package monitor

import (
	"context"
	"net"
	"net/http"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// Error taxonomy surfaced to callers. Use errors.Is to classify.
var (
	ErrValidation = errors.New("invalid request")
	ErrNotFound   = errors.New("instance not found or disabled")
	ErrConnection = errors.New("cannot connect to database instance")
	ErrCollection = errors.New("cannot collect status from database instance")
	ErrInternal   = errors.New("internal error")
)

const erAccessDenied = 1045

// ConnectionError carries the driver failure behind a failed probe.
type ConnectionError struct {
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	return "connection failed (" + e.Reason + "): " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error        { return e.Err }
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// CollectionError carries the failure behind a failed status capture.
type CollectionError struct {
	Query string
	Err   error
}

func (e *CollectionError) Error() string {
	return "collect " + e.Query + ": " + e.Err.Error()
}

func (e *CollectionError) Unwrap() error        { return e.Err }
func (e *CollectionError) Is(target error) bool { return target == ErrCollection }

type validationError string

func (e validationError) Error() string        { return string(e) }
func (e validationError) Is(target error) bool { return target == ErrValidation }

// Validation returns an ErrValidation whose message is msg.
func Validation(msg string) error {
	return validationError(msg)
}

// reason classifies a driver error the way an operator would describe it.
func reason(err error) string {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == erAccessDenied {
		return "access denied"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "timeout"
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return "unreachable"
	}
	return "error"
}

// Code maps err onto the response envelope code.
func Code(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
