package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"db-monitor/pkg/monitor"
)

// Envelope wraps every JSON response.
type Envelope struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// DegradedHeader is set on realtime responses served from an empty report.
const DegradedHeader = "X-Monitor-Degraded"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("failed to write response")
	}
}

func ok(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, Envelope{
		Code:      http.StatusOK,
		Message:   "success",
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func fail(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, Envelope{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
}

// failErr maps the monitor error taxonomy onto an envelope.
func failErr(w http.ResponseWriter, err error) {
	code := monitor.Code(err)
	fail(w, code, errorMessage(err, code))
}

func errorMessage(err error, code int) string {
	switch {
	case code == http.StatusBadRequest:
		return err.Error()
	case code == http.StatusNotFound:
		return "instance not found"
	case errors.Is(err, monitor.ErrConnection):
		var ce *monitor.ConnectionError
		if errors.As(err, &ce) {
			return "unable to connect: " + ce.Reason
		}
		return "unable to connect"
	default:
		return "internal server error"
	}
}

// parseID accepts positive decimal ids only.
func parseID(raw string) (uint, error) {
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || n == 0 {
		return 0, monitor.Validation("invalid instance id: " + strconv.Quote(raw))
	}
	return uint(n), nil
}

// parseIDValue accepts a JSON number or a numeric string.
func parseIDValue(raw json.RawMessage) (uint, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, monitor.Validation("instanceId is required")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseID(s)
	}
	return parseID(string(raw))
}
