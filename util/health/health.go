// Package health aggregates the health checks of a service's dependencies
// into one status code and a JSON body.
package health

import (
	"context"
	"encoding/json"
	"net/http"
)

type Check struct {
	Name  string
	Check func(context.Context, bool) (int, string, error)
}

// Report is the JSON body returned by CheckAll. Nested reports from
// sub-checks are embedded as Dependencies.
type Report struct {
	Resource     string          `json:"resource,omitempty"`
	Status       int             `json:"status"`
	Error        string          `json:"error,omitempty"`
	Message      string          `json:"message,omitempty"`
	Dependencies json.RawMessage `json:"dependencies,omitempty"`
}

// CheckAll runs every check and returns 200 only when all of them pass. A
// check whose message is itself valid JSON is nested rather than quoted.
func CheckAll(ctx context.Context, checkLiveness bool, checks []Check) (int, string, error) {
	overallStatus := http.StatusOK
	reports := make([]Report, 0, len(checks))

	for _, check := range checks {
		status, message, err := check.Check(ctx, checkLiveness)
		if err != nil || status != http.StatusOK {
			overallStatus = http.StatusServiceUnavailable
		}

		report := Report{Resource: check.Name, Status: status}

		if err != nil {
			report.Error = err.Error()
		}

		if json.Valid([]byte(message)) && len(message) > 0 && (message[0] == '{' || message[0] == '[') {
			report.Dependencies = json.RawMessage(message)
		} else {
			report.Message = message
		}

		reports = append(reports, report)
	}

	return overallStatus, marshal(overallStatus, reports), nil
}

func marshal(status int, reports []Report) string {
	dependencies, err := json.Marshal(reports)
	if err != nil {
		dependencies = []byte("[]")
	}

	body, err := json.Marshal(Report{Status: status, Dependencies: dependencies})
	if err != nil {
		return "{}"
	}

	return string(body)
}
