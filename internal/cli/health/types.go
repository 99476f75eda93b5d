// Package health provides the server status report shown by the status
// command.
package health

import (
	"strconv"

	"github.com/marmos91/ftserve/internal/cli/timeutil"
	"github.com/marmos91/ftserve/pkg/adapter"
)

// Status values reported when the API cannot be asked.
const (
	StatusUnreachable = "unreachable"
	StatusUnknown     = "unknown"
)

// Report is the server status assembled from the status API.
type Report struct {
	Server        string                 `json:"server" yaml:"server"`
	Status        string                 `json:"status" yaml:"status"`
	Healthy       bool                   `json:"healthy" yaml:"healthy"`
	Ready         bool                   `json:"ready" yaml:"ready"`
	Service       string                 `json:"service,omitempty" yaml:"service,omitempty"`
	StartedAt     string                 `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Uptime        string                 `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	ActiveWorkers int                    `json:"active_workers" yaml:"active_workers"`
	Workers       []adapter.WorkerStatus `json:"workers" yaml:"workers"`
	Error         string                 `json:"error,omitempty" yaml:"error,omitempty"`
}

// Pairs returns the report as key/value rows, with times in local form.
func (r Report) Pairs() [][2]string {
	pairs := [][2]string{
		{"Server", r.Server},
		{"Status", r.Status},
	}
	if r.Service != "" {
		pairs = append(pairs, [2]string{"Service", r.Service})
	}
	if r.StartedAt != "" {
		pairs = append(pairs, [2]string{"Started", timeutil.FormatTime(r.StartedAt)})
	}
	if r.Uptime != "" {
		pairs = append(pairs, [2]string{"Uptime", timeutil.FormatUptime(r.Uptime)})
	}
	if r.Status != StatusUnreachable {
		ready := "no"
		if r.Ready {
			ready = "yes"
		}
		pairs = append(pairs,
			[2]string{"Ready", ready},
			[2]string{"Workers", strconv.Itoa(r.ActiveWorkers)},
		)
	}
	if r.Error != "" {
		pairs = append(pairs, [2]string{"Error", r.Error})
	}
	return pairs
}
