package output

import (
	"strconv"
	"time"

	"github.com/marmos91/ftserve/internal/cli/timeutil"
	"github.com/marmos91/ftserve/pkg/adapter"
	"github.com/marmos91/ftserve/pkg/config"
)

// shortIDLen is how much of a worker ID the table shows.
const shortIDLen = 8

// Listing is a server directory listing.
type Listing []string

// Headers implements TableRenderer.
func (l Listing) Headers() []string {
	return []string{"Name"}
}

// Rows implements TableRenderer.
func (l Listing) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, name := range l {
		rows = append(rows, []string{name})
	}
	return rows
}

// Workers is a snapshot of the worker registry.
type Workers []adapter.WorkerStatus

// Headers implements TableRenderer.
func (ws Workers) Headers() []string {
	return []string{"ID", "Client", "Command", "File", "Data Port", "State", "Exit", "Age"}
}

// Rows implements TableRenderer.
func (ws Workers) Rows() [][]string {
	now := time.Now()
	rows := make([][]string, 0, len(ws))
	for _, w := range ws {
		id := w.ID
		if len(id) > shortIDLen {
			id = id[:shortIDLen]
		}
		file := w.Filename
		if file == "" {
			file = "-"
		}
		exit := "-"
		if w.ExitStatus != nil {
			exit = strconv.Itoa(*w.ExitStatus)
		}
		rows = append(rows, []string{
			id,
			w.Client,
			w.Command,
			file,
			strconv.Itoa(w.DataPort),
			string(w.State),
			exit,
			timeutil.FormatAge(w.StartedAt, now),
		})
	}
	return rows
}

// Settings is a flattened configuration.
type Settings []config.Setting

// Headers implements TableRenderer.
func (s Settings) Headers() []string {
	return []string{"Key", "Value"}
}

// Rows implements TableRenderer.
func (s Settings) Rows() [][]string {
	rows := make([][]string, 0, len(s))
	for _, setting := range s {
		rows = append(rows, []string{setting.Key, setting.Value})
	}
	return rows
}

// Transfer summarizes one completed client request.
type Transfer struct {
	Server   string `json:"server" yaml:"server"`
	Command  string `json:"command" yaml:"command"`
	Filename string `json:"filename,omitempty" yaml:"filename,omitempty"`
	SavedAs  string `json:"saved_as,omitempty" yaml:"saved_as,omitempty"`
	Entries  int    `json:"entries,omitempty" yaml:"entries,omitempty"`
	Bytes    int    `json:"bytes" yaml:"bytes"`
	Duration string `json:"duration" yaml:"duration"`
}

// Pairs implements PairsRenderer.
func (t Transfer) Pairs() [][2]string {
	pairs := [][2]string{
		{"Server", t.Server},
		{"Command", t.Command},
	}
	if t.Filename != "" {
		pairs = append(pairs, [2]string{"File", t.Filename})
	}
	if t.SavedAs != "" {
		pairs = append(pairs, [2]string{"Saved as", t.SavedAs})
	}
	if t.Command == "list" {
		pairs = append(pairs, [2]string{"Entries", strconv.Itoa(t.Entries)})
	}
	return append(pairs,
		[2]string{"Bytes", strconv.Itoa(t.Bytes)},
		[2]string{"Duration", t.Duration},
	)
}
