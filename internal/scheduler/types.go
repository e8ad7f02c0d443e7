// Package scheduler runs the pipeline manager: a bounded worker pool that
// executes scrape and refresh jobs against the catalog, enforcing the
// version state machine, per-version deduplication, cooperative
// cancellation, and startup recovery (§4.4, §5).
package scheduler

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/docindex/internal/store"
)

var jobCounter uint64

// newJobID returns a process-unique job identifier, following the same
// timestamp+counter scheme as the catalog's newID.
func newJobID() string {
	return fmt.Sprintf("job_%d_%d", time.Now().UnixNano(), atomic.AddUint64(&jobCounter, 1))
}

// JobKind distinguishes an initial scrape from a refresh of an already
// indexed version.
type JobKind string

const (
	JobScrape  JobKind = "scrape"
	JobRefresh JobKind = "refresh"
)

// Job is one unit of scheduler work, queued per version (§4.4 scheduling
// rules: FIFO, one active job per version).
type Job struct {
	ID         string
	Kind       JobKind
	VersionID  string
	Library    string
	Version    string
	SourceURL  string
	Options    store.ScraperOptions
	EnqueuedAt time.Time
}

// JobInfo is a point-in-time snapshot of a job/version's scheduling state,
// returned by get_job_info and the operator HTTP API.
type JobInfo struct {
	JobID      string               `json:"job_id"`
	VersionID  string               `json:"version_id"`
	Library    string               `json:"library"`
	Version    string               `json:"version"`
	Kind       JobKind              `json:"kind"`
	Status     store.VersionStatus  `json:"status"`
	Pages      int                  `json:"pages"`
	MaxPages   int                  `json:"max_pages"`
	Error      string               `json:"error,omitempty"`
	EnqueuedAt time.Time            `json:"enqueued_at"`
	StartedAt  *time.Time           `json:"started_at,omitempty"`
}

// EventType names a scheduler event kind (§4.4 events).
type EventType string

const (
	EventJobEnqueued     EventType = "job_enqueued"
	EventJobStatusChange EventType = "job_status_change"
	EventJobProgress     EventType = "job_progress"
	EventLibraryChange   EventType = "library_change"
)

// Event is published on a version's event channel. Delivery is best-effort
// and ordered per version; slow subscribers may miss events rather than
// block the worker that produces them.
type Event struct {
	Type      EventType
	VersionID string
	JobID     string
	Status    store.VersionStatus
	Pages     int
	MaxPages  int
	Error     string
	At        time.Time
}
