package dto

import "time"

const (
	JobExpireCredentials = "expire-credentials"
	JobPurgeOldRecords   = "purge-old-records"
	JobResyncFuture      = "resync-future"
	JobLockHealth        = "lock-health"
)

// Jobs lists every job name accepted by the scheduler.
var Jobs = []string{JobExpireCredentials, JobPurgeOldRecords, JobResyncFuture, JobLockHealth}

// JobResult counts what one run did. Failed items are left for the next run.
type JobResult struct {
	Job          string        `json:"job"`
	Scanned      int           `json:"scanned"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	Purged       int           `json:"purged,omitempty"`
	Archive      []string      `json:"archive,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	NotRunReason string        `json:"not_run_reason,omitempty"`
}

func (r JobResult) Fields() map[string]any {
	fields := map[string]any{
		"scanned":   r.Scanned,
		"succeeded": r.Succeeded,
		"failed":    r.Failed,
		"skipped":   r.Skipped,
		"duration":  r.Duration.String(),
	}

	if r.Purged > 0 {
		fields["purged"] = r.Purged
	}

	if r.NotRunReason != "" {
		fields["not_run_reason"] = r.NotRunReason
	}

	return fields
}
