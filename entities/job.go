package entities

import (
	"time"

	"adgen-jobs/constant"
)

type Job struct {
	ID           string             `json:"id" gorm:"type:varchar(64);primary_key"`
	Prompt       string             `json:"prompt" gorm:"type:text;not null"`
	JobType      constant.JobType   `json:"jobType" gorm:"type:varchar(16);not null"`
	Status       constant.JobStatus `json:"status" gorm:"type:varchar(20);not null;index:idx_jobs_status"`
	LogoURL      *string            `json:"logoUrl" gorm:"type:varchar(1024)"`
	VideoURL     *string            `json:"videoUrl" gorm:"type:varchar(1024)"`
	ErrorMessage *string            `json:"errorMessage" gorm:"type:text"`
	CreatedAt    time.Time          `json:"createdAt" gorm:"type:timestamptz;not null;index:idx_jobs_created_at"`
	StartedAt    *time.Time         `json:"startedAt" gorm:"type:timestamptz"`
	CompletedAt  *time.Time         `json:"completedAt" gorm:"type:timestamptz"`
	Progress     int                `json:"progress" gorm:"type:integer;not null;default:0"`
	OwnerID      string             `json:"ownerId" gorm:"type:varchar(128);not null;index:idx_jobs_owner_id"`
}

func (Job) TableName() string {
	return "generation_jobs"
}

// NewJob returns a Pending record stamped with now.
func NewJob(id, prompt string, jobType constant.JobType, ownerID string, now time.Time) *Job {
	if ownerID == "" {
		ownerID = constant.DefaultOwnerID
	}
	return &Job{
		ID:        id,
		Prompt:    prompt,
		JobType:   jobType,
		Status:    constant.JobStatusPending,
		CreatedAt: now,
		OwnerID:   ownerID,
	}
}

// Finished reports whether the record is frozen.
func (j *Job) Finished() bool {
	return j.CompletedAt != nil
}

func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.LogoURL = cloneString(j.LogoURL)
	c.VideoURL = cloneString(j.VideoURL)
	c.ErrorMessage = cloneString(j.ErrorMessage)
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	return &c
}

// JobUpdate is a partial status update. Nil or empty optional fields leave
// the stored value untouched.
type JobUpdate struct {
	Status       constant.JobStatus
	Progress     *int
	LogoURL      string
	VideoURL     string
	ErrorMessage string
}

// Apply mutates j according to u. It returns false, leaving j unchanged, when
// j already carries a completion stamp.
func (j *Job) Apply(u JobUpdate, now time.Time) bool {
	if j.Finished() {
		return false
	}

	j.Status = u.Status
	if u.Progress != nil {
		j.Progress = *u.Progress
	}
	if u.LogoURL != "" {
		j.LogoURL = &u.LogoURL
	}
	if u.VideoURL != "" {
		j.VideoURL = &u.VideoURL
	}
	if u.ErrorMessage != "" {
		j.ErrorMessage = &u.ErrorMessage
	}

	switch {
	case u.Status == constant.JobStatusProcessing && j.StartedAt == nil:
		t := now
		j.StartedAt = &t
	case u.Status.IsTerminal():
		t := now
		j.CompletedAt = &t
		if u.Progress == nil {
			j.Progress = constant.ProgressDone
		}
	}
	return true
}

func Progress(p int) *int {
	return &p
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
