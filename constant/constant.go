package constant

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCompleted  JobStatus = "completed"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

type JobType string

const (
	JobTypeLogo         JobType = "logo"
	JobTypeLogoAndVideo JobType = "both"
)

func JobTypeFor(generateVideo bool) JobType {
	if generateVideo {
		return JobTypeLogoAndVideo
	}
	return JobTypeLogo
}

type EventType string

const (
	EventJobStarted   EventType = "job_started"
	EventJobCancelled EventType = "job_cancelled"
	EventJobProgress  EventType = "job_progress"
	EventJobCompleted EventType = "job_completed"
	EventJobFailed    EventType = "job_failed"
)

type StorageDriver string

const (
	StorageDriverFile     StorageDriver = "file"
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

const (
	DefaultOwnerID     = "default"
	CancelledMessage   = "cancelled"
	InterruptedMessage = "interrupted"
	DefaultListLimit   = 50
	MaxListLimit       = 500
)

// Fixed pipeline milestones.
const (
	ProgressStarted    = 10
	ProgressLogoStage  = 30
	ProgressLogoDone   = 60
	ProgressVideoStage = 70
	ProgressVideoDone  = 90
	ProgressDone       = 100
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
