package dto

import (
	"adgen-jobs/constant"
	"adgen-jobs/entities"
)

type CreateJobRequest struct {
	Prompt        string `json:"prompt"`
	GenerateVideo bool   `json:"generateVideo"`
	OwnerId       string `json:"ownerId"`
}

type CreateJobResponse struct {
	Success  bool   `json:"success"`
	JobId    string `json:"jobId"`
	Accepted bool   `json:"accepted"`
	Prompt   string `json:"prompt"`
}

type JobResponse struct {
	Success bool          `json:"success"`
	Job     *entities.Job `json:"job"`
}

type JobsListResponse struct {
	Success bool            `json:"success"`
	Jobs    []*entities.Job `json:"jobs"`
}

type DashboardSummary struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Failed     int `json:"failed"`
}

type DashboardResponse struct {
	Summary DashboardSummary `json:"summary"`
	Jobs    []*entities.Job  `json:"jobs"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// JobRequestMessage is the AMQP body accepted on the generation queue.
type JobRequestMessage struct {
	Prompt        string `json:"prompt"`
	GenerateVideo bool   `json:"generateVideo"`
	OwnerId       string `json:"ownerId"`
}

// Event is a lifecycle notification pushed to observers.
type Event struct {
	Type          constant.EventType `json:"type"`
	JobId         string             `json:"jobId"`
	Prompt        string             `json:"prompt,omitempty"`
	GenerateVideo *bool              `json:"generateVideo,omitempty"`
	Status        constant.JobStatus `json:"status,omitempty"`
	Progress      *int               `json:"progress,omitempty"`
	LogoUrl       string             `json:"logoUrl,omitempty"`
	VideoUrl      string             `json:"videoUrl,omitempty"`
	ErrorMessage  string             `json:"errorMessage,omitempty"`
}

func JobStartedEvent(jobId, prompt string, generateVideo bool) Event {
	return Event{Type: constant.EventJobStarted, JobId: jobId, Prompt: prompt, GenerateVideo: &generateVideo}
}

func JobCancelledEvent(jobId string) Event {
	return Event{Type: constant.EventJobCancelled, JobId: jobId}
}

func JobProgressEvent(jobId string, status constant.JobStatus, progress int) Event {
	return Event{Type: constant.EventJobProgress, JobId: jobId, Status: status, Progress: &progress}
}

func JobCompletedEvent(jobId, logoUrl, videoUrl string) Event {
	return Event{Type: constant.EventJobCompleted, JobId: jobId, Status: constant.JobStatusCompleted, LogoUrl: logoUrl, VideoUrl: videoUrl}
}

func JobFailedEvent(jobId, errorMessage string) Event {
	return Event{Type: constant.EventJobFailed, JobId: jobId, Status: constant.JobStatusFailed, ErrorMessage: errorMessage}
}
