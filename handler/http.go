package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"adgen-jobs/constant"
	"adgen-jobs/dto"
	"adgen-jobs/notify"
	"adgen-jobs/service"
)

const streamBuffer = 64

// JobHandler serves the job API and the push channels. base bounds the
// lifetime of push connections.
type JobHandler struct {
	base     context.Context
	runner   service.JobRunner
	hub      *notify.Hub
	storage  constant.StorageDriver
	upgrader websocket.Upgrader
}

func NewJobHandler(base context.Context, runner service.JobRunner, hub *notify.Hub, storage constant.StorageDriver) *JobHandler {
	return &JobHandler{
		base:    base,
		runner:  runner,
		hub:     hub,
		storage: storage,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *JobHandler) Register(r gin.IRouter) {
	api := r.Group("/api")
	api.GET("/health", h.Health)
	api.GET("/events", h.Events)

	jobs := api.Group("/jobs")
	jobs.POST("", h.CreateJob)
	jobs.GET("", h.ListJobs)
	jobs.GET("/dashboard", h.Dashboard)
	jobs.GET("/:id", h.GetJob)
	jobs.DELETE("/:id", h.CancelJob)
	jobs.DELETE("/:id/record", h.DeleteJob)

	r.GET("/ws", h.Websocket)
}

func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		fail(c, http.StatusBadRequest, "prompt is required")
		return
	}

	jobId, err := h.runner.StartJob(c.Request.Context(), req.Prompt, req.GenerateVideo, req.OwnerId)
	switch {
	case errors.Is(err, service.ErrRunnerClosed):
		fail(c, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to start job")
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusAccepted, dto.CreateJobResponse{
		Success:  true,
		JobId:    jobId,
		Accepted: true,
		Prompt:   req.Prompt,
	})
}

func (h *JobHandler) GetJob(c *gin.Context) {
	job, ok := h.runner.GetJob(c.Request.Context(), c.Param("id"))
	if !ok {
		fail(c, http.StatusNotFound, "job not found")
		return
	}
	c.JSON(http.StatusOK, dto.JobResponse{Success: true, Job: job})
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	jobs := h.runner.ListJobs(c.Request.Context(), c.Query("owner"), limit)
	c.JSON(http.StatusOK, dto.JobsListResponse{Success: true, Jobs: jobs})
}

func (h *JobHandler) Dashboard(c *gin.Context) {
	c.JSON(http.StatusOK, h.runner.Dashboard(c.Request.Context(), c.Query("owner")))
}

func (h *JobHandler) CancelJob(c *gin.Context) {
	if !h.runner.Cancel(c.Request.Context(), c.Param("id")) {
		fail(c, http.StatusNotFound, "job not found or not active")
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Success: true, Message: "job cancelled"})
}

func (h *JobHandler) DeleteJob(c *gin.Context) {
	if !h.runner.DeleteJob(c.Request.Context(), c.Param("id")) {
		fail(c, http.StatusNotFound, "job not found")
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Success: true, Message: "job deleted"})
}

func (h *JobHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"activeJobs": h.runner.ActiveCount(),
		"storage":    h.storage,
	})
}

// Events streams lifecycle events as server-sent events until the client
// leaves, the observer is dropped or the server stops.
func (h *JobHandler) Events(c *gin.Context) {
	ctx := c.Request.Context()
	obs := notify.NewStreamObserver(streamBuffer)
	h.hub.Register(ctx, obs)
	defer h.hub.Unregister(ctx, obs)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Header("Content-Type", "text/event-stream")
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()
	c.Stream(func(io.Writer) bool {
		select {
		case event := <-obs.Events():
			c.SSEvent(string(event.Type), event)
			return true
		case <-obs.Done():
			return false
		case <-ctx.Done():
			return false
		case <-h.base.Done():
			return false
		}
	})
}

func (h *JobHandler) Websocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	notify.NewWebsocketObserver(conn).Serve(h.base, h.hub)
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		fail(c, http.StatusBadRequest, "limit must be an integer")
		return 0, false
	}
	return limit, true
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, dto.ErrorResponse{Success: false, Error: msg})
}
