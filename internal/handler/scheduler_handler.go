package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-iqa/iqa-notify-api/internal/dto"
	appErrors "github.com/campus-iqa/iqa-notify-api/pkg/errors"
	"github.com/campus-iqa/iqa-notify-api/pkg/response"
	"github.com/campus-iqa/iqa-notify-api/pkg/scheduler"
)

// SchedulerHandler exposes the admin control surface over the background job
// registry: inspection, stop/start and manual triggers.
type SchedulerHandler struct {
	sched *scheduler.Scheduler

	// register re-creates the default job set with their configured
	// intervals. Injected by main so the handler stays ignorant of wiring.
	register func() error
}

// NewSchedulerHandler constructs a scheduler handler.
func NewSchedulerHandler(sched *scheduler.Scheduler, register func() error) *SchedulerHandler {
	return &SchedulerHandler{sched: sched, register: register}
}

// Status lists every registered job with its interval and last outcome.
func (h *SchedulerHandler) Status(c *gin.Context) {
	status := h.sched.GetStatus()

	resp := dto.SchedulerStatusResponse{Total: status.Total}
	for _, j := range status.Jobs {
		resp.Jobs = append(resp.Jobs, dto.JobStatusResponse{
			Name:      j.Name,
			Interval:  j.Interval,
			Running:   j.Running,
			LastRun:   j.LastRun,
			LastError: j.LastError,
		})
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Start re-registers the default jobs. Already-running jobs are replaced,
// which resets their tickers.
func (h *SchedulerHandler) Start(c *gin.Context) {
	if h.register == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "job registration not configured"))
		return
	}
	if err := h.register(); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "background jobs started"}, nil)
}

// Stop halts every running job. Jobs stay registered and can still be
// triggered manually or restarted.
func (h *SchedulerHandler) Stop(c *gin.Context) {
	stopped := h.sched.StopAll()
	response.JSON(c, http.StatusOK, gin.H{
		"message": fmt.Sprintf("stopped %d job(s)", stopped),
	}, nil)
}

// Trigger runs a named job immediately, outside its schedule.
func (h *SchedulerHandler) Trigger(c *gin.Context) {
	name := c.Param("name")
	if err := h.sched.TriggerNow(c.Request.Context(), name); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.TriggerJobResponse{
		Job:       name,
		Triggered: true,
		Message:   fmt.Sprintf("job %q executed", name),
	}, nil)
}
