package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"magicbag/internal/common"
	"magicbag/internal/jobs/background"
)

// PollScheduler is the part of the job scheduler exposed over HTTP.
type PollScheduler interface {
	RunNow() error
	Status() background.JobStatus
}

type PollHandlers struct {
	scheduler PollScheduler
	logger    *slog.Logger
}

func NewPollHandlers(scheduler PollScheduler, logger *slog.Logger) *PollHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &PollHandlers{scheduler: scheduler, logger: logger}
}

// TriggerPoll queues an immediate poll and returns without waiting for it.
func (h *PollHandlers) TriggerPoll(c echo.Context) error {
	if err := h.scheduler.RunNow(); err != nil {
		h.logger.Error("failed to trigger poll", slog.Any("error", err))
		return common.SendServerError(c, "Failed to trigger poll")
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *PollHandlers) PollStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.scheduler.Status())
}
