package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"auctionharvest/internal/repository"
	"auctionharvest/internal/scheduler"
	"auctionharvest/internal/service"
)

type ScrapeHandler struct {
	Ingest    *service.IngestService
	Scheduler *scheduler.Scheduler
	Repo      repository.Repository
	Logger    *zap.Logger
}

func (h *ScrapeHandler) Register(r *gin.Engine) {
	group := r.Group("/api/scrape")
	group.POST("", h.scrapeAll)
	group.POST("/:source", h.scrapeSource)
	group.GET("/state", h.scrapeState)

	sched := r.Group("/api/scheduler")
	sched.GET("/status", h.schedulerStatus)
	sched.POST("/run-all", h.runAll)
	sched.POST("/:source/pause", h.pause)
	sched.POST("/:source/resume", h.resume)
	sched.POST("/:source/run", h.runNow)
}

// @Summary Run a scrape for one source and wait for the result
// @Tags scrape
// @Param source path string true "source name"
// @Success 200 {object} apiResponse
// @Router /api/scrape/{source} [post]
func (h *ScrapeHandler) scrapeSource(c *gin.Context) {
	if h.Ingest == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	source := c.Param("source")
	result, err := h.Ingest.ScrapeSource(c.Request.Context(), source)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownSource):
			Error(c, http.StatusNotFound, err.Error(), nil)
		case errors.Is(err, service.ErrScrapeInProgress):
			Error(c, http.StatusConflict, err.Error(), nil)
		default:
			if h.Logger != nil {
				h.Logger.Warn("scrape failed", zap.String("source", source), zap.Error(err))
			}
			Error(c, http.StatusBadGateway, err.Error(), nil)
		}
		return
	}
	Ok(c, result, nil)
}

// @Summary Run a scrape for every source and wait for the results
// @Tags scrape
// @Success 200 {object} apiResponse
// @Router /api/scrape [post]
func (h *ScrapeHandler) scrapeAll(c *gin.Context) {
	if h.Ingest == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	results := h.Ingest.ScrapeAll(c.Request.Context())
	Ok(c, results, nil)
}

// @Summary Last scrape state per source
// @Tags scrape
// @Success 200 {object} apiResponse
// @Router /api/scrape/state [get]
func (h *ScrapeHandler) scrapeState(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	states, err := h.Repo.ListScrapeStates(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, states, nil)
}

// @Summary Scheduler job status
// @Tags scheduler
// @Success 200 {object} apiResponse
// @Router /api/scheduler/status [get]
func (h *ScrapeHandler) schedulerStatus(c *gin.Context) {
	if h.Scheduler == nil {
		Error(c, http.StatusServiceUnavailable, "scheduler disabled", nil)
		return
	}
	Ok(c, h.Scheduler.Status(), nil)
}

// @Summary Pause the scheduled job for a source
// @Tags scheduler
// @Param source path string true "source name"
// @Success 200 {object} apiResponse
// @Router /api/scheduler/{source}/pause [post]
func (h *ScrapeHandler) pause(c *gin.Context) {
	h.setPaused(c, true)
}

// @Summary Resume the scheduled job for a source
// @Tags scheduler
// @Param source path string true "source name"
// @Success 200 {object} apiResponse
// @Router /api/scheduler/{source}/resume [post]
func (h *ScrapeHandler) resume(c *gin.Context) {
	h.setPaused(c, false)
}

func (h *ScrapeHandler) setPaused(c *gin.Context, paused bool) {
	if h.Scheduler == nil {
		Error(c, http.StatusServiceUnavailable, "scheduler disabled", nil)
		return
	}
	source := c.Param("source")
	var err error
	if paused {
		err = h.Scheduler.Pause(source)
	} else {
		err = h.Scheduler.Resume(source)
	}
	if err != nil {
		Error(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"source": source, "paused": paused}, nil)
}

// @Summary Trigger a scrape through the scheduler without waiting
// @Tags scheduler
// @Param source path string true "source name"
// @Success 200 {object} apiResponse
// @Router /api/scheduler/{source}/run [post]
func (h *ScrapeHandler) runNow(c *gin.Context) {
	if h.Scheduler == nil {
		Error(c, http.StatusServiceUnavailable, "scheduler disabled", nil)
		return
	}
	source := c.Param("source")
	if err := h.Scheduler.RunNow(source); err != nil {
		Error(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	Accepted(c, gin.H{"source": source})
}

// @Summary Trigger a scrape of every source through the scheduler
// @Tags scheduler
// @Success 200 {object} apiResponse
// @Router /api/scheduler/run-all [post]
func (h *ScrapeHandler) runAll(c *gin.Context) {
	if h.Scheduler == nil {
		Error(c, http.StatusServiceUnavailable, "scheduler disabled", nil)
		return
	}
	h.Scheduler.RunAllNow()
	Accepted(c, gin.H{"sources": h.Scheduler.Sources()})
}
