package http

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// JobInfo describes a scheduled maintenance job.
type JobInfo struct {
	Name    string `json:"name"`
	NextRun string `json:"next_run,omitempty"`
}

// JobsController lists maintenance jobs and runs them on demand.
type JobsController struct {
	runner JobRunner
	names  []string
	logger zerolog.Logger
}

// NewJobsController creates a JobsController for the named jobs.
func NewJobsController(runner JobRunner, names []string, logger zerolog.Logger) *JobsController {
	return &JobsController{runner: runner, names: names, logger: logger}
}

// ListJobs handles GET /api/jobs
func (jc *JobsController) ListJobs(c *gin.Context) {
	jobs := make([]JobInfo, 0, len(jc.names))
	for _, name := range jc.names {
		info := JobInfo{Name: name}
		if next := jc.runner.NextRun(name); next != nil {
			info.NextRun = next.UTC().Format(time.RFC3339)
		}
		jobs = append(jobs, info)
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// RunJob handles POST /api/jobs/:name/run and enqueues the job immediately.
func (jc *JobsController) RunJob(c *gin.Context) {
	name := c.Param("name")
	if !slices.Contains(jc.names, name) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown job: " + name, Code: "not_found"})
		return
	}

	if err := jc.runner.RunNow(name); err != nil {
		respondInternalError(c, jc.logger, err, "run job "+name)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "job enqueued", "job": name})
}
