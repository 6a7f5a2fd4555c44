package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/raphaelgruber/mindbase/internal/service"
)

// reindexRequest is the body of POST /admin/reindex.
type reindexRequest struct {
	// All reindexes every owner instead of the caller's items.
	All      bool `json:"all"`
	Reenrich bool `json:"reenrich"`
}

// startReindex runs a reindex. By default it returns 202 with a job to poll;
// ?async=false blocks and returns the counts.
func (s *Server) startReindex(c *gin.Context) {
	var req reindexRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, fmt.Errorf("invalid request body: %w", err))
		return
	}
	async := true
	if v := c.Query("async"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, fmt.Errorf("invalid async %q", v))
			return
		}
		async = b
	}

	owner := ownerOf(c)
	opts := service.ReindexOptions{Owner: owner, Reenrich: req.Reenrich}
	if req.All {
		if !s.isAdmin(owner) {
			abortWithError(c, http.StatusForbidden, "forbidden", errors.New("reindexing every owner requires admin access"))
			return
		}
		opts.Owner = ""
	}

	if !async {
		res, err := s.deps.Reindex.Reindex(c.Request.Context(), opts, nil)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
		return
	}

	job, err := s.deps.Jobs.StartReindex(c.Request.Context(), owner, opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job.Snapshot())
}

func (s *Server) listJobs(c *gin.Context) {
	owner := ownerOf(c)
	all := s.deps.Jobs.ListJobs()
	if s.isAdmin(owner) {
		c.JSON(http.StatusOK, gin.H{"jobs": all})
		return
	}
	jobs := make([]service.JobState, 0, len(all))
	for _, j := range all {
		if j.RequestedBy == owner {
			jobs = append(jobs, j)
		}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) getJob(c *gin.Context) {
	job := s.deps.Jobs.GetJob(c.Param("id"))
	if job == nil {
		respondError(c, fmt.Errorf("job %s: %w", c.Param("id"), service.ErrNotFound))
		return
	}
	state := job.Snapshot()
	if state.RequestedBy != ownerOf(c) && !s.isAdmin(ownerOf(c)) {
		respondError(c, fmt.Errorf("job %s: %w", c.Param("id"), service.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, state)
}
