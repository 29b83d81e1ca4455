package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/JakeFAU/hotel-directory-crawler/internal/crawler"
	"github.com/JakeFAU/hotel-directory-crawler/internal/frontier"
)

const (
	defaultFailureLimit = 100
	maxFailureLimit     = 1000
)

type statsDTO struct {
	RunID    string         `json:"run_id"`
	Frontier frontier.Stats `json:"frontier"`
	Failures int            `json:"failures"`
	Finished bool           `json:"finished"`
}

type failuresDTO struct {
	Total    int               `json:"total"`
	Failures []crawler.Failure `json:"failures"`
}

// getStats handles GET /stats.
func (s *Server) getStats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		writeError(w, http.StatusServiceUnavailable, "crawl not running")
		return
	}
	dto := statsDTO{
		RunID:    s.runID,
		Frontier: s.stats.Stats(),
		Finished: s.finished.Load(),
	}
	if s.failures != nil {
		dto.Failures = s.failures.Count()
	}
	writeJSON(w, http.StatusOK, dto)
}

// listFailures handles GET /failures?limit=&offset=, oldest first.
func (s *Server) listFailures(w http.ResponseWriter, r *http.Request) {
	if s.failures == nil {
		writeError(w, http.StatusServiceUnavailable, "failure log unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultFailureLimit, maxFailureLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	all := s.failures.Snapshot()
	page := []crawler.Failure{}
	if offset < len(all) {
		end := min(offset+limit, len(all))
		page = all[offset:end]
	}
	writeJSON(w, http.StatusOK, failuresDTO{Total: len(all), Failures: page})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
