package httpapi

import (
	"net/http"
	"strconv"

	"github.com/crates-registry/core/search"
)

// handleSearch implements GET /api/v1/crates (§4's catalog listing).
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	result, err := search.Search(r.Context(), s.opts.Search, search.Query{
		Q:       q.Get("q"),
		Page:    page,
		PerPage: perPage,
		Sort:    search.Sort(q.Get("sort")),
	}, s.opts.MaxSearchPageOffset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"crates": result.Crates,
		"meta":   map[string]int64{"total": result.Total},
	})
}
