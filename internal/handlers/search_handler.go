package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/shaibs3/ResearchGraph/internal/search"
	"github.com/shaibs3/ResearchGraph/internal/store"
	"go.uber.org/zap"
)

// SearchHandler ranks entities for a text query.
type SearchHandler struct {
	searcher *search.Searcher
	entities store.EntityStore
	logger   *zap.Logger
}

func NewSearchHandler(searcher *search.Searcher, entities store.EntityStore) *SearchHandler {
	return &SearchHandler{searcher: searcher, entities: entities}
}

func (h *SearchHandler) RegisterRoutes(router *mux.Router, logger *zap.Logger) {
	h.logger = logger.Named("search_handler")
	router.HandleFunc("/v1/search", h.handleSearch).Methods(http.MethodGet)
	router.HandleFunc("/v1/entities/{id:[0-9]+}", h.handleEntity).Methods(http.MethodGet)
}

func (h *SearchHandler) handleSearch(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	k, err := queryInt(req, "k", 10)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var keywords []string
	for _, kw := range strings.Split(q.Get("keywords"), ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	ids, err := h.searcher.Rank(req.Context(), search.Query{
		Text:       q.Get("q"),
		K:          k,
		EntityType: model.EntityType(q.Get("type")),
		Keywords:   keywords,
		TagName:    q.Get("tag"),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	results := []model.EntitySummary{}
	if len(ids) > 0 {
		summaries, err := h.entities.EntitiesWithSummaries(req.Context(), ids)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		byID := make(map[int64]model.EntitySummary, len(summaries))
		for _, s := range summaries {
			byID[s.ID] = s
		}
		for _, id := range ids {
			if s, ok := byID[id]; ok {
				results = append(results, s)
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ids": ids, "results": results})
}

func (h *SearchHandler) handleEntity(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	entity, err := h.entities.GetEntity(req.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	tags, err := h.entities.ListTags(req.Context(), id, "")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	links, err := h.entities.ListLinks(req.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entity": entity, "tags": tags, "links": links})
}
