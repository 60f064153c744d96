package handlers

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/shaibs3/ResearchGraph/internal/frontier"
	"go.uber.org/zap"
)

// FrontierHandler exposes the crawl queue.
type FrontierHandler struct {
	frontier *frontier.Frontier
	logger   *zap.Logger
}

func NewFrontierHandler(f *frontier.Frontier) *FrontierHandler {
	return &FrontierHandler{frontier: f}
}

func (h *FrontierHandler) RegisterRoutes(router *mux.Router, logger *zap.Logger) {
	h.logger = logger.Named("frontier_handler")
	router.HandleFunc("/v1/frontier", h.handleEnqueue).Methods(http.MethodPost)
	router.HandleFunc("/v1/frontier", h.handlePending).Methods(http.MethodGet)
	router.HandleFunc("/v1/frontier/crawled", h.handleCrawled).Methods(http.MethodGet)
}

// checkURL accepts absolute http, https and file URLs. Private addresses are
// screened at fetch time.
func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("missing host")
		}
	case "file":
		if u.Path == "" {
			return fmt.Errorf("missing path")
		}
	default:
		return fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}
	return nil
}

func (h *FrontierHandler) handleEnqueue(w http.ResponseWriter, req *http.Request) {
	var body struct {
		URLs    []string `json:"urls"`
		Comment string   `json:"comment"`
	}
	if err := decodeBody(req, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if len(body.URLs) == 0 {
		http.Error(w, "No URLs provided", http.StatusBadRequest)
		return
	}

	var valid, invalid []string
	for _, u := range body.URLs {
		if err := checkURL(u); err != nil {
			invalid = append(invalid, fmt.Sprintf("%s: %s", u, err))
			continue
		}
		valid = append(valid, u)
	}
	if len(valid) == 0 {
		http.Error(w, fmt.Sprintf("All URLs are invalid: %v", invalid), http.StatusBadRequest)
		return
	}

	inserted, err := h.frontier.EnqueueMany(req.Context(), valid, body.Comment)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	response := map[string]interface{}{
		"inserted": inserted,
		"received": len(body.URLs),
	}
	if len(invalid) > 0 {
		response["invalid_urls"] = invalid
	}
	writeJSON(w, http.StatusCreated, response)
}

func (h *FrontierHandler) handlePending(w http.ResponseWriter, req *http.Request) {
	max, err := queryInt(req, "max", 0)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	entries, err := h.frontier.DequeueBatch(req.Context(), max)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pending": entries})
}

func (h *FrontierHandler) handleCrawled(w http.ResponseWriter, req *http.Request) {
	records, err := h.frontier.Crawled(req.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"crawled": records})
}
