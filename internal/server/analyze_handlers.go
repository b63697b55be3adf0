package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"later/internal/analyze"
	"later/internal/core"
	"later/internal/label"
	"later/internal/search"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := search.Request{
		UserID: s.userID(r),
		Query:  q.Get("q"),
		Mode:   search.Mode(q.Get("mode")),
		Scope:  search.Scope(q.Get("scope")),
		Rerank: s.searchCfg.RerankEnabled,
	}
	if req.Mode == "" {
		req.Mode = search.ModeSemantic
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		req.Limit = limit
	}
	if raw := q.Get("rerank"); raw != "" {
		rerank, err := strconv.ParseBool(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "rerank must be a boolean")
			return
		}
		req.Rerank = rerank
	}

	results, err := s.searcher.Search(r.Context(), req)
	if err != nil {
		s.respondMappedError(w, err)
		return
	}
	if results == nil {
		results = []core.SearchResult{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

// AnalyzeRequest is the POST /api/analyze body. Zero values defer to the
// analyzer's defaults.
type AnalyzeRequest struct {
	Projection string  `json:"projection"`
	Clustering string  `json:"clustering"`
	K          int     `json:"k"`
	Eps        float64 `json:"eps"`
	MinSamples int     `json:"min_samples"`
	Perplexity float64 `json:"perplexity"`
	NNeighbors int     `json:"n_neighbors"`
	Seed       int64   `json:"seed"`
	Label      bool    `json:"label"`
}

// AnalyzeResponse carries the 2D layout and, when requested, cluster labels.
type AnalyzeResponse struct {
	Points []core.ClusterAssignment `json:"points"`
	Labels []core.ClusterLabel      `json:"labels,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	userID := s.userID(r)
	vectors, err := s.store.ItemVectors(r.Context(), userID)
	if err != nil {
		s.respondMappedError(w, err)
		return
	}

	points, err := analyze.Analyze(vectors, analyze.Options{
		Projection: analyze.Projection(req.Projection),
		Clustering: analyze.Clustering(req.Clustering),
		K:          req.K,
		Eps:        req.Eps,
		MinSamples: req.MinSamples,
		Perplexity: req.Perplexity,
		NNeighbors: req.NNeighbors,
		Seed:       req.Seed,
	})
	if err != nil {
		s.respondMappedError(w, err)
		return
	}

	resp := AnalyzeResponse{Points: points}
	if req.Label && s.labeler != nil {
		labels, err := s.labelClusters(r, userID, points)
		if err != nil {
			s.respondMappedError(w, err)
			return
		}
		resp.Labels = labels
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// LabelsRequest is the POST /api/labels body: explicit cluster memberships
// to name, typically taken from a previous analyze response.
type LabelsRequest struct {
	Clusters []struct {
		ClusterID int      `json:"cluster_id"`
		ItemIDs   []string `json:"item_ids"`
	} `json:"clusters"`
}

func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request) {
	if s.labeler == nil {
		s.respondError(w, http.StatusServiceUnavailable, "labelling is not configured")
		return
	}
	var req LabelsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Clusters) == 0 {
		s.respondError(w, http.StatusBadRequest, "clusters are required")
		return
	}

	var ids []string
	for _, c := range req.Clusters {
		ids = append(ids, c.ItemIDs...)
	}
	summaries, err := s.store.Summaries(r.Context(), s.userID(r), ids)
	if err != nil {
		s.respondMappedError(w, err)
		return
	}

	clusters := make([]label.Cluster, 0, len(req.Clusters))
	for _, c := range req.Clusters {
		var texts []string
		for _, id := range c.ItemIDs {
			if summary := summaries[id]; summary != "" {
				texts = append(texts, summary)
			}
		}
		clusters = append(clusters, label.Cluster{ID: c.ClusterID, Summaries: texts})
	}

	labels := s.labeler.Label(r.Context(), clusters)
	s.respondJSON(w, http.StatusOK, map[string]any{"labels": labels})
}

// labelClusters groups items by cluster, loads their summaries, and asks the
// labeler to name each group.
func (s *Server) labelClusters(r *http.Request, userID string, points []core.ClusterAssignment) ([]core.ClusterLabel, error) {
	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ItemID
	}
	summaries, err := s.store.Summaries(r.Context(), userID, ids)
	if err != nil {
		return nil, err
	}

	grouped := make(map[int][]string)
	for _, p := range points {
		if p.ClusterID == core.UnclusteredID {
			continue
		}
		if summary := summaries[p.ItemID]; summary != "" {
			grouped[p.ClusterID] = append(grouped[p.ClusterID], summary)
		}
	}

	clusters := make([]label.Cluster, 0, len(grouped))
	for id, texts := range grouped {
		clusters = append(clusters, label.Cluster{ID: id, Summaries: texts})
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].ID < clusters[j].ID })

	return s.labeler.Label(r.Context(), clusters), nil
}
