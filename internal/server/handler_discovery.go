package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "ingestd API",
		Version:     "v1",
		Description: "Priority batch scheduler with idempotent intake",
		Endpoints: []endpointInfo{
			{"/api/v1/submissions", []string{"GET", "POST"}, "Submit item IDs with a priority, or list submissions (?status=, ?limit=, ?offset=)"},
			{"/api/v1/submissions/{id}", []string{"GET"}, "Submission status with per-batch detail"},
			{"/api/v1/submissions/{id}/summary", []string{"GET"}, "Item and batch progress counts"},
			{"/api/v1/sse/submissions/{id}", []string{"GET"}, "Server-sent status events until the submission settles"},
			{"/api/v1/health", []string{"GET"}, "Server health, queue depth and dispatcher state"},
			{"/ingest", []string{"POST"}, "Alias of POST /api/v1/submissions"},
			{"/status/{id}", []string{"GET"}, "Alias of GET /api/v1/submissions/{id}"},
			{"/health", []string{"GET"}, "Alias of GET /api/v1/health"},
		},
	})
}
