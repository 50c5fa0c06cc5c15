package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status             string `json:"status"`
	Version            string `json:"version"`
	GoVersion          string `json:"go_version"`
	Uptime             string `json:"uptime"`
	TrackedSubmissions int    `json:"tracked_submissions"`
	QueueDepth         int    `json:"queue_depth"`
	Dispatcher         string `json:"dispatcher"`
	BatchesDispatched  uint64 `json:"batches_dispatched"`
	DispatchFaults     uint64 `json:"dispatch_faults"`
	Executor           string `json:"executor"`
	Idempotency        string `json:"idempotency"`
	RollupPolicy       string `json:"rollup_policy"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	d := s.scheduler.Dispatcher()
	dispatcher := "stopped"
	if d.Running() {
		dispatcher = "running"
	}

	respondOK(w, reqID, healthResponse{
		Status:             "healthy",
		Version:            s.version,
		GoVersion:          runtime.Version(),
		Uptime:             time.Since(s.startTime).Round(time.Second).String(),
		TrackedSubmissions: s.scheduler.Aggregator().Count(),
		QueueDepth:         s.scheduler.QueueDepth(),
		Dispatcher:         dispatcher,
		BatchesDispatched:  d.Dispatched(),
		DispatchFaults:     d.Faults(),
		Executor:           s.config.Executor.Type,
		Idempotency:        s.config.Idempotency.Backend,
		RollupPolicy:       string(s.scheduler.Aggregator().Policy()),
	})
}
