package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/copyleftdev/annealer/internal/config"
	"github.com/copyleftdev/annealer/internal/logging"
	"github.com/copyleftdev/annealer/internal/optimization"
	"github.com/copyleftdev/annealer/internal/optimization/ensemble"
	"github.com/copyleftdev/annealer/internal/optimization/problem"
)

// Job statuses
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// JSON-RPC 2.0 error codes
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeNotFound       = -32001
)

var (
	errNotFound    = errors.New("optimization not found")
	errTooManyJobs = errors.New("too many active optimizations")
	errTerminal    = errors.New("optimization already finished")
)

// OptimizationState represents the state of an optimization job.
// Fields are guarded by Server.optimizationsMu.
type OptimizationState struct {
	ID           string
	Status       string
	Algorithm    string
	Problem      string
	Islands      int
	Seed         int64
	StartTime    time.Time
	EndTime      *time.Time
	Progress     float64
	SeedFitness  float64
	BestSolution *optimization.Solution
	Mean         float64
	StdDev       float64
	Evaluations  int64
	Error        string
	CancelFunc   context.CancelFunc
	LastUpdated  time.Time
}

func (s *OptimizationState) terminal() bool {
	switch s.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// StatusResponse is the public view of an OptimizationState.
type StatusResponse struct {
	ID           string                 `json:"optimization_id"`
	Status       string                 `json:"status"`
	Algorithm    string                 `json:"algorithm"`
	Problem      string                 `json:"problem"`
	Islands      int                    `json:"islands"`
	Seed         int64                  `json:"seed"`
	Progress     float64                `json:"progress"`
	StartTime    string                 `json:"start_time"`
	LastUpdate   string                 `json:"last_update"`
	EndTime      string                 `json:"end_time,omitempty"`
	SeedFitness  *float64               `json:"seed_fitness,omitempty"`
	BestSolution *optimization.Solution `json:"best_solution,omitempty"`
	Mean         *float64               `json:"mean_fitness,omitempty"`
	StdDev       *float64               `json:"stddev_fitness,omitempty"`
	Evaluations  int64                  `json:"evaluations"`
	Error        string                 `json:"error,omitempty"`
}

func (s *OptimizationState) response() StatusResponse {
	resp := StatusResponse{
		ID:           s.ID,
		Status:       s.Status,
		Algorithm:    s.Algorithm,
		Problem:      s.Problem,
		Islands:      s.Islands,
		Seed:         s.Seed,
		Progress:     s.Progress,
		StartTime:    s.StartTime.Format(time.RFC3339),
		LastUpdate:   s.LastUpdated.Format(time.RFC3339),
		BestSolution: s.BestSolution,
		Evaluations:  s.Evaluations,
		Error:        s.Error,
	}
	if s.EndTime != nil {
		resp.EndTime = s.EndTime.Format(time.RFC3339)
	}
	if s.Status != StatusPending {
		seedFitness := s.SeedFitness
		resp.SeedFitness = &seedFitness
	}
	if s.Status == StatusCompleted {
		mean, std := s.Mean, s.StdDev
		resp.Mean, resp.StdDev = &mean, &std
	}
	return resp
}

// Server implements the HTTP and JSON-RPC server for the optimization service.
// It manages optimization jobs and provides endpoints to start, monitor, and cancel them.
type Server struct {
	cfg     *config.Config
	logger  *logging.Logger
	zap     *zap.Logger
	metrics *metrics

	// Optimization state management
	optimizations   map[string]*OptimizationState
	optimizationsMu sync.RWMutex // Protects the optimizations map
	seq             atomic.Uint64
	wg              sync.WaitGroup
}

// NewServer creates a new server instance. Metrics are registered with reg;
// a nil reg leaves them unregistered.
func NewServer(cfg *config.Config, logger *logging.Logger, reg prometheus.Registerer) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		zap:           logging.NewZapLogger(logger),
		metrics:       newMetrics(reg),
		optimizations: make(map[string]*OptimizationState),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/problems", s.handleProblems)
		r.Post("/optimize", s.handleOptimize)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/optimization/{id}", s.handleCancel)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      interface{}       `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params,omitempty"`
}

type idParams struct {
	OptimizationID string `json:"optimization_id"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, codeParseError, "Parse error", nil)
		return
	}

	if request.JSONRPC != "2.0" {
		s.respondWithError(w, codeInvalidRequest, "Invalid Request", request.ID)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "optimization.start":
		var req StartRequest
		if err = decodeParams(request.Params, &req); err == nil {
			result, err = s.startOptimization(&req)
		}
	case "optimization.status":
		var p idParams
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.optimizationStatus(p.OptimizationID)
		}
	case "optimization.cancel":
		var p idParams
		if err = decodeParams(request.Params, &p); err == nil {
			err = s.cancelOptimization(p.OptimizationID)
			result = map[string]string{"status": StatusCancelled}
		}
	case "problems.list":
		result = problem.Names()
	default:
		s.respondWithError(w, codeMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		code, message := rpcError(err)
		s.respondWithError(w, code, message, request.ID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// decodeParams decodes the first positional parameter into v.
func decodeParams(params []json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return invalidParams("missing required parameters")
	}
	if err := json.Unmarshal(params[0], v); err != nil {
		return invalidParams("invalid parameter format: %v", err)
	}
	return nil
}

func rpcError(err error) (int, string) {
	switch {
	case optimization.IsInputError(err):
		return codeInvalidParams, err.Error()
	case errors.Is(err, errNotFound):
		return codeNotFound, err.Error()
	case errors.Is(err, errTerminal), errors.Is(err, errTooManyJobs):
		return codeServerError, err.Error()
	default:
		return codeServerError, "Server error"
	}
}

func httpStatus(err error) int {
	switch {
	case optimization.IsInputError(err):
		return http.StatusBadRequest
	case errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, errTerminal):
		return http.StatusConflict
	case errors.Is(err, errTooManyJobs):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// startOptimization validates req and starts the job in a goroutine.
func (s *Server) startOptimization(req *StartRequest) (map[string]interface{}, error) {
	j, err := req.build(s.cfg, s.zap)
	if err != nil {
		return nil, err
	}

	id := fmt.Sprintf("opt_%d_%d", time.Now().UnixNano(), s.seq.Add(1))
	ctx, cancel := context.WithCancel(context.Background())

	now := time.Now()
	state := &OptimizationState{
		ID:          id,
		Status:      StatusPending,
		Algorithm:   j.algorithm.Name(),
		Problem:     req.Problem,
		Islands:     j.islands,
		Seed:        j.seed,
		StartTime:   now,
		CancelFunc:  cancel,
		LastUpdated: now,
	}

	s.optimizationsMu.Lock()
	s.pruneLocked(now)
	if s.activeJobsLocked() >= s.cfg.Optimization.MaxJobs {
		s.optimizationsMu.Unlock()
		cancel()
		return nil, errTooManyJobs
	}
	s.optimizations[id] = state
	s.optimizationsMu.Unlock()

	s.metrics.jobsStarted.WithLabelValues(state.Algorithm).Inc()
	s.metrics.activeJobs.Inc()

	s.wg.Add(1)
	go s.runOptimization(ctx, state, j)

	return map[string]interface{}{
		"optimization_id": id,
		"status":          StatusPending,
	}, nil
}

func (s *Server) activeJobsLocked() int {
	n := 0
	for _, st := range s.optimizations {
		if !st.terminal() {
			n++
		}
	}
	return n
}

// pruneLocked forgets finished jobs that ended more than JobTTL before now.
func (s *Server) pruneLocked(now time.Time) {
	ttl := s.cfg.Optimization.JobTTL
	for id, st := range s.optimizations {
		if st.terminal() && st.EndTime != nil && now.Sub(*st.EndTime) > ttl {
			delete(s.optimizations, id)
		}
	}
}

// optimizationStatus returns a snapshot of the job state.
func (s *Server) optimizationStatus(id string) (*StatusResponse, error) {
	if id == "" {
		return nil, invalidParams("optimization_id is required")
	}

	s.optimizationsMu.RLock()
	defer s.optimizationsMu.RUnlock()

	state, exists := s.optimizations[id]
	if !exists {
		return nil, errNotFound
	}
	resp := state.response()
	return &resp, nil
}

// cancelOptimization cancels a pending or running job. Islands already in
// progress run to completion; islands not yet started are skipped.
func (s *Server) cancelOptimization(id string) error {
	if id == "" {
		return invalidParams("optimization_id is required")
	}

	s.optimizationsMu.Lock()
	defer s.optimizationsMu.Unlock()

	state, exists := s.optimizations[id]
	if !exists {
		return errNotFound
	}
	if state.terminal() {
		return fmt.Errorf("%w: status %s", errTerminal, state.Status)
	}

	if state.CancelFunc != nil {
		state.CancelFunc()
	}
	s.finishLocked(state, StatusCancelled)

	s.logger.Info("Optimization cancelled", map[string]interface{}{
		"optimization_id": id,
	})
	return nil
}

// finishLocked moves state into a terminal status and records metrics.
func (s *Server) finishLocked(state *OptimizationState, status string) {
	now := time.Now()
	state.Status = status
	state.EndTime = &now
	state.LastUpdated = now

	s.metrics.activeJobs.Dec()
	s.metrics.jobsFinished.WithLabelValues(state.Algorithm, status).Inc()
	s.metrics.duration.WithLabelValues(state.Algorithm).Observe(now.Sub(state.StartTime).Seconds())
}

// runOptimization executes the optimization process in a goroutine
func (s *Server) runOptimization(ctx context.Context, state *OptimizationState, j *job) {
	defer s.wg.Done()
	jobLogger := s.logger.WithFields(map[string]interface{}{
		"optimization_id": state.ID,
		"algorithm":       state.Algorithm,
		"problem":         state.Problem,
	})

	pop, err := j.seedPopulation()

	s.optimizationsMu.Lock()
	if state.terminal() {
		s.optimizationsMu.Unlock()
		return
	}
	state.Status = StatusRunning
	state.LastUpdated = time.Now()
	if err == nil {
		state.SeedFitness = pop.At(0).Fitness()
	}
	s.optimizationsMu.Unlock()

	var res *ensemble.Result
	if err == nil {
		jobLogger.Debug("Optimization started", map[string]interface{}{
			"islands":      j.islands,
			"seed":         j.seed,
			"seed_fitness": pop.At(0).Fitness(),
		})

		var done atomic.Int32
		res, err = ensemble.Run(ctx, j.algorithm, pop, ensemble.Options{
			Islands:       j.islands,
			Seed:          j.seed,
			MaxGoroutines: s.cfg.Optimization.WorkerCount,
			Logger:        s.zap.With(zap.String("optimization_id", state.ID)),
			OnIsland: func(ensemble.Island) {
				finished := done.Add(1)
				s.optimizationsMu.Lock()
				state.Progress = float64(finished) / float64(j.islands)
				state.Evaluations = j.problem.Evaluations()
				state.LastUpdated = time.Now()
				s.optimizationsMu.Unlock()
			},
		})
	}

	evaluations := j.problem.Evaluations()
	s.metrics.evaluations.WithLabelValues(state.Algorithm).Add(float64(evaluations))

	s.optimizationsMu.Lock()
	defer s.optimizationsMu.Unlock()

	state.Evaluations = evaluations
	if state.terminal() {
		// Cancelled while running; keep the cancelled status.
		return
	}

	if err != nil {
		jobLogger.Error("Optimization failed", map[string]interface{}{
			"error": err.Error(),
		})
		state.Error = err.Error()
		s.finishLocked(state, StatusFailed)
		return
	}

	state.BestSolution = res.Best.At(0).Solution()
	state.Mean = res.Mean
	state.StdDev = res.StdDev
	state.Progress = 1
	s.finishLocked(state, StatusCompleted)

	jobLogger.Info("Optimization completed", map[string]interface{}{
		"best_fitness": state.BestSolution.Value,
		"seed_fitness": state.SeedFitness,
		"evaluations":  evaluations,
	})
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("JSON-RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}

// Close cancels all running optimizations and waits for their goroutines.
func (s *Server) Close() error {
	s.optimizationsMu.Lock()
	for _, opt := range s.optimizations {
		if opt.CancelFunc != nil {
			opt.CancelFunc()
		}
	}
	s.optimizationsMu.Unlock()

	s.wg.Wait()
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(err), map[string]interface{}{
		"error": err.Error(),
	})
}

// handleProblems handles GET /problems, listing the available benchmarks
func (s *Server) handleProblems(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Name         string  `json:"name"`
		Lower        float64 `json:"lower"`
		Upper        float64 `json:"upper"`
		MinDimension int     `json:"min_dimension"`
	}

	names := problem.Names()
	out := make([]entry, 0, len(names))
	for _, name := range names {
		b, _ := problem.Get(name)
		out = append(out, entry{Name: b.Name, Lower: b.Lower, Upper: b.Upper, MinDimension: b.MinDimension})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleOptimize handles POST /optimize for starting a new optimization
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, invalidParams("invalid request body: %v", err))
		return
	}

	result, err := s.startOptimization(&req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// handleStatus handles GET /status/{id} for checking optimization status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.optimizationStatus(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCancel handles DELETE /optimization/{id} for canceling an optimization
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.cancelOptimization(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "cancellation requested",
	})
}
