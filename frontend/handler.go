// Package frontend is the HTTP surface requesters talk to. It turns a
// submitted prompt into a work request, waits for the broker to deliver the
// image and writes it back.
package frontend

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BranchIntl/gobroker/core"
	"github.com/BranchIntl/gobroker/errors"
	"github.com/BranchIntl/gobroker/prompt"
	"github.com/BranchIntl/gobroker/work"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Response headers set on a delivered result
const (
	HeaderRequestID   = "X-Request-ID"
	HeaderHostname    = "X-Worker-Hostname"
	HeaderSkippedArgs = "X-Skipped-Args"
	HeaderParsedArgs  = "X-Parsed-Args"
)

// maxBodyBytes bounds a submit body
const maxBodyBytes = 64 << 10

// Submitter is the part of the broker the front-end uses
type Submitter interface {
	Enqueue(ctx context.Context, req *work.WorkRequest) error
	Snapshot() core.Snapshot
	Health() core.HealthStatus
}

// Options for the handler
type Options struct {
	// RequestTimeout bounds how long a submit waits for its result
	RequestTimeout time.Duration
	// Metrics is mounted on /metrics when set
	Metrics http.Handler
	// Registerer receives the HTTP request counter when set
	Registerer prometheus.Registerer
	Logger     *slog.Logger
	Tracer     trace.Tracer
}

// Handler serves the front-end routes
type Handler struct {
	submitter Submitter
	parser    *prompt.Parser
	validate  *validator.Validate
	timeout   time.Duration
	metrics   http.Handler
	requests  *prometheus.CounterVec
	logger    *slog.Logger
	tracer    trace.Tracer
	mux       *http.ServeMux
}

// NewHandler creates the front-end handler
func NewHandler(submitter Submitter, options Options) *Handler {
	if options.RequestTimeout <= 0 {
		options.RequestTimeout = 5 * time.Minute
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := options.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/BranchIntl/gobroker/frontend")
	}

	h := &Handler{
		submitter: submitter,
		parser:    prompt.NewParser(),
		validate:  validator.New(),
		timeout:   options.RequestTimeout,
		metrics:   options.Metrics,
		logger:    logger.With("component", "frontend"),
		tracer:    tracer,
	}

	if options.Registerer != nil {
		h.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gobroker_http_requests_total",
			Help: "Total number of front-end HTTP requests.",
		}, []string{"path", "method", "code"})
		if err := options.Registerer.Register(h.requests); err != nil {
			h.logger.Warn("HTTP request counter not registered", "error", err)
			h.requests = nil
		}
	}

	h.mux = http.NewServeMux()
	h.RegisterRoutes(h.mux)
	return h
}

// instrumentedResponseWriter captures the status code
type instrumentedResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *instrumentedResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// RegisterRoutes adds the front-end routes to mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST /requests", h.instrument("/requests", h.handleSubmit))
	mux.Handle("GET /help", h.instrument("/help", h.handleHelp))
	mux.Handle("GET /stats", h.instrument("/stats", h.handleStats))
	mux.Handle("GET /healthz", h.instrument("/healthz", h.handleHealth))
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
}

// ServeHTTP serves the front-end routes on a mux of its own
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) instrument(path string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := h.tracer.Start(r.Context(), "HTTP "+r.Method+" "+path, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		))
		defer span.End()

		iw := &instrumentedResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(iw, r.WithContext(ctx))

		if h.requests != nil {
			h.requests.WithLabelValues(path, r.Method, strconv.Itoa(iw.statusCode)).Inc()
		}
		span.SetAttributes(attribute.Int("http.status_code", iw.statusCode))
		if iw.statusCode >= 500 {
			span.SetStatus(codes.Error, "Server Error")
		}
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	span := trace.SpanFromContext(ctx)

	var body SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		span.RecordError(err)
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(body); err != nil {
		writeValidationError(w, err)
		return
	}

	if strings.Contains(body.Text, "--help") {
		h.handleHelp(w, r)
		return
	}

	req, err := h.toRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(generation{Prompt: req.Prompt, CFG: req.CFG, Steps: req.Steps}); err != nil {
		writeValidationError(w, err)
		return
	}

	requester := work.NewChanRequester()
	workReq, err := work.NewRequest(req.Payload(), requester)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := workReq.ID().String()
	span.SetAttributes(attribute.String("request.id", id))
	w.Header().Set(HeaderRequestID, id)
	if len(req.Unknown) > 0 {
		w.Header().Set(HeaderSkippedArgs, strings.Join(req.Unknown, " "))
	}

	h.logger.Info("Processing prompt", "id", id, "prompt", req.Prompt, "cfg", req.CFG, "steps", req.Steps)

	if err := h.submitter.Enqueue(ctx, workReq); err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, errors.ErrQueueFull):
			w.Header().Set("Retry-After", "30")
			writeError(w, http.StatusServiceUnavailable, "Too many requests are waiting, try again later")
		case errors.Is(err, errors.ErrShutdown):
			writeError(w, http.StatusServiceUnavailable, "Broker is shutting down")
		default:
			h.logger.Error("Failed to enqueue request", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	select {
	case outcome := <-requester.Done():
		if outcome.Err != nil {
			span.RecordError(outcome.Err)
			if errors.Is(outcome.Err, errors.ErrShutdown) {
				writeError(w, http.StatusServiceUnavailable, "Broker is shutting down")
				return
			}
			h.logger.Error("Request failed", "id", id, "error", outcome.Err)
			writeError(w, http.StatusBadGateway, "Request could not be processed")
			return
		}

		w.Header().Set("Content-Type", http.DetectContentType(outcome.Result.Data))
		w.Header().Set(HeaderHostname, outcome.Result.Hostname)
		if args, err := workReq.Payload().MarshalJSON(); err == nil {
			w.Header().Set(HeaderParsedArgs, string(args))
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(outcome.Result.Data); err != nil {
			h.logger.Debug("Failed to write result", "id", id, "error", err)
		}

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			// the client went away; the broker still tracks the request
			h.logger.Info("Client gave up waiting", "id", id)
			return
		}
		h.logger.Warn("Timed out waiting for result", "id", id, "timeout", h.timeout)
		writeError(w, http.StatusGatewayTimeout, "Timed out waiting for a worker")
	}
}

// toRequest turns the body into a parsed request. Text goes through the
// prompt parser; explicit fields override the defaults.
func (h *Handler) toRequest(body SubmitRequest) (prompt.Request, error) {
	var req prompt.Request
	if body.Text != "" {
		parsed, err := h.parser.Parse(body.Text)
		if err != nil {
			return prompt.Request{}, err
		}
		req = parsed
	} else {
		req = prompt.Request{Prompt: body.Prompt, CFG: prompt.DefaultCFG, Steps: prompt.DefaultSteps}
	}

	if body.CFG != nil {
		req.CFG = *body.CFG
	}
	if body.Steps != nil {
		req.Steps = *body.Steps
	}
	return req, nil
}

func (h *Handler) handleHelp(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(h.parser.HelpText()))
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newStatsResponse(h.submitter.Snapshot()))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := h.submitter.Health()
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, newHealthResponse(health))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeValidationError(w http.ResponseWriter, err error) {
	var details []string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			details = append(details, "Field '"+fe.Field()+"' failed on the '"+fe.Tag()+"' tag.")
		}
	} else {
		details = append(details, err.Error())
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Details: details})
}
