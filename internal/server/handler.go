package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"inspector-report/internal/config"
	"inspector-report/internal/logger"
	"inspector-report/internal/metrics"
	"inspector-report/internal/model"
	"inspector-report/internal/pool"
	"inspector-report/internal/report"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// Auditor receives one record per generated report. Enqueue must not
// block; a rejected record is the auditor's to recycle.
type Auditor interface {
	Enqueue(rec *model.AuditRecord) bool
}

type Handler struct {
	cfg     config.Config
	metrics *metrics.Metrics
	audit   Auditor
	limiter *rateLimiter
	cors    *corsPolicy
	now     func() time.Time
}

// NewHandler builds the HTTP layer. audit may be nil, in which case no
// audit records are produced.
func NewHandler(cfg config.Config, m *metrics.Metrics, audit Auditor) *Handler {
	return &Handler{
		cfg:     cfg,
		metrics: m,
		audit:   audit,
		limiter: newRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
		cors:    newCORSPolicy(cfg),
		now:     time.Now,
	}
}

// Routes
//
//   - GET  /api/health
//   - GET  /metrics
//   - POST /api/v1/ga4-inspector/reports, /api/v1/reports/ga4-inspector
//   - POST /api/v1/mixpanel-inspector/reports, /api/v1/reports/mixpanel-inspector
//   - OPTIONS on any path: CORS preflight, 204
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.HandleHealth)
	mux.HandleFunc("GET /metrics", h.HandleMetrics)

	ga4 := h.HandleReport(ga4Rules)
	mux.Handle("POST /api/v1/ga4-inspector/reports", ga4)
	mux.Handle("POST /api/v1/reports/ga4-inspector", ga4)

	mixpanel := h.HandleReport(mixpanelRules)
	mux.Handle("POST /api/v1/mixpanel-inspector/reports", mixpanel)
	mux.Handle("POST /api/v1/reports/mixpanel-inspector", mixpanel)

	return h.recoverer(h.cors.wrap(mux))
}

// HandleHealth answers load balancer checks.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleMetrics prints the process counters as name=value lines.
func (h *Handler) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, h.metrics.String())
}

// HandleReport
//
// Turns a report request into a PDF download.
//
//  1. Content-Length above the limit → 413
//  2. per-client fixed window → 429
//  3. body read under MaxBytesReader (gzip accepted) → 413 / 400
//  4. decode + validate + sanitise → 400 with details
//  5. audit record enqueued (never blocks the response)
//  6. render into a pooled buffer; only a complete PDF is sent
func (h *Handler) HandleReport(rules reportRules) http.HandlerFunc {
	layout := rules.layout

	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&h.metrics.HTTPRequestsTotal, 1)

		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)
		ctx := logger.WithRequestID(r.Context(), requestID)
		lg := logger.FromContext(ctx)

		// --------------------------------------------------------------------
		// 1) declared size
		// --------------------------------------------------------------------
		if r.ContentLength > h.cfg.MaxBodyBytes() {
			h.rejectTooLarge(w)
			return
		}

		// --------------------------------------------------------------------
		// 2) rate limit
		// --------------------------------------------------------------------
		ip := clientIP(r)
		if !h.limiter.Allow(ip) {
			atomic.AddInt64(&h.metrics.HTTPRequestsRejectedRateLimitedTotal, 1)
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "Too many requests. Please try again in a moment."})
			return
		}

		// --------------------------------------------------------------------
		// 3) body, into a pooled buffer
		// --------------------------------------------------------------------
		buf := pool.BodyPool.Get().(*bytes.Buffer)
		buf.Reset()
		defer pool.PutBody(buf, h.cfg.MaxBodyBytes()*2)

		if err := h.readBody(w, r, buf); err != nil {
			if errors.Is(err, errBodyTooLarge) {
				h.rejectTooLarge(w)
				return
			}
			h.rejectInvalid(w, []string{bodyErrorDetail(err)})
			return
		}

		// --------------------------------------------------------------------
		// 4) validation
		// --------------------------------------------------------------------
		payload, err := parsePayload(buf.Bytes(), rules)
		if err != nil {
			var verr *validationError
			if errors.As(err, &verr) {
				h.rejectInvalid(w, verr.details)
				return
			}
			h.rejectInvalid(w, []string{malformedJSON})
			return
		}

		ipHash := hashIP(ip)
		lg.Info().
			Str("product", layout.Product).
			Str("action", "generate-report").
			Int("event_count", len(payload.Events)).
			Str("client_ip_hash", ipHash).
			Msg("generate-report")

		// --------------------------------------------------------------------
		// 5) audit
		// --------------------------------------------------------------------
		if !h.enqueueAudit(requestID, ipHash, layout.Product, payload) {
			lg.Warn().Msg("audit queue full, record dropped")
		}

		// --------------------------------------------------------------------
		// 6) render
		// --------------------------------------------------------------------
		out := pool.PDFPool.Get().(*bytes.Buffer)
		out.Reset()
		defer pool.PutPDF(out)

		rc := report.Context{
			Events:      payload.Events,
			SessionInfo: payload.SessionInfo,
			GeneratedAt: payload.GeneratedAt,
			Source:      payload.Source,
			LogoPath:    h.cfg.LogoPath,
		}
		res, err := report.Render(out, rc, layout, report.Options{
			Location:    h.cfg.Location,
			Attribution: h.cfg.Attribution,
		})
		if err != nil {
			atomic.AddInt64(&h.metrics.ReportFailuresTotal, 1)
			lg.Error().Err(err).Str("product", layout.Product).Msg("pdf build failed")
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "PDF generation failed"})
			return
		}
		if res.LogoErr != nil {
			atomic.AddInt64(&h.metrics.ReportLogoErrorsTotal, 1)
			lg.Warn().Err(res.LogoErr).Str("logo", h.cfg.LogoPath).Msg("report rendered without logo")
		}

		atomic.AddInt64(&h.metrics.ReportsGeneratedTotal, 1)
		atomic.AddInt64(&h.metrics.ReportEventsTotal, int64(len(payload.Events)))
		atomic.AddInt64(&h.metrics.ReportPagesTotal, int64(res.Pages))

		hdr := w.Header()
		hdr.Set("Content-Type", "application/pdf")
		hdr.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-report-%s.pdf"`,
			layout.Product, h.filenameDate(payload.GeneratedAt)))
		hdr.Set("Content-Length", fmt.Sprint(out.Len()))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(out.Bytes()); err != nil {
			lg.Debug().Err(err).Msg("client went away during pdf write")
		}
	}
}

// ------------------------------------------------------------
// Body reading
// ------------------------------------------------------------

var (
	errBodyTooLarge    = errors.New("request body too large")
	errBadEncoding     = errors.New("unsupported content encoding")
	errBadCompressed   = errors.New("malformed gzip body")
	errBodyInterrupted = errors.New("request body interrupted")
)

// readBody copies the request body into buf. The limit applies to the
// bytes on the wire and, for gzip bodies, to the decompressed size too.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request, buf *bytes.Buffer) error {
	limit := h.cfg.MaxBodyBytes()
	body := http.MaxBytesReader(w, r.Body, limit)
	defer body.Close()

	var src io.Reader = body
	gzipped := false

	switch enc := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
	case "gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			if isMaxBytes(err) {
				return errBodyTooLarge
			}
			return errBadCompressed
		}
		defer gz.Close()
		src = io.LimitReader(gz, limit+1)
		gzipped = true
	default:
		return errBadEncoding
	}

	n, err := buf.ReadFrom(src)
	switch {
	case err != nil && isMaxBytes(err):
		return errBodyTooLarge
	case err != nil && gzipped:
		return errBadCompressed
	case err != nil:
		return fmt.Errorf("%w: %v", errBodyInterrupted, err)
	case n > limit:
		return errBodyTooLarge
	}
	return nil
}

func isMaxBytes(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func bodyErrorDetail(err error) string {
	switch {
	case errors.Is(err, errBadEncoding):
		return "Content-Encoding must be gzip or identity."
	case errors.Is(err, errBadCompressed):
		return "Malformed gzip payload."
	}
	return malformedJSON
}

// ------------------------------------------------------------
// Responses
// ------------------------------------------------------------

type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) rejectTooLarge(w http.ResponseWriter) {
	atomic.AddInt64(&h.metrics.HTTPRequestsRejectedBodyTooLargeTotal, 1)
	writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
		Error: fmt.Sprintf("Payload too large (max %dMB)", h.cfg.MaxBodyMB),
	})
}

func (h *Handler) rejectInvalid(w http.ResponseWriter, details []string) {
	atomic.AddInt64(&h.metrics.HTTPRequestsRejectedInvalidTotal, 1)
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body", Details: details})
}

// recoverer turns a panic into a 500 JSON body when nothing has been
// written yet.
func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.FromContext(r.Context()).Error().
					Interface("panic", v).
					Str("path", r.URL.Path).
					Msg("unhandled error")
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ------------------------------------------------------------
// Audit + file name
// ------------------------------------------------------------

// enqueueAudit reports false only when the auditor dropped the record.
func (h *Handler) enqueueAudit(requestID, ipHash, product string, p model.ReportPayload) bool {
	if h.audit == nil {
		return true
	}
	rec := pool.GetAudit()
	rec.ID = requestID
	rec.RequestedAt = h.now().UTC().Format(time.RFC3339)
	rec.ClientIPHash = ipHash
	rec.EventCount = len(p.Events)
	rec.Source = p.Source
	if rec.Source == "" {
		rec.Source = "unknown"
	}
	rec.Product = product

	return h.audit.Enqueue(rec)
}

// filenameDate is the UTC date of generatedAt, or today when it does not
// parse.
func (h *Handler) filenameDate(generatedAt string) string {
	t, ok := report.ParseTimestamp(generatedAt, time.UTC)
	if !ok {
		t = h.now()
	}
	return t.UTC().Format("2006-01-02")
}
