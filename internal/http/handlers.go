package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"retire/internal/core"
	"retire/internal/diagnostics"
	"retire/internal/log"
	"retire/internal/services"
)

var templateFuncs = template.FuncMap{
	"currency": core.FormatCurrency,
	"number":   formatNumber,
	"percent":  formatPercent,
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatPercent renders a rate fraction as a percentage, 0.015 -> "1.50%".
func formatPercent(rate float64) string {
	return strconv.FormatFloat(core.RateToPercent(rate), 'f', 2, 64) + "%"
}

// breakdownRow is one intermediate quantity shown under the total.
type breakdownRow struct {
	Label string
	Value string
}

// resultView feeds result.html.
type resultView struct {
	OK            bool
	CalculationID string
	Total         string
	Message       string
	Kind          string
	Breakdown     []breakdownRow
}

func successView(calc services.Calculation) resultView {
	est := calc.Estimate
	return resultView{
		OK:            true,
		CalculationID: calc.ID,
		Total:         core.FormatCurrency(est.TotalSavings),
		Breakdown: []breakdownRow{
			{"Annual expenses today", core.FormatCurrency(est.AnnualExpenses)},
			{"Years until retirement", formatNumber(est.YearsToRetirement)},
			{"Annual expenses at retirement", core.FormatCurrency(est.InflationAdjustedExpenses)},
			{"Years in retirement", formatNumber(est.YearsInRetirement)},
			{"Real return rate", formatPercent(est.RealReturnRate)},
		},
	}
}

func failureView(id string, err error) resultView {
	return resultView{
		CalculationID: id,
		Message:       core.UserMessage(err),
		Kind:          string(core.KindOf(err)),
	}
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequirePOST is a convenience function for POST-only handlers.
func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if s.svc == nil {
		checks["calculator"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["calculator"] = map[string]any{"status": "ok", "policy": s.svc.Policy().String()}
	}

	if s.healthCheck != nil {
		if err := s.healthCheck(ctx); err != nil {
			checks["diagnostics"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["diagnostics"] = "ok"
		}
	}

	checks["cache"] = map[string]any{
		"events_entries": s.eventsCache.Size(),
		"status":         "ok",
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	success := atomic.LoadInt64(&s.appMetrics.calculationsSuccess)
	failure := atomic.LoadInt64(&s.appMetrics.calculationsFailure)
	cacheHits := atomic.LoadInt64(&s.appMetrics.cacheHits)
	cacheMisses := atomic.LoadInt64(&s.appMetrics.cacheMisses)
	uptime := time.Since(s.appMetrics.uptime)

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_request_duration_avg_ms Average request duration\n")
	fmt.Fprintf(w, "# TYPE http_request_duration_avg_ms gauge\n")
	fmt.Fprintf(w, "http_request_duration_avg_ms %d\n\n", traceMetrics.AverageResponseTime().Milliseconds())

	fmt.Fprintf(w, "# HELP calculations_total Calculations by outcome\n")
	fmt.Fprintf(w, "# TYPE calculations_total counter\n")
	fmt.Fprintf(w, "calculations_total{outcome=\"success\"} %d\n", success)
	fmt.Fprintf(w, "calculations_total{outcome=\"failure\"} %d\n\n", failure)

	fmt.Fprintf(w, "# HELP cache_hits_total Total events cache hits\n")
	fmt.Fprintf(w, "# TYPE cache_hits_total counter\n")
	fmt.Fprintf(w, "cache_hits_total %d\n\n", cacheHits)

	fmt.Fprintf(w, "# HELP cache_misses_total Total events cache misses\n")
	fmt.Fprintf(w, "# TYPE cache_misses_total counter\n")
	fmt.Fprintf(w, "cache_misses_total %d\n\n", cacheMisses)

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", atomic.LoadInt64(&s.secMetrics.rateLimitHits))

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", atomic.LoadInt64(&s.secMetrics.suspiciousRequests))

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", s.rateLimiter.ActiveClients())

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", uptime.Seconds())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		NotFoundError(notFoundMessage).Write(w)
		return
	}
	if resp := RequireMethod(r, http.MethodGet, http.MethodHead); resp != nil {
		resp.Write(w)
		return
	}
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			"error_type", log.ErrorTypeConfiguration)
		InternalServerError("Templates not loaded.").Write(w)
		return
	}

	data := struct {
		Values        map[string]float64
		Policy        string
		CanListEvents bool
	}{
		Values:        formValues(core.DefaultInputs()),
		Policy:        s.svc.Policy().String(),
		CanListEvents: s.svc.CanListEvents(),
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "index.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "Index template execution failed",
			log.FieldError, err,
			log.FieldOperation, log.OpRender,
			"template", "index.html")
		InternalServerError("Error rendering page.").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// handleEstimate serves the page form and answers with the result partial.
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()

	in, err := parseEstimateForm(w, r, s.validate)
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		log.FromContext(ctx).WarnContext(ctx, "Rejected estimate form",
			log.FieldError, reqErr.Message,
			log.FieldOperation, log.OpParse)
		BadRequestError(reqErr.Message).Write(w)
		return
	}

	var view resultView
	if err != nil {
		id := s.svc.Reject(ctx, diagnostics.SourceWeb, in, err)
		view = failureView(id, err)
	} else {
		calc, err := s.svc.Estimate(ctx, diagnostics.SourceWeb, in)
		if err != nil {
			view = failureView(calc.ID, err)
		} else {
			view = successView(calc)
		}
	}
	s.calculationDone(view.OK)

	EstimateResponse(view, s.renderResult(ctx, view)).Write(w)
}

// renderResult executes result.html, falling back to a bare message.
func (s *Server) renderResult(ctx context.Context, view resultView) string {
	if s.templates != nil {
		var buf bytes.Buffer
		err := s.templates.ExecuteTemplate(&buf, "result.html", view)
		if err == nil {
			return buf.String()
		}
		s.logger.ErrorContext(ctx, "Result template execution failed",
			log.FieldError, err,
			log.FieldOperation, log.OpRender,
			"template", "result.html")
	}
	if view.OK {
		return `<div class="success">Total Retirement Savings Needed: ` + template.HTMLEscapeString(view.Total) + `</div>`
	}
	return `<div class="error" role="alert">` + template.HTMLEscapeString(view.Message) + `</div>`
}

type apiBreakdown struct {
	AnnualExpenses            float64 `json:"annual_expenses"`
	YearsToRetirement         float64 `json:"years_to_retirement"`
	InflationAdjustedExpenses float64 `json:"inflation_adjusted_expenses"`
	YearsInRetirement         float64 `json:"years_in_retirement"`
	RealReturnRate            float64 `json:"real_return_rate"`
}

type apiEstimateResponse struct {
	CalculationID string              `json:"calculation_id"`
	Outcome       diagnostics.Outcome `json:"outcome"`
	TotalSavings  *float64            `json:"total_savings,omitempty"`
	Formatted     string              `json:"formatted,omitempty"`
	Breakdown     *apiBreakdown       `json:"breakdown,omitempty"`
	Kind          core.FailureKind    `json:"kind,omitempty"`
	Message       string              `json:"message,omitempty"`
}

// handleAPIEstimate is the JSON twin of handleEstimate. Rates are fractions.
func (s *Server) handleAPIEstimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx := r.Context()

	in, err := parseEstimateJSON(r, s.validate)
	if err != nil {
		var reqErr *RequestError
		msg := "Invalid request."
		if errors.As(err, &reqErr) {
			msg = reqErr.Message
		}
		writeJSONError(w, http.StatusBadRequest, msg)
		return
	}

	calc, err := s.svc.Estimate(ctx, diagnostics.SourceAPI, in)
	s.calculationDone(err == nil)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, apiEstimateResponse{
			CalculationID: calc.ID,
			Outcome:       diagnostics.OutcomeFailure,
			Kind:          core.KindOf(err),
			Message:       core.UserMessage(err),
		})
		return
	}

	est := calc.Estimate
	writeJSON(w, http.StatusOK, apiEstimateResponse{
		CalculationID: calc.ID,
		Outcome:       diagnostics.OutcomeSuccess,
		TotalSavings:  &est.TotalSavings,
		Formatted:     core.FormatCurrency(est.TotalSavings),
		Breakdown: &apiBreakdown{
			AnnualExpenses:            est.AnnualExpenses,
			YearsToRetirement:         est.YearsToRetirement,
			InflationAdjustedExpenses: est.InflationAdjustedExpenses,
			YearsInRetirement:         est.YearsInRetirement,
			RealReturnRate:            est.RealReturnRate,
		},
	})
}

type eventsResponse struct {
	Events []diagnostics.Event `json:"events"`
	Count  int                 `json:"count"`
	Cached bool                `json:"cached"`
}

// handleEvents lists recent calculation events, newest first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.svc.CanListEvents() {
		writeJSONError(w, http.StatusNotFound, diagnostics.ErrNoReader.Error())
		return
	}
	ctx := r.Context()
	limit := parseLimit(r.URL.Query())

	if events, ok := s.eventsCache.Get(limit); ok {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		writeJSON(w, http.StatusOK, eventsResponse{Events: events, Count: len(events), Cached: true})
		return
	}
	atomic.AddInt64(&s.appMetrics.cacheMisses, 1)

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	events, err := s.svc.Recent(cctx, limit)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Failed to list calculation events",
			log.FieldError, err,
			log.FieldOperation, log.OpList,
			log.FieldComponent, log.ComponentDiagnostics)
		writeJSONError(w, http.StatusInternalServerError, "could not load events")
		return
	}
	if events == nil {
		events = []diagnostics.Event{}
	}
	s.eventsCache.Set(limit, events)
	writeJSON(w, http.StatusOK, eventsResponse{Events: events, Count: len(events)})
}

// calculationDone counts the outcome and drops cached event lists, which no
// longer include the newest event.
func (s *Server) calculationDone(ok bool) {
	if ok {
		atomic.AddInt64(&s.appMetrics.calculationsSuccess, 1)
	} else {
		atomic.AddInt64(&s.appMetrics.calculationsFailure, 1)
	}
	s.eventsCache.Purge()
}
