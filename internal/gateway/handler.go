package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/compresr/lingua-gateway/internal/monitoring"
	"github.com/compresr/lingua-gateway/internal/pipes/lingua"
)

// writeError writes a JSON error in the gateway's envelope.
func (g *Gateway) writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"message": msg, "type": "gateway_error"},
	})
}

// handleHealth returns gateway health status.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":  "ok",
		"time":    time.Now().Format(time.RFC3339),
		"version": Version,
		"engine":  g.engine.Name(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := g.engine.Health(ctx); err != nil {
		health["status"] = "degraded"
		health["engine_error"] = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health)
}

// StatsResponse is the /stats payload.
type StatsResponse struct {
	Uptime  string                   `json:"uptime"`
	Version string                   `json:"version"`
	Engine  string                   `json:"engine"`
	Gateway map[string]int64         `json:"gateway"`
	Savings monitoring.SavingsReport `json:"savings"`
}

// handleStats returns savings and request counters. Loopback only.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		g.writeError(w, "forbidden", http.StatusForbidden)
		return
	}

	resp := StatsResponse{
		Uptime:  time.Since(g.startTime).Round(time.Second).String(),
		Version: Version,
		Engine:  g.engine.Name(),
		Gateway: g.metrics.Stats(),
		Savings: g.savings.GetReport(r.Context()),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// readBody reads the request body up to MaxRequestBodySize.
func (g *Gateway) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Body == nil {
		return nil, true
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			g.writeError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		g.writeError(w, "failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

// handleMessages compresses a Messages API request and forwards it.
func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	requestID := monitoring.RequestIDFromContext(r.Context())

	body, ok := g.readBody(w, r)
	if !ok {
		return
	}
	if !gjson.ValidBytes(body) {
		g.alerts.FlagInvalidRequest(requestID, "invalid JSON body")
		g.writeError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	adapter := g.registry.ForPath(r.URL.Path)
	pipeCtx := NewPipelineContext(r.Context(), adapter, body, r.URL.Path)
	pipeCtx.RequestID = requestID

	forwardBody, err := g.router.Process(pipeCtx)
	if err != nil {
		g.handlePipelineError(w, pipeCtx, err)
		return
	}
	g.recordCompression(pipeCtx)

	resp, err := g.forward(r, forwardBody, pipeCtx.Compressed)
	if err != nil {
		g.alerts.FlagUpstreamFailure(requestID, g.targetURL(r), err)
		g.writeError(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	g.writeResponse(w, resp, requestID)
}

// handlePipelineError maps compression failures to responses. Nothing is
// forwarded upstream in any of these cases.
func (g *Gateway) handlePipelineError(w http.ResponseWriter, pipeCtx *PipelineContext, err error) {
	switch {
	case pipeCtx.Context != nil && pipeCtx.Context.Err() != nil:
		log.Debug().Err(err).Str("request_id", pipeCtx.RequestID).Msg("request cancelled during compression")
		g.writeError(w, "request cancelled", http.StatusServiceUnavailable)
	case errors.Is(err, lingua.ErrEngineFailure):
		g.metrics.RecordEngineError()
		g.alerts.FlagCompressionFailure(pipeCtx.RequestID, lingua.PipeName, g.config.Engine.Strategy, err)
		g.writeError(w, "compression failed", http.StatusInternalServerError)
	default:
		g.alerts.FlagCompressionFailure(pipeCtx.RequestID, lingua.PipeName, g.config.Engine.Strategy, err)
		g.writeError(w, "compression failed", http.StatusInternalServerError)
	}
}

// recordCompression feeds pipeline results to metrics, logs and savings.
func (g *Gateway) recordCompression(pipeCtx *PipelineContext) {
	if pipeCtx.TokensBefore > 0 {
		for _, f := range pipeCtx.Fragments {
			g.metrics.RecordFragment(f.Kind)
		}
		g.metrics.RecordCompression(pipeCtx.TokensBefore, pipeCtx.TokensAfter, pipeCtx.CompressionDuration)

		infos := make([]monitoring.FragmentInfo, 0, len(pipeCtx.Fragments))
		for _, f := range pipeCtx.Fragments {
			infos = append(infos, monitoring.FragmentInfo{
				MessageIndex: f.MessageIndex,
				Path:         f.Path,
				Kind:         f.Kind,
				Rate:         f.Rate,
				OriginalLen:  f.OriginalLen,
				TokensBefore: f.TokensBefore,
				TokensAfter:  f.TokensAfter,
			})
		}
		g.requestLogger.LogFragments(pipeCtx.RequestID, infos, pipeCtx.CompressionDuration)
	}

	g.savings.RecordRequest(
		context.WithoutCancel(pipeCtx.Context),
		pipeCtx.RequestID,
		pipeCtx.Model,
		len(pipeCtx.Fragments),
		pipeCtx.TokensBefore,
		pipeCtx.TokensAfter,
	)
}

// handlePassthrough forwards any other request without inspecting it.
func (g *Gateway) handlePassthrough(w http.ResponseWriter, r *http.Request) {
	requestID := monitoring.RequestIDFromContext(r.Context())

	body, ok := g.readBody(w, r)
	if !ok {
		return
	}

	resp, err := g.forward(r, body, false)
	if err != nil {
		g.alerts.FlagUpstreamFailure(requestID, g.targetURL(r), err)
		g.writeError(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	g.writeResponse(w, resp, requestID)
}

// targetURL maps an incoming request onto the upstream base URL.
func (g *Gateway) targetURL(r *http.Request) string {
	target := *g.upstream
	target.Path = strings.TrimRight(g.upstream.Path, "/") + r.URL.Path
	target.RawQuery = r.URL.RawQuery
	return target.String()
}

// forward sends body upstream with the client's method and headers.
func (g *Gateway) forward(r *http.Request, body []byte, compressed bool) (*http.Response, error) {
	targetURL := g.targetURL(r)

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}
	httpReq.Header = upstreamHeaders(r.Header)

	g.requestLogger.LogOutgoing(&monitoring.OutgoingRequestInfo{
		RequestID:  monitoring.RequestIDFromContext(r.Context()),
		TargetURL:  targetURL,
		Method:     r.Method,
		BodySize:   len(body),
		Compressed: compressed,
	})

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// upstreamHeaders copies client headers minus the ones the HTTP client
// recomputes for the forwarded body.
func upstreamHeaders(src http.Header) http.Header {
	h := src.Clone()
	for _, k := range strippedRequestHeaders {
		h.Del(k)
	}
	return h
}

// writeResponse relays status, headers and body verbatim. Event streams
// are flushed chunk by chunk.
func (g *Gateway) writeResponse(w http.ResponseWriter, resp *http.Response, requestID string) {
	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(resp.Body)
		g.alerts.FlagProviderError(requestID, resp.StatusCode, string(errBody[:min(MaxErrorBodyLogLen, len(errBody))]))
		resp.Body = io.NopCloser(bytes.NewReader(errBody))
	}

	copyHeaders(w, resp.Header)
	w.WriteHeader(resp.StatusCode)

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		g.streamResponse(w, resp.Body)
		return
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Debug().Err(err).Str("request_id", requestID).Msg("client disconnected")
	}
}

// streamResponse streams data from reader to writer with flushing.
func (g *Gateway) streamResponse(w http.ResponseWriter, reader io.Reader) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Warn().Msg("streaming not supported, falling back to buffered")
		_, _ = io.Copy(w, reader)
		return
	}

	buf := make([]byte, DefaultBufferSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				log.Debug().Err(writeErr).Msg("client disconnected")
				return
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				log.Debug().Err(err).Msg("error reading stream")
			}
			return
		}
	}
}

func copyHeaders(w http.ResponseWriter, src http.Header) {
	for k, v := range src {
		w.Header()[k] = v
	}
}
