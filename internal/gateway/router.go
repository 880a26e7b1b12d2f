// Router routes requests to compression pipes.
//
// DESIGN: Every Messages API request with an adapter goes through the
// lingua pipe; everything else is forwarded untouched.
//
// Uses a worker pool to bound concurrent pipe execution.
// Threshold logic (min chars) is handled INSIDE the pipe.
package gateway

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/lingua-gateway/internal/config"
	"github.com/compresr/lingua-gateway/internal/engine"
	"github.com/compresr/lingua-gateway/internal/monitoring"
	"github.com/compresr/lingua-gateway/internal/pipes"
	"github.com/compresr/lingua-gateway/internal/pipes/lingua"
)

// PipeType is an alias to monitoring.PipeType for convenience.
type PipeType = monitoring.PipeType

// Pipe type constants - re-exported from monitoring for convenience.
const (
	PipeNone   = monitoring.PipeNone
	PipeLingua = monitoring.PipeLingua
)

// Router routes requests to the appropriate pipe.
type Router struct {
	config     *config.Config
	linguaPool *Pool
}

// Pool manages workers for a pipe type.
type Pool struct {
	workers chan pipes.Pipe
	size    int
}

func newPool(size int, factory func() pipes.Pipe) *Pool {
	p := &Pool{workers: make(chan pipes.Pipe, size), size: size}
	for i := 0; i < size; i++ {
		p.workers <- factory()
	}
	return p
}

func (p *Pool) acquire(ctx context.Context) (pipes.Pipe, error) {
	select {
	case w := <-p.workers:
		return w, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) release(pipe pipes.Pipe) { p.workers <- pipe }

// NewRouter creates a new router with worker pools sharing one engine.
func NewRouter(cfg *config.Config, eng engine.Engine) *Router {
	return &Router{
		config: cfg,
		linguaPool: newPool(DefaultPipePoolSize, func() pipes.Pipe {
			return lingua.New(cfg, eng)
		}),
	}
}

// Route determines which pipe should handle the request.
func (r *Router) Route(ctx *PipelineContext) PipeType {
	if ctx == nil || ctx.Adapter == nil || len(ctx.OriginalRequest) == 0 {
		return PipeNone
	}
	if !r.config.Pipes.Lingua.Enabled || r.config.Engine.Strategy == engine.StrategyPassthrough {
		return PipeNone
	}
	return PipeLingua
}

// Process routes and processes the request through the selected pipe.
// On error the returned body is nil and the request must not be forwarded.
func (r *Router) Process(ctx *PipelineContext) ([]byte, error) {
	if r.Route(ctx) == PipeNone {
		return ctx.OriginalRequest, nil
	}

	reqCtx := ctx.Context
	if reqCtx == nil {
		reqCtx = context.Background()
	}

	worker, err := r.linguaPool.acquire(reqCtx)
	if err != nil {
		return nil, err
	}
	defer r.linguaPool.release(worker)

	start := time.Now()
	pipeCtx := r.toPipeContext(ctx, reqCtx)
	modifiedBody, err := worker.Process(pipeCtx)
	ctx.CompressionDuration = time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("request_id", ctx.RequestID).Str("pipe", worker.Name()).Msg("pipe failed")
		return nil, err
	}
	r.copyPipeResults(pipeCtx, ctx)
	return modifiedBody, nil
}

// toPipeContext converts gateway PipelineContext to pipes.PipeContext.
func (r *Router) toPipeContext(ctx *PipelineContext, reqCtx context.Context) *pipes.PipeContext {
	return pipes.NewPipeContext(reqCtx, ctx.Adapter, ctx.OriginalRequest)
}

// copyPipeResults copies results from pipes.PipeContext back to PipelineContext.
func (r *Router) copyPipeResults(pipeCtx *pipes.PipeContext, ctx *PipelineContext) {
	ctx.Compressed = pipeCtx.Compressed
	ctx.TokensBefore = pipeCtx.TokensBefore
	ctx.TokensAfter = pipeCtx.TokensAfter
	ctx.ReductionPercent = pipeCtx.ReductionPercent
	ctx.Fragments = append(ctx.Fragments, pipeCtx.Fragments...)
}
