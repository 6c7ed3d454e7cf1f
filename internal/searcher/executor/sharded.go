package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/3worlds/aot/internal/indexer"
	"github.com/3worlds/aot/internal/searcher/merger"
	"github.com/3worlds/aot/internal/searcher/parser"
	"github.com/3worlds/aot/internal/searcher/ranker"
	apperrors "github.com/3worlds/aot/pkg/errors"
	"github.com/3worlds/aot/pkg/resilience"
	"github.com/3worlds/aot/pkg/tracing"
)

// EngineSet supplies the engines to query, keyed by source name.
// shard.Router implements it.
type EngineSet interface {
	GetAllEngines() map[string]*indexer.Engine
}

type ShardedExecutor struct {
	engines EngineSet
	timeout time.Duration
	logger  *slog.Logger
}

// NewSharded creates an executor over all sources of engines. Each source
// must answer within timeout; zero disables the limit.
func NewSharded(engines EngineSet, timeout time.Duration) *ShardedExecutor {
	return &ShardedExecutor{
		engines: engines,
		timeout: timeout,
		logger:  slog.Default().With("component", "sharded-executor"),
	}
}

// Execute runs plan against every loaded source, or only against source
// when it is not empty. Sources that fail or time out are reported in
// FailedSources; the query fails only when all of them do.
func (se *ShardedExecutor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int, source string) (*SearchResult, error) {
	engines := se.engines.GetAllEngines()
	if source != "" {
		engine, ok := engines[source]
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrSourceNotFound, "source %q is not loaded", source)
		}
		engines = map[string]*indexer.Engine{source: engine}
	}
	if plan.Empty() || len(engines) == 0 {
		return emptyResult(plan), nil
	}

	sourceResults, failed, err := se.fanOut(ctx, engines, plan, limit)
	if err != nil {
		return nil, err
	}

	result := emptyResult(plan)
	result.FailedSources = failed
	perSource := make([][]ranker.ScoredDoc, 0, len(sourceResults))
	hits := make(map[string]map[string]Hit, len(sourceResults))
	for _, sr := range sourceResults {
		result.TotalHits += sr.total
		for term, n := range sr.termStats {
			result.TermStats[term] += n
		}
		perSource = append(perSource, sr.docs)
		hits[sr.source] = sr.hits
	}
	for _, doc := range merger.Merge(perSource, limit) {
		result.Results = append(result.Results, hits[doc.Source][doc.Key])
	}
	se.logger.Info("sharded query executed",
		"query", plan.RawQuery,
		"sources_queried", len(sourceResults),
		"sources_failed", len(failed),
		"global_candidates", result.TotalHits,
		"results", len(result.Results),
	)
	return result, nil
}

func (se *ShardedExecutor) fanOut(
	ctx context.Context,
	engines map[string]*indexer.Engine,
	plan *parser.QueryPlan,
	limit int,
) ([]sourceResult, []string, error) {
	type outcome struct {
		sr  sourceResult
		err error
	}
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)

	outcomes := make([]outcome, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			spanCtx, span := tracing.StartChildSpan(ctx, "search."+name)
			defer span.End()
			sr, err := resilience.Call(spanCtx, se.timeout, "search "+name, func(ctx context.Context) (sourceResult, error) {
				return rankSource(ctx, engines[name], plan, limit)
			})
			if err != nil {
				span.SetAttr("error", err.Error())
				outcomes[i] = outcome{err: err}
				return
			}
			span.SetAttr("candidates", sr.total)
			outcomes[i] = outcome{sr: sr}
		}()
	}
	wg.Wait()

	results := make([]sourceResult, 0, len(names))
	var failed []string
	for i, o := range outcomes {
		if o.err != nil {
			se.logger.Error("source query failed", "source", names[i], "error", o.err)
			failed = append(failed, names[i])
			continue
		}
		results = append(results, o.sr)
	}
	if len(results) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("searching sources: %w", err)
		}
		return nil, nil, apperrors.Newf(apperrors.ErrSourceUnavailable, "all %d sources failed", len(names))
	}
	return results, failed, nil
}
