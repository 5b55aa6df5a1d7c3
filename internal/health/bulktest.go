package health

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"dispatchd/internal/domain"
	"dispatchd/internal/observability"
	"dispatchd/internal/resolve"

	"dispatchd/internal/catalog"
)

// TestItem is one template to exercise. Tokens are positional values in the
// template's declaration order.
type TestItem struct {
	Key    string   `json:"key" validate:"required"`
	Label  string   `json:"label"`
	BodyID string   `json:"bodyId,omitempty"`
	Tokens []string `json:"tokens"`
}

type TestResult struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// BulkTest dispatches every item to one recipient with bounded concurrency.
// Items are fully isolated: one failure never aborts the rest, and results
// come back in input order regardless of completion order. Every test send
// goes through the Dispatcher so it is logged exactly like production
// traffic.
func (a *Aggregator) BulkTest(ctx context.Context, recipient string, items []TestItem) []TestResult {
	snap, err := a.Settings.Snapshot(ctx)
	if err != nil {
		// Without settings no item can resolve; fail them all uniformly.
		results := make([]TestResult, len(items))
		for i, it := range items {
			results[i] = TestResult{Key: it.Key, Label: it.Label, Message: err.Error()}
		}
		return results
	}
	reg := catalog.NewRegistry(a.defs(), snap)

	runID := uuid.NewString()
	results := make([]TestResult, len(items))
	sem := make(chan struct{}, a.concurrency())
	var wg sync.WaitGroup

	for i, it := range items {
		wg.Add(1)
		go func(i int, it TestItem) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if a.Limiter != nil {
				if err := a.Limiter.Wait(ctx); err != nil {
					results[i] = TestResult{Key: it.Key, Label: it.Label, Message: err.Error()}
					return
				}
			}
			results[i] = a.runOne(ctx, reg, runID, i, recipient, it)
		}(i, it)
	}
	wg.Wait()

	for _, r := range results {
		label := "fail"
		if r.Success {
			label = "ok"
		}
		observability.BulkTestItems.WithLabelValues(label).Inc()
	}
	return results
}

func (a *Aggregator) runOne(ctx context.Context, reg *catalog.Registry, runID string, idx int, recipient string, it TestItem) (result TestResult) {
	result = TestResult{Key: it.Key, Label: it.Label}

	// A misbehaving adapter must not take the whole batch down.
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Message = fmt.Sprintf("panic: %v", r)
		}
	}()

	def, ok := reg.Get(it.Key)
	if !ok {
		result.Message = fmt.Sprintf("unknown template %q", it.Key)
		return result
	}

	values := make(map[string]string, len(it.Tokens))
	names := def.Tokens
	if def.Channel == domain.ChannelTelegram {
		names = resolve.Placeholders(def.Text)
	}
	for i, name := range names {
		if i < len(it.Tokens) {
			values[name] = it.Tokens[i]
		}
	}

	resp, err := a.Dispatcher.Dispatch(ctx, domain.DispatchRequest{
		EventType:     it.Key,
		Recipient:     recipient,
		TokenValues:   values,
		CorrelationID: fmt.Sprintf("blk_%s_%d", runID, idx),
	})
	if err != nil {
		result.Message = err.Error()
		return result
	}
	result.Success = resp.Success
	result.Message = resp.Message
	return result
}
