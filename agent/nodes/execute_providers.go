package pipelinenode

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	contractx "github.com/athena-research/athena-agent/agent/contract"
	statex "github.com/athena-research/athena-agent/agent/state"
	pricingx "github.com/athena-research/athena-agent/pkg/pricing"
)

// ExecuteProviders fans out to every provider the planner selected and
// waits for all of them to settle. A provider failure or panic is
// recorded on its own result and never disturbs its siblings; the node
// itself cannot fail. Results are folded into the request state in
// selection order so reruns produce identical state.
func ExecuteProviders(
	ctx context.Context,
	in *GraphState,
	registry contractx.Registry,
	logger zerolog.Logger,
) (*GraphState, error) {
	selected := in.Decision.Providers
	if len(selected) == 0 {
		return in, nil
	}

	st := in.Exec.State
	results := make([]contractx.ProviderResult, len(selected))

	// Costs and ledger steps are recorded up front, before anything
	// runs, so an early crash still leaves the attempt priced. File
	// uploads were charged at ingestion and carry no cost here.
	for _, name := range selected {
		if name != contractx.ProviderFileUpload {
			statex.RecordCost(st, name, pricingx.PriceFloat(name))
		}
		statex.StartStep(st, name)
	}

	var wg sync.WaitGroup
	for i, name := range selected {
		result := &results[i]
		result.Provider = name

		// Attachments are ingested before the pipeline runs; the
		// selection is acknowledged without another execution.
		if name == contractx.ProviderFileUpload {
			result.OK = true
			continue
		}

		prov, ok := registry.Get(name)
		if !ok {
			result.Error = "unknown provider"
			logger.Warn().Str("provider", name).Msg("unknown_provider_selected")
			continue
		}

		wg.Add(1)
		go func(prov contractx.Provider) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					result.Error = fmt.Sprintf("panic: %v", r)
					logger.Error().Str("provider", result.Provider).Any("panic", r).Msg("provider_panicked")
				}
			}()

			data, err := prov.Execute(ctx, in.Exec)
			if err != nil {
				result.Error = err.Error()
				return
			}
			result.OK = true
			result.Data = data
		}(prov)
	}
	wg.Wait()

	for i := range results {
		statex.EndStep(st, results[i].Provider)
		if vars, ok := results[i].Data.(map[string]any); ok && results[i].OK {
			statex.AddVariables(st, vars)
		}
		if !results[i].OK && results[i].Error != "" {
			logger.Warn().
				Str("provider", results[i].Provider).
				Str("error", results[i].Error).
				Msg("provider_failed")
		}
	}

	in.Providers = results
	return in, nil
}
