package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/athena-research/athena-agent/agent/agents/pipeline"
	"github.com/athena-research/athena-agent/agent/agents/stages"
	contractx "github.com/athena-research/athena-agent/agent/contract"
	llmx "github.com/athena-research/athena-agent/agent/llm"
	nodex "github.com/athena-research/athena-agent/agent/nodes"
	promptx "github.com/athena-research/athena-agent/agent/prompt"
	providerx "github.com/athena-research/athena-agent/agent/provider"
	statex "github.com/athena-research/athena-agent/agent/state"
	configx "github.com/athena-research/athena-agent/pkg/config"
	_ "github.com/athena-research/athena-agent/pkg/logger/autoload"
	qstashx "github.com/athena-research/athena-agent/pkg/qstash"
)

type AppConfig struct {
	UserID          string `envconfig:"USER_ID" split_words:"true" default:"local-operator"`
	Source          string `envconfig:"SOURCE" split_words:"true" default:"ui"`
	DeepResearch    bool   `envconfig:"DEEP_RESEARCH" split_words:"true"`
	DeepResearchURL string `envconfig:"DEEP_RESEARCH_URL" split_words:"true"`
}

func main() {
	ctx := context.Background()
	appCfg := configx.MustNew[AppConfig]("AGENT")

	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	modelClient, err := llmx.NewClient(*llmCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init model client")
	}

	planningGateway := llmCfg.Gateway(llmx.RolePlanning)
	planningModel, err := planningGateway.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("init planning model")
	}

	pgCfg := configx.MustNew[statex.PostgresConfig]("POSTGRES")
	store, err := statex.NewPostgresStore(*pgCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init postgres store")
	}
	defer store.Close()

	var memory contractx.MemoryStore
	if upstashCfg, err := configx.New[statex.UpstashMemoryConfig]("UPSTASH"); err == nil {
		memory, err = statex.NewUpstashMemoryStore(*upstashCfg)
		if err != nil {
			log.Warn().Err(err).Msg("memory cache disabled")
			memory = nil
		}
	} else {
		log.Warn().Err(err).Msg("memory cache not configured")
	}

	registry := providerx.NewRegistry(buildProviders(appCfg)...)
	log.Info().Strs("providers", registry.Names()).Msg("providers registered")

	prompts := promptx.LoadPromptSet()

	planner, err := stages.NewPlanner(planningModel, prompts)
	if err != nil {
		log.Fatal().Err(err).Msg("init planner")
	}
	checkpoint := pipeline.NewCheckpointer(store)
	replier, err := stages.NewReplier(modelClient, store, checkpoint, prompts, *llmCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init replier")
	}
	hypothesizer, err := stages.NewHypothesizer(modelClient, store, prompts, *llmCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init hypothesizer")
	}
	reflector, err := stages.NewReflector(modelClient, prompts, *llmCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init reflector")
	}
	rewriter, err := stages.NewRewriter(modelClient, prompts, *llmCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init rewriter")
	}

	pipe, err := pipeline.New(pipeline.Deps{
		Store:      store,
		Memory:     memory,
		Registry:   registry,
		Checkpoint: checkpoint,
		Planner:    planner,
		Rewriter:   rewriter,
		Reply:      replier,
		Hypothesis: hypothesizer,
		Reflector:  reflector,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("init pipeline")
	}

	runREPL(ctx, pipe, appCfg)
}

// buildProviders assembles every backend whose configuration is
// present. A missing backend config drops that provider, it does not
// abort startup; the planner simply cannot select it.
func buildProviders(appCfg *AppConfig) []contractx.Provider {
	var providers []contractx.Provider

	if cfg, err := configx.New[providerx.KnowledgeConfig]("KNOWLEDGE"); err == nil {
		if p, err := providerx.NewKnowledge(*cfg); err == nil {
			providers = append(providers, p)
		}
	} else {
		log.Warn().Err(err).Msg("knowledge provider not configured")
	}

	if cfg, err := configx.New[providerx.OpenScholarConfig]("OPENSCHOLAR"); err == nil {
		if p, err := providerx.NewOpenScholar(*cfg); err == nil {
			providers = append(providers, p)
		}
	} else {
		log.Warn().Err(err).Msg("openscholar provider not configured")
	}

	if cfg, err := configx.New[providerx.SemanticScholarConfig]("SEMANTIC_SCHOLAR"); err == nil {
		if p, err := providerx.NewSemanticScholar(*cfg); err == nil {
			providers = append(providers, p)
		}
	} else {
		log.Warn().Err(err).Msg("semantic scholar provider not configured")
	}

	if cfg, err := configx.New[providerx.KnowledgeGraphConfig]("KNOWLEDGE_GRAPH"); err == nil {
		if p, err := providerx.NewKnowledgeGraph(*cfg); err == nil {
			providers = append(providers, p)
		}
	} else {
		log.Warn().Err(err).Msg("knowledge graph provider not configured")
	}

	providers = append(providers, providerx.NewFileUpload())

	if cfg, err := configx.New[qstashx.Config]("QSTASH"); err == nil && appCfg.DeepResearchURL != "" {
		if client, err := qstashx.NewClient(*cfg); err == nil {
			if dispatcher, err := providerx.NewQStashDispatcher(client, appCfg.DeepResearchURL); err == nil {
				if p, err := providerx.NewDeepResearch(dispatcher); err == nil {
					providers = append(providers, p)
				}
			}
		}
	} else {
		log.Warn().Msg("deep research dispatch not configured")
	}

	return providers
}

// runREPL reads one message per line from stdin and prints the turn's
// reply. One process run is one conversation.
func runREPL(ctx context.Context, pipe *pipeline.Pipeline, appCfg *AppConfig) {
	conversationID := uuid.NewString()
	log.Info().Str("conversation_id", conversationID).Msg("conversation started")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Print("> ")
	for scanner.Scan() {
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			fmt.Print("> ")
			continue
		}
		if question == "/quit" {
			return
		}

		out, err := pipe.HandleMessage(ctx, nodex.GraphInput{
			ConversationID: conversationID,
			UserID:         appCfg.UserID,
			Question:       question,
			Source:         appCfg.Source,
			IsDeepResearch: appCfg.DeepResearch,
		})
		switch {
		case err != nil:
			fmt.Printf("error: %v\n", err)
		case !out.Responded:
			fmt.Println("(no response)")
		default:
			fmt.Println(out.Reply.Text)
		}
		fmt.Print("> ")
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("stdin read failed")
	}
}
