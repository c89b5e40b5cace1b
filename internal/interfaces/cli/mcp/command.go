package mcp

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/autocrm-inc/autocrm/internal/application/assistant"
	"github.com/autocrm-inc/autocrm/internal/application/knowledgebase"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/llm"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/storage"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/vectorstore"
	"github.com/autocrm-inc/autocrm/internal/interfaces/cli/bootstrap"
	mcpserver "github.com/autocrm-inc/autocrm/internal/interfaces/mcp"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
	"github.com/autocrm-inc/autocrm/internal/shared/services/markdown"
	"github.com/autocrm-inc/autocrm/internal/shared/version"
)

var (
	env        string
	configPath string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the agent tools over MCP on stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing ticket and user
search and ticket creation. With the assistant enabled it also exposes
knowledge base search and the agent itself.`,
		RunE: run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap.LoadConfig(env, configPath, false)
	if err != nil {
		return err
	}
	e, err := bootstrap.Open(cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	log := e.Log
	tools := assistant.NewTools(e.Tables.Tickets, e.Tables.Users, query.ParseSearchMode(cfg.Sync.SearchMode), log)

	// Nil unless the assistant is enabled; the server then skips their tools.
	var (
		kb       mcpserver.KnowledgeSearcher
		pipeline assistant.Pipeline
	)
	if cfg.Assistant.Enabled {
		client, err := llm.NewClient(llm.Config{
			BaseURL:        cfg.Assistant.BaseURL,
			APIKey:         cfg.Assistant.APIKey,
			Model:          cfg.Assistant.Model,
			EmbeddingModel: cfg.Assistant.EmbeddingModel,
			Timeout:        time.Duration(cfg.Assistant.TimeoutSecs) * time.Second,
			RatePerSecond:  cfg.Assistant.RatePerSecond,
			Burst:          cfg.Assistant.Burst,
		}, log.Named("llm"))
		if err != nil {
			return fmt.Errorf("failed to create llm client: %w", err)
		}
		bucket, err := storage.NewBucket(
			cfg.Knowledge.BucketDir,
			cfg.Knowledge.Bucket,
			cfg.Knowledge.PublicBaseURL,
			int64(cfg.Knowledge.MaxUploadMB)<<20,
			log.Named("storage"),
		)
		if err != nil {
			return err
		}
		svc := knowledgebase.NewService(
			e.Tables.Articles,
			bucket,
			client,
			vectorstore.NewRedisIndex(e.Redis, log.Named("vectorstore")),
			markdown.NewMarkdownService(),
			knowledgebase.Options{
				Namespace:    cfg.Knowledge.Namespace,
				ChunkSize:    cfg.Knowledge.ChunkSize,
				ChunkOverlap: cfg.Knowledge.ChunkOverlap,
			},
			log.Named("knowledgebase"),
		)
		kb = svc
		pipeline = assistant.NewSupervisor(client, svc, tools, cfg.Assistant.TopK, log.Named("assistant"))
	}

	log.Infow("starting mcp server", "assistant", cfg.Assistant.Enabled)
	return mcpserver.NewServer(tools, kb, pipeline, version.Get().Version, log).Run(cmd.Context())
}
