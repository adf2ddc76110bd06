// Command sage is a course-materials assistant: it ingests course
// transcripts into a searchable store and answers questions about them
// through a chat TUI or an HTTP API.
package main

import (
	"context"
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/charmbracelet/log"
	"github.com/victhorio/sage/config"
	"github.com/victhorio/sage/docproc"
	"github.com/victhorio/sage/embeddings"
	"github.com/victhorio/sage/httpapi"
	"github.com/victhorio/sage/prompts"
	"github.com/victhorio/sage/rag"
	"github.com/victhorio/sage/session"
	"github.com/victhorio/sage/vecstore"
)

type cli struct {
	Config string `help:"Path to the YAML config file." default:"sage.yaml" type:"path"`

	Chat   chatCmd   `cmd:"" help:"Chat with the assistant in the terminal."`
	Serve  serveCmd  `cmd:"" help:"Serve the HTTP API."`
	Ingest ingestCmd `cmd:"" help:"Ingest course transcripts from a folder."`
}

type chatCmd struct{}

type serveCmd struct {
	Docs string `help:"Folder of transcripts to ingest before serving." type:"existingdir" optional:""`
}

type ingestCmd struct {
	Dir string `arg:"" help:"Folder containing .txt course transcripts." type:"existingdir"`
}

func main() {
	var c cli
	ktx := kong.Parse(&c,
		kong.Name("sage"),
		kong.Description("Course materials assistant."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load(c.Config)
	if err != nil {
		log.Fatal("failed to load config", "err", err)
	}

	ktx.FatalIfErrorf(ktx.Run(&cfg))
}

func (chatCmd) Run(cfg *config.Config) error {
	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	return runTUI(app.sys, app.sys.NewSessionID())
}

func (cmd serveCmd) Run(cfg *config.Config) error {
	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if cmd.Docs != "" {
		courses, chunks, err := app.sys.AddCourseFolder(context.Background(), cmd.Docs)
		if err != nil {
			return err
		}
		log.Info("startup ingestion complete", "courses", courses, "chunks", chunks)
	}

	return httpapi.NewServer(app.sys).Run(cfg.ListenAddr)
}

func (cmd ingestCmd) Run(cfg *config.Config) error {
	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	courses, chunks, err := app.sys.AddCourseFolder(context.Background(), cmd.Dir)
	if err != nil {
		return err
	}

	fmt.Printf("Added %d courses (%d chunks)\n", courses, chunks)
	a := app.sys.Analytics()
	fmt.Printf("Catalog now holds %d courses\n", a.TotalCourses)
	return nil
}

// app bundles the wired system with the stores that need closing.
type app struct {
	sys      *rag.System
	store    *vecstore.Store
	sessions *session.SQLiteStore
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Error("failed to close course store", "err", err)
	}
	if err := a.sessions.Close(); err != nil {
		log.Error("failed to close session store", "err", err)
	}
}

// buildApp wires every collaborator from the config: embeddings client,
// vector store, session store, tools, generator, system.
func buildApp(cfg *config.Config) (*app, error) {
	embedder, err := embeddings.NewOpenAI(embeddings.ModelID(cfg.EmbeddingModel), cfg.OpenAIAPIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	store, err := vecstore.NewStore(cfg.DBPath, embedder, cfg.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("failed to open course store: %w", err)
	}

	sessStore, err := session.NewSQLiteStore(cfg.SessionPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	registry := rag.NewRegistry()
	for _, spec := range []struct {
		name string
		mk   func(rag.ToolDefinition) rag.Tool
	}{
		{"search_course_content", func(def rag.ToolDefinition) rag.Tool { return rag.NewSearchTool(store, def) }},
		{"get_course_outline", func(def rag.ToolDefinition) rag.Tool { return rag.NewOutlineTool(store, def) }},
	} {
		def, err := prompts.LoadToolSpec(spec.name)
		if err != nil {
			store.Close()
			sessStore.Close()
			return nil, fmt.Errorf("failed to load tool spec: %w", err)
		}
		if err := registry.Register(spec.mk(def)); err != nil {
			store.Close()
			sessStore.Close()
			return nil, fmt.Errorf("failed to register tool: %w", err)
		}
	}

	client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))
	generator := rag.NewGenerator(&client, cfg.AnthropicModel, cfg.MaxTokens, prompts.SageSysPrompt)

	parser := docproc.NewProcessor(cfg.ChunkSize, cfg.ChunkOverlap)
	sessions := session.NewManager(sessStore, cfg.MaxHistory)

	return &app{
		sys:      rag.NewSystem(store, parser, generator, registry, sessions, cfg.MaxRounds),
		store:    store,
		sessions: sessStore,
	}, nil
}
