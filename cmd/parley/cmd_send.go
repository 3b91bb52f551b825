package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/parleyhq/parley/src/chat"
	"github.com/parleyhq/parley/src/config"
	"github.com/parleyhq/parley/src/engine"
	"github.com/parleyhq/parley/src/proxyclient"
	"github.com/parleyhq/parley/src/sandbox"
	"github.com/parleyhq/parley/src/sandbox/tools"
	"github.com/parleyhq/parley/src/storage"
)

// SendCmd sends one prompt and streams the agentic loop to the terminal.
type SendCmd struct {
	Text []string `arg:"" help:"The prompt text to send"`

	Resume        string `short:"r" help:"Continue an existing conversation by id"`
	MaxTurns      int    `help:"Override the turn ceiling for this run"`
	ShowToolInput bool   `help:"Print tool input alongside tool calls"`
	ShowThinking  bool   `help:"Announce thinking blocks as they stream"`
	Quiet         bool   `short:"q" help:"Suppress tool status lines, print only the streamed text"`
}

func (s *SendCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	// Engine internals log to the state file so stdout stays a clean
	// stream; debug level switches to stderr for troubleshooting.
	logger := createFileLogger(cfg.LogLevel)
	if cfg.LogLevel == "debug" {
		logger = createCLILogger(cfg.LogLevel)
	}

	db, err := storage.Open(config.DefaultDatabasePath())
	if err != nil {
		return err
	}
	defer db.Close()

	toolbox, err := tools.DefaultToolbox(tools.Options{
		BashTimeout: time.Duration(cfg.BashTimeoutSeconds) * time.Second,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	toolbox.Use(sandbox.LoggingMiddleware(logger))

	maxTurns := cfg.MaxTurns
	if s.MaxTurns > 0 {
		maxTurns = s.MaxTurns
	}

	sink := engine.NewChannelEventSink(64, newConsoleProcessor(s.ShowToolInput, s.ShowThinking, s.Quiet))
	eng := engine.New(engine.Config{
		Client: proxyclient.New(proxyclient.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Logger:  logger,
		}),
		Store:     storage.NewStore(db, logger),
		Toolbox:   toolbox,
		Sink:      sink,
		Logger:    logger,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		MaxTurns:  maxTurns,
	})

	// Ctrl-C aborts the stream; the transcript keeps everything persisted
	// up to that point.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conv, err := eng.Send(ctx, s.Resume, strings.Join(s.Text, " "), cli.Model)
	sink.Close()

	if err != nil {
		if chat.IsAborted(err) && conv != nil {
			fmt.Println(mutedStyle.Render(fmt.Sprintf("conversation: %s", conv.ID)))
			return nil
		}
		return err
	}

	fmt.Println(mutedStyle.Render(fmt.Sprintf("conversation: %s", conv.ID)))
	return nil
}
