package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/parleyhq/parley/src/config"
)

// CLI is the root command structure.
type CLI struct {
	Config   string `help:"Path to config file"`
	BaseURL  string `help:"Inference proxy base URL"`
	APIKey   string `env:"PARLEY_API_KEY" help:"Proxy API key"`
	Model    string `short:"m" help:"Model to use"`
	LogLevel string `help:"Log level (debug, info, warn, error)"`

	Send          SendCmd          `cmd:"" help:"Send a prompt and run the agentic loop"`
	Conversations ConversationsCmd `cmd:"" help:"Manage stored conversations"`
}

// loadConfig merges file, environment and flag configuration, flags winning.
func (cli *CLI) loadConfig() (*config.Config, error) {
	path := cli.Config
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if cli.BaseURL != "" {
		cfg.BaseURL = cli.BaseURL
	}
	if cli.APIKey != "" {
		cfg.APIKey = cli.APIKey
	}
	if cli.Model != "" {
		cfg.Model = cli.Model
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	return cfg, nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("parley"),
		kong.Description("Streaming tool-calling assistant for a local inference proxy"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
