package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/parleyhq/parley/src/chat"
	"github.com/parleyhq/parley/src/config"
	"github.com/parleyhq/parley/src/storage"
)

// ConversationsCmd groups conversation management subcommands.
type ConversationsCmd struct {
	List   ConversationsListCmd   `cmd:"" default:"1" help:"List stored conversations"`
	Show   ConversationsShowCmd   `cmd:"" help:"Print a conversation transcript"`
	Delete ConversationsDeleteCmd `cmd:"" help:"Delete a conversation"`
}

type ConversationsListCmd struct{}

func (c *ConversationsListCmd) Run(cli *CLI) error {
	store, err := openStore(cli)
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.List(context.Background())
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println(mutedStyle.Render("no conversations yet"))
		return nil
	}

	for _, s := range summaries {
		fmt.Printf("%s  %s\n", headerStyle.Render(s.ID), s.Title)
		fmt.Println(mutedStyle.Render(fmt.Sprintf("  %s · %d messages · updated %s",
			s.Model, s.MessageCount, s.UpdatedAt.Local().Format("2006-01-02 15:04"))))
	}
	return nil
}

type ConversationsShowCmd struct {
	ID string `arg:"" help:"Conversation id"`
}

func (c *ConversationsShowCmd) Run(cli *CLI) error {
	store, err := openStore(cli)
	if err != nil {
		return err
	}
	defer store.Close()

	conv, err := store.Get(context.Background(), c.ID)
	if err != nil {
		return err
	}
	if conv == nil {
		return fmt.Errorf("conversation %s not found", c.ID)
	}

	fmt.Println(headerStyle.Render(conv.Title))
	fmt.Println(mutedStyle.Render(fmt.Sprintf("%s · %s", conv.ID, conv.Model)))
	for _, msg := range conv.Messages {
		fmt.Println()
		fmt.Println(headerStyle.Render(strings.ToUpper(msg.Role)))
		printMessage(msg)
	}
	return nil
}

func printMessage(msg chat.Message) {
	if msg.Blocks == nil {
		fmt.Println(msg.Text)
		return
	}
	for _, block := range msg.Blocks {
		switch block.Type {
		case chat.BlockText:
			fmt.Println(block.Text)
		case chat.BlockThinking:
			fmt.Println(mutedStyle.Render("[thinking] " + preview(block.Thinking, 200)))
		case chat.BlockToolUse:
			fmt.Println(toolStyle.Render(fmt.Sprintf("[tool_use %s] %s", block.ID, block.Name)))
		case chat.BlockToolResult:
			label := fmt.Sprintf("[tool_result %s]", block.ToolUseID)
			if block.IsError {
				fmt.Println(errorStyle.Render(label + " " + preview(block.Content, 200)))
			} else {
				fmt.Println(mutedStyle.Render(label + " " + preview(block.Content, 200)))
			}
		}
	}
}

type ConversationsDeleteCmd struct {
	ID string `arg:"" help:"Conversation id"`
}

func (c *ConversationsDeleteCmd) Run(cli *CLI) error {
	store, err := openStore(cli)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(context.Background(), c.ID); err != nil {
		return err
	}
	fmt.Println(mutedStyle.Render("deleted " + c.ID))
	return nil
}

func openStore(cli *CLI) (*storage.Store, error) {
	cfg, err := cli.loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(config.DefaultDatabasePath())
	if err != nil {
		return nil, err
	}
	return storage.NewStore(db, createCLILogger(cfg.LogLevel)), nil
}
