package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/stratushealth/concierge/pkg/config"
	"github.com/stratushealth/concierge/pkg/normalizer"
	"github.com/stratushealth/concierge/pkg/session"
)

// ChatCmd runs an interactive chat session in the terminal.
type ChatCmd struct {
	Session string `help:"Session ID to resume (default: new session)."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	// A missing workspace token can be supplied interactively.
	if cfg.Workspace.Token == "" {
		token, promptErr := promptToken()
		if promptErr != nil {
			return fmt.Errorf("workspace token required: %w", promptErr)
		}
		cfg.Workspace.Token = token
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	sessionID := c.Session
	if sessionID == "" {
		sessionID = session.NewID()
	}

	fmt.Printf("\nChat session %s\n", sessionID)
	fmt.Println("Type your questions below. Commands:")
	fmt.Println("  /quit or /exit - End chat session")
	fmt.Println("  /clear - Clear conversation history")
	fmt.Println("  /tools - List available tools")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("You: ")

		input, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			switch input {
			case "/quit", "/exit":
				fmt.Println("\nChat session ended")
				return nil
			case "/clear":
				if err := rt.manager.Reset(sessionID); err != nil {
					fmt.Printf("Failed to clear history: %v\n", err)
					continue
				}
				fmt.Println("Conversation history cleared")
				continue
			case "/tools":
				for _, info := range rt.registry.ListTools() {
					fmt.Printf("  %-28s %s\n", info.Name, info.Description)
				}
				continue
			default:
				fmt.Printf("Unknown command: %s\n", input)
				continue
			}
		}

		turn, err := rt.manager.Ask(ctx, sessionID, input)
		if err != nil {
			fmt.Printf("Error: %v\n\n", err)
			continue
		}

		fmt.Printf("\nAssistant [%s]: %s\n", turn.Result.ToolUsed, turn.Answer)
		printTable(turn.Result)
		fmt.Println()
	}
}

// printTable renders recovered analytics rows when the answer carried them.
func printTable(result *normalizer.Result) {
	if result.Table == nil {
		return
	}

	fmt.Printf("\n  %s\n", strings.Join(result.Table.Columns, " | "))
	for _, row := range result.Table.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprintf("%v", v)
		}
		fmt.Printf("  %s\n", strings.Join(cells, " | "))
	}
	if result.MoreRows > 0 {
		fmt.Printf("  ... and %d more rows\n", result.MoreRows)
	}
}

// promptToken reads a workspace token without echoing it.
func promptToken() (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no terminal available for token prompt")
	}

	fmt.Print("Workspace token: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}

	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", fmt.Errorf("empty token")
	}
	return token, nil
}
