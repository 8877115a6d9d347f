package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/sidekick/internal/config"
	"github.com/haasonsaas/sidekick/internal/observability"
	"github.com/haasonsaas/sidekick/internal/session"
	"github.com/haasonsaas/sidekick/internal/tools"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// loadConfig resolves the config from --config, the well-known locations and
// the environment.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		workspace := os.Getenv("SIDEKICK_WORKSPACE")
		if workspace == "" {
			workspace, _ = os.Getwd()
		}
		for _, candidate := range config.WellKnownPaths(workspace) {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cfg.WorkspaceRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		cfg.WorkspaceRoot = cwd
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *observability.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
}

// terminalPrompter asks y/N questions on stdin.
type terminalPrompter struct {
	in  *bufio.Reader
	out *os.File
}

func newTerminalPrompter() *terminalPrompter {
	return &terminalPrompter{in: bufio.NewReader(os.Stdin), out: os.Stderr}
}

func (p *terminalPrompter) Ask(message string) bool {
	fmt.Fprintf(p.out, "%s [y/N] ", message)
	line, err := p.in.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// renderEvents prints the user-facing subset of the event stream.
func renderEvents(events <-chan *models.Event, verbose bool, wg *sync.WaitGroup) {
	defer wg.Done()
	for ev := range events {
		switch ev.Kind {
		case models.EventDisplay:
			title, _ := ev.Data["title"].(string)
			content, _ := ev.Data["content"].(string)
			if title != "" {
				fmt.Printf("\n== %s ==\n%s\n", title, content)
			} else {
				fmt.Printf("\n%s\n", content)
			}
		case models.EventToolCallParsed:
			fmt.Printf("-> %v\n", ev.Data["tool"])
		case models.EventPolicyDenyCmd:
			fmt.Printf("!! command denied: %v\n", ev.Data["reason"])
		case models.EventPlanGenerated, models.EventReplanGenerated:
			fmt.Printf("plan: %v\n", ev.Data["title"])
		case models.EventStutteringDetected:
			fmt.Println("!! runaway output truncated")
		default:
			if verbose {
				fmt.Printf(".. %s %v\n", ev.Kind, ev.Data)
			}
		}
	}
}

func runTurn(ctx context.Context, s *session.Session, request string, verbose bool) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go renderEvents(s.Events(), verbose, &wg)

	outcome, err := s.Run(ctx, request)
	if err != nil {
		return err
	}
	fmt.Printf("\n%s\n", outcome.FinalText)
	if outcome.StopReason != models.StopReasonDone {
		fmt.Printf("(stopped: %s after %d iterations)\n", outcome.StopReason, outcome.Iterations)
	}
	return nil
}

func buildRunCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "run <request>",
		Short: "Run a single request and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := session.New(session.Options{
				Config:   cfg,
				Prompter: newTerminalPrompter(),
				Logger:   newLogger(cfg),
			})
			if err != nil {
				return err
			}
			defer s.Close()

			return runTurn(ctx, s, strings.Join(args, " "), verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print every agent event")
	return cmd
}

func buildChatCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive session; one agent turn per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := session.New(session.Options{
				Config:   cfg,
				Prompter: newTerminalPrompter(),
				Logger:   newLogger(cfg),
			})
			if err != nil {
				return err
			}
			defer s.Close()

			var wg sync.WaitGroup
			wg.Add(1)
			go renderEvents(s.Events(), verbose, &wg)

			reader := bufio.NewReader(os.Stdin)
			fmt.Printf("sidekick %s, workspace %s (exit with Ctrl-D)\n", version, cfg.WorkspaceRoot)
			for {
				fmt.Print("> ")
				line, err := reader.ReadString('\n')
				if err != nil {
					fmt.Println()
					return nil
				}
				request := strings.TrimSpace(line)
				if request == "" {
					continue
				}
				if ctx.Err() != nil {
					return nil
				}
				outcome, err := s.Run(ctx, request)
				if err != nil {
					fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
					continue
				}
				fmt.Printf("\n%s\n", outcome.FinalText)
			}
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print every agent event")
	return cmd
}

func buildToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the registered tools and their schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := session.New(session.Options{
				Config: cfg,
				Logger: newLogger(cfg),
			})
			if err != nil {
				return err
			}
			defer s.Close()

			for _, spec := range s.Registry().List(tools.ListFilter{}) {
				cacheable := ""
				if spec.Cacheable {
					cacheable = " (cacheable)"
				}
				fmt.Printf("%s%s\n    %s\n", spec.Name, cacheable, spec.Description)
			}
			return nil
		},
	}
}
