package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"companion/internal/catalog"
	"companion/internal/generator"
	"companion/internal/session"
	"companion/internal/store"
	"companion/internal/types"
	"companion/internal/usage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	chatConversation string
	chatWatch        bool
	chatPlain        bool
)

// chatCmd runs an interactive, store-backed conversation.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start or resume a conversation",
	Long: `Reads messages from stdin, one per line, and prints each reply.
State is stored after every turn, so a conversation can be resumed with
--conversation.

Commands:
  /safe   - the next message is sent with the crisis confirmed
  /wait   - the next message requests the counselor waiting room
  /state  - show the stored facts and mode
  /quit   - leave the conversation`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatConversation, "conversation", "", "Resume this conversation id")
	chatCmd.Flags().BoolVar(&chatWatch, "watch", false, "Hot-reload the catalog file while chatting")
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "Print replies without markdown rendering")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	st, err := store.NewStore(cfg.DatabasePath(dataDir))
	if err != nil {
		return err
	}
	defer st.Close()

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	pipelines, err := session.NewReloadable(cat, cfg.PipelineSettings())
	if err != nil {
		return err
	}

	if (chatWatch || cfg.Catalog.Watch) && cfg.Catalog.Path != "" {
		w, err := catalog.NewWatcher(cfg.Catalog.Path, pipelines.OnReload)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			w.Stop()
			return err
		}
		defer w.Stop()
		logger.Info("Watching catalog", zap.String("path", cfg.Catalog.Path))
	}

	tracker, err := usage.NewTracker(dataDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := tracker.Save(); err != nil {
			logger.Warn("Failed to save usage", zap.Error(err))
		}
	}()
	ctx = usage.NewContext(ctx, tracker)

	gen, err := generator.FromConfig(ctx, cfg.Generator)
	if err != nil {
		return err
	}
	m := session.NewManager(st, pipelines, gen)

	id := chatConversation
	if id == "" {
		if id, err = m.Start(); err != nil {
			return err
		}
	} else if _, err := st.LoadState(id); err != nil {
		return err
	}

	var render func(string) string
	if !chatPlain {
		r := newRenderer(80)
		render = func(text string) string { return renderReply(r, text) }
	}
	return chatLoop(ctx, m, id, cmd.InOrStdin(), cmd.OutOrStdout(), render)
}

func plainText(s string) string { return s }

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// chatLoop reads one message per line until EOF, /quit or ctx is done.
// A nil render prints replies and the status line unstyled.
func chatLoop(ctx context.Context, m *session.Manager, id string, in io.Reader, w io.Writer, render func(string) string) error {
	styled := render != nil
	if render == nil {
		render = plainText
	}
	fmt.Fprintf(w, "Conversation %s. Type /quit to leave.\n", id)

	var opts session.TurnOptions
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(w, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(w)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/safe":
			opts.CrisisConfirmed = true
			fmt.Fprintln(w, "The next message will be sent with the crisis confirmed.")
			continue
		case "/wait":
			opts.RequestedMode = types.ModeWaitingRoom
			fmt.Fprintln(w, "The next message will request the waiting room.")
			continue
		case "/state":
			if err := printState(w, m.Store(), id); err != nil {
				return err
			}
			continue
		}

		reply, err := m.Handle(ctx, id, line, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		opts = session.TurnOptions{}

		if styled {
			fmt.Fprintln(w, statusLine(reply.Output))
		} else {
			fmt.Fprintf(w, "[%s %s mode:%s]\n", reply.Output.Tier, reply.Output.Analysis.Category, reply.Output.Mode)
		}
		fmt.Fprintln(w, render(reply.Text))
		if reply.Question != "" {
			fmt.Fprintln(w, reply.Question)
		}
		if !reply.Stored {
			logger.Warn("Turn not stored", zap.String("conversation", id), zap.Int("turn", reply.Output.TurnIndex))
		}
	}
}

func printState(w io.Writer, st *store.Store, id string) error {
	conv, err := st.LoadState(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "mode: %s  turns: %d  post-crisis: %v  trend: %s\n",
		conv.State.Mode, conv.Turns, conv.State.IsPostCrisis, conv.State.Tracker.Trend)
	for _, key := range conv.State.Facts.Known() {
		fmt.Fprintf(w, "  %s: %s\n", key, conv.State.Facts.Get(key))
	}
	return nil
}
