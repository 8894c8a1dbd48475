package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"companion/internal/store"

	"github.com/spf13/cobra"
)

// =============================================================================
// SESSION INSPECTION COMMANDS
// =============================================================================

var (
	sessionsLimit int
	sessionsJSON  bool
)

// sessionsCmd inspects stored conversations
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored conversations",
	Long: `List and inspect stored conversations.

Subcommands:
  list         - List conversations, most recently active first
  show <id>    - Show a conversation's state and turns
  escalations  - List turns that required escalation, newest first
  delete <id>  - Delete a conversation and its turns`,
	RunE: runSessionsList,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored conversations",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Show a conversation's state and turns",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsEscalationsCmd = &cobra.Command{
	Use:   "escalations",
	Short: "List escalated turns",
	RunE:  runSessionsEscalations,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	sessionsCmd.PersistentFlags().IntVarP(&sessionsLimit, "limit", "n", 20, "Maximum rows to show")
	sessionsCmd.PersistentFlags().BoolVar(&sessionsJSON, "json", false, "Print JSON")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsEscalationsCmd, sessionsDeleteCmd)
}

func openStore() (*store.Store, error) {
	return store.NewStore(cfg.DatabasePath(dataDir))
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	convs, err := st.ListConversations(sessionsLimit)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	w := cmd.OutOrStdout()
	if sessionsJSON {
		return writeJSON(w, convs)
	}
	if len(convs) == 0 {
		fmt.Fprintln(w, "No stored conversations.")
		return nil
	}

	fmt.Fprintln(w, heading("Conversations"))
	for _, c := range convs {
		flag := ""
		if c.State.IsPostCrisis {
			flag = " " + mutedStyle.Render("post-crisis")
		}
		fmt.Fprintf(w, "  %s  %-12s %3d turns  %s%s\n",
			c.ID, c.State.Mode, c.Turns, c.UpdatedAt.Local().Format("2006-01-02 15:04"), flag)
	}
	fmt.Fprintln(w, strings.Repeat("─", 50))
	fmt.Fprintf(w, "Total: %d\n", len(convs))
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	id := args[0]
	conv, err := st.LoadState(id)
	if err != nil {
		return err
	}
	turns, err := st.History(id, sessionsLimit)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if sessionsJSON {
		return writeJSON(w, struct {
			Conversation *store.Conversation `json:"conversation"`
			Turns        []store.TurnRecord  `json:"turns"`
		}{conv, turns})
	}

	if err := printState(w, st, id); err != nil {
		return err
	}
	fmt.Fprintln(w, heading("Turns"))
	for _, t := range turns {
		esc := ""
		if t.Escalated {
			esc = " " + warnStyle.Render("ESCALATED")
		}
		fmt.Fprintf(w, "  #%d %s %s mode:%s%s\n     %s\n",
			t.TurnIndex, tierBadge(t.Tier), t.Category, t.Mode, esc, t.Message)
	}
	return nil
}

func runSessionsEscalations(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	turns, err := st.Escalations(sessionsLimit)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if sessionsJSON {
		return writeJSON(w, turns)
	}
	if len(turns) == 0 {
		fmt.Fprintln(w, "No escalated turns.")
		return nil
	}
	fmt.Fprintln(w, heading("Escalations"))
	for _, t := range turns {
		fmt.Fprintf(w, "  %s  %s #%d %s %s\n     %s\n",
			t.CreatedAt.Local().Format("2006-01-02 15:04"), t.ConversationID, t.TurnIndex,
			tierBadge(t.Tier), t.Category, t.Message)
	}
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteConversation(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
