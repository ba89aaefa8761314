package cmds

import (
	"github.com/spf13/cobra"

	"github.com/go-go-golems/chatsync/pkg/history"
	"github.com/go-go-golems/chatsync/pkg/messages"
)

func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print one page of a conversation's history",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			intent, err := scopeIntent(cmd)
			if err != nil {
				return err
			}
			scope, err := intent.Scope()
			if err != nil {
				return err
			}
			merge, err := scopesFlag(cmd, "merge")
			if err != nil {
				return err
			}
			offset, _ := cmd.Flags().GetInt("offset")
			limit, _ := cmd.Flags().GetInt("limit")
			output, _ := cmd.Flags().GetString("output")

			c := newController(s)
			var records []messages.Message
			if len(merge) > 0 {
				records = c.Loader().LoadScopes(cmd.Context(), append([]messages.Scope{scope}, merge...)...)
			} else {
				records = c.Loader().Load(cmd.Context(), scope, history.Window{Offset: offset, Limit: limit})
			}
			return printRecords(cmd.OutOrStdout(), output, records)
		},
	}
	addScopeFlag(cmd)
	cmd.Flags().Int("offset", 0, "Number of messages to skip")
	cmd.Flags().Int("limit", 0, "Number of messages to load (default: page size)")
	cmd.Flags().String("output", "text", "Output format (text, json, yaml)")
	cmd.Flags().StringSlice("merge", nil, "Merge the first page of these scopes into the output, oldest first")
	return cmd
}
