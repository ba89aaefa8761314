package cmds

import (
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/chatsync/pkg/grouping"
)

const defaultConversationsTemplate = `{{range .}}{{.Title | printf "%-16s"}} {{.Count | printf "%4d"}} msgs  {{when .Timestamp}}  {{.Preview | trunc 60}}
{{else}}no conversations yet
{{end}}`

func when(ms int64) string {
	if ms == 0 {
		return "unknown time"
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}

func NewConversationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List conversations, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			tpl, _ := cmd.Flags().GetString("template")
			output, _ := cmd.Flags().GetString("output")

			c := newController(s)
			rows := c.Conversations(cmd.Context())
			if output != "text" {
				return printRows(cmd, output, rows)
			}

			t, err := template.New("conversations").
				Funcs(sprig.TxtFuncMap()).
				Funcs(template.FuncMap{"when": when}).
				Parse(tpl)
			if err != nil {
				return errors.Wrap(err, "could not parse template")
			}
			return t.Execute(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().String("template", defaultConversationsTemplate, "Go template (with sprig functions) rendering the rows")
	cmd.Flags().String("output", "text", "Output format (text, json, yaml)")
	return cmd
}

type rowOutput struct {
	Title   string       `json:"title" yaml:"title"`
	Preview string       `json:"preview" yaml:"preview"`
	Row     grouping.Row `json:"row" yaml:"row"`
}

func printRows(cmd *cobra.Command, output string, rows []grouping.Row) error {
	out := make([]rowOutput, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowOutput{Title: r.Title(), Preview: r.Preview(), Row: r})
	}
	return encode(cmd.OutOrStdout(), output, out)
}
