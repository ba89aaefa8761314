package cmds

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/chatsync/pkg/backend/httpapi"
	"github.com/go-go-golems/chatsync/pkg/conversation"
	"github.com/go-go-golems/chatsync/pkg/messages"
	"github.com/go-go-golems/chatsync/pkg/selector"
	"github.com/go-go-golems/chatsync/pkg/settings"
)

func loadSettings() (*settings.Settings, error) {
	s, err := settings.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if s.Backend.UserID == "" {
		return nil, errors.New("no user id configured, pass --user-id or set CHATSYNC_BACKEND_USER_ID")
	}
	return s, nil
}

func newController(s *settings.Settings, options ...conversation.Option) *conversation.Controller {
	client := httpapi.NewClient(s.Backend.BaseURL, s.Backend.Timeout)
	return conversation.New(client, s.Backend.UserID, append([]conversation.Option{conversation.WithSettings(s)}, options...)...)
}

func addScopeFlag(cmd *cobra.Command) {
	cmd.Flags().String("scope", "general", "Conversation: general, agent:<id> or chatbox:<id>")
}

func scopeIntent(cmd *cobra.Command) (selector.Intent, error) {
	raw, err := cmd.Flags().GetString("scope")
	if err != nil {
		return selector.Intent{}, err
	}
	scope, err := messages.ParseScope(raw)
	if err != nil {
		return selector.Intent{}, err
	}
	return selector.IntentFor(scope), nil
}

// scopesFlag parses a list of scopes given as general, agent:<id> or chatbox:<id>.
func scopesFlag(cmd *cobra.Command, name string) ([]messages.Scope, error) {
	raw, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		return nil, err
	}
	ret := make([]messages.Scope, 0, len(raw))
	for _, r := range raw {
		scope, err := messages.ParseScope(r)
		if err != nil {
			return nil, errors.Wrapf(err, "--%s", name)
		}
		ret = append(ret, scope)
	}
	return ret, nil
}

func printRecord(w io.Writer, m messages.Message) {
	ts := "-"
	if m.Timestamp > 0 {
		ts = m.CreatedAt
	}
	user := m.UserText
	if m.Attachment != nil {
		name := m.Attachment.FileName
		if name == "" {
			name = string(m.Attachment.Kind)
		}
		user = fmt.Sprintf("[%s] %s", name, user)
	}
	if user != "" {
		_, _ = fmt.Fprintf(w, "%s  #%s  you: %s\n", ts, m.ID, user)
	}
	switch {
	case m.IsPlaceholder():
		_, _ = fmt.Fprintf(w, "%s  #%s  assistant is typing...\n", ts, m.ID)
	case m.AssistantText != "":
		_, _ = fmt.Fprintf(w, "%s  #%s  assistant: %s\n", ts, m.ID, m.AssistantText)
	}
}

func encode(w io.Writer, output string, v interface{}) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer func() {
			_ = enc.Close()
		}()
		return enc.Encode(v)
	default:
		return errors.Errorf("unknown output format %q", output)
	}
}

func printRecords(w io.Writer, output string, records []messages.Message) error {
	if output != "text" && output != "" {
		return encode(w, output, records)
	}
	for _, r := range records {
		printRecord(w, r)
	}
	return nil
}

func readAttachment(path string, kind messages.AttachmentKind) (*messages.Attachment, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %s", path)
	}
	return messages.NewFileAttachment(kind, path, b), nil
}
