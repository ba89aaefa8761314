package cmds

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/chatsync/pkg/conversation"
	"github.com/go-go-golems/chatsync/pkg/messages"
	"github.com/go-go-golems/chatsync/pkg/notify"
	"github.com/go-go-golems/chatsync/pkg/send"
)

func NewSendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [text...]",
		Short: "Send one message and print the reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			intent, err := scopeIntent(cmd)
			if err != nil {
				return err
			}
			image, _ := cmd.Flags().GetString("image")
			document, _ := cmd.Flags().GetString("document")
			voice, _ := cmd.Flags().GetString("voice")

			input := send.Input{Text: strings.Join(args, " ")}
			for _, a := range []struct {
				path string
				kind messages.AttachmentKind
			}{
				{image, messages.AttachmentImage},
				{document, messages.AttachmentDocument},
				{voice, messages.AttachmentVoice},
			} {
				if a.path == "" {
					continue
				}
				if input.Attachment != nil {
					return errors.New("only one of --image, --document and --voice can be given")
				}
				input.Attachment, err = readAttachment(a.path, a.kind)
				if err != nil {
					return err
				}
			}

			notes := &notify.Recorder{}
			c := newController(s, conversation.WithNotifier(notes))
			if err := c.Open(cmd.Context(), intent); err != nil {
				return err
			}

			res := c.Send(cmd.Context(), input, nil)
			switch res.Outcome {
			case send.OutcomeReconciled:
				printRecord(cmd.OutOrStdout(), *res.AssistantRecord)
				return nil
			case send.OutcomeDuplicate:
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "message was already accepted")
				return nil
			case send.OutcomeRejected:
				return errors.Wrap(res.Reason, "message not sent")
			default:
				for _, n := range notes.All() {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), n.Text)
				}
				return errors.Wrap(res.Err, "message not sent")
			}
		},
	}
	addScopeFlag(cmd)
	cmd.Flags().String("image", "", "Attach an image file")
	cmd.Flags().String("document", "", "Attach a document file")
	cmd.Flags().String("voice", "", "Attach a voice recording")
	return cmd
}
