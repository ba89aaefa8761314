package cmds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tcnksm/go-input"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/chatsync/pkg/conversation"
	"github.com/go-go-golems/chatsync/pkg/events"
	"github.com/go-go-golems/chatsync/pkg/messages"
	"github.com/go-go-golems/chatsync/pkg/metrics"
	"github.com/go-go-golems/chatsync/pkg/notify"
	"github.com/go-go-golems/chatsync/pkg/selector"
	"github.com/go-go-golems/chatsync/pkg/send"
	"github.com/go-go-golems/chatsync/pkg/store"
)

const chatHelp = `commands:
  /open <general|agent:<id>|chatbox:<id>>  switch conversation
  /refresh                                 reload the conversation
  /delete <id>                             delete a message
  /list                                    list conversations
  /quit                                    leave
`

// terminalView is a list view that can only follow the newest messages: it
// prints every record it has not printed yet.
type terminalView struct {
	mu      sync.Mutex
	w       io.Writer
	store   *store.Store
	printed map[string]struct{}
}

func newTerminalView(w io.Writer, st *store.Store) *terminalView {
	return &terminalView{w: w, store: st, printed: map[string]struct{}{}}
}

func (v *terminalView) ScrollToEnd() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, r := range v.store.View() {
		if _, ok := v.printed[r.ID]; ok {
			continue
		}
		v.printed[r.ID] = struct{}{}
		printRecord(v.w, r)
	}
}

// ScrollToOffset keeps the terminal where it is.
func (v *terminalView) ScrollToOffset(float64) {}

func (v *terminalView) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.printed = map[string]struct{}{}
}

// composer is the REPL line: a failed send puts the text back and it is
// offered as the default of the next prompt.
type composer struct {
	text string
}

func (c *composer) Text() string        { return c.text }
func (c *composer) SetText(text string) { c.text = text }

func NewChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively in one conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			intent, err := scopeIntent(cmd)
			if err != nil {
				return err
			}

			router, err := events.NewEventRouter(events.WithVerbose(viper.GetBool("verbose")))
			if err != nil {
				return err
			}
			defer func() {
				_ = router.Close()
			}()

			out := cmd.OutOrStdout()
			options := []conversation.Option{
				conversation.WithEventRouter(router),
				conversation.WithNotifier(notify.NotifierFunc(func(n notify.Notification) {
					_, _ = fmt.Fprintf(out, "! %s\n", n.Text)
				})),
			}
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			var metricsSrv *http.Server
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				options = append(options, conversation.WithMetrics(metrics.New(reg)))
				metricsSrv = &http.Server{
					Addr:              metricsAddr,
					Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
					ReadHeaderTimeout: 5 * time.Second,
				}
			}
			c := newController(s, options...)
			if printEvents, _ := cmd.Flags().GetBool("print-events"); printEvents {
				router.AddHandler("store-printer", events.TopicStore, events.StorePrinterFunc("store", cmd.ErrOrStderr()))
			}
			view := newTerminalView(out, c.Store())
			c.Scroll().Attach(view)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return router.Run(ctx)
			})
			if metricsSrv != nil {
				eg.Go(func() error {
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				eg.Go(func() error {
					<-ctx.Done()
					return metricsSrv.Close()
				})
			}
			eg.Go(func() error {
				defer cancel()
				<-router.Running()
				if err := c.Open(ctx, intent); err != nil {
					return err
				}
				return repl(ctx, c, view, out)
			})
			err = eg.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	addScopeFlag(cmd)
	cmd.Flags().Bool("print-events", false, "Print store events to stderr")
	cmd.Flags().String("metrics-addr", "", "Serve engine metrics on this address (e.g. :9091)")
	return cmd
}

func repl(ctx context.Context, c *conversation.Controller, view *terminalView, out io.Writer) error {
	ui := &input.UI{
		Writer: out,
		Reader: os.Stdin,
	}
	line := &composer{}

	_, _ = fmt.Fprint(out, chatHelp)
	for {
		if ctx.Err() != nil {
			return nil
		}
		answer, err := ui.Ask(fmt.Sprintf("[%s]", c.Scope()), &input.Options{
			Default:     line.Text(),
			HideDefault: line.Text() == "",
			HideOrder:   true,
		})
		if err != nil {
			if errors.Is(err, input.ErrInterrupted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line.SetText("")

		cmdName, arg, _ := strings.Cut(strings.TrimSpace(answer), " ")
		switch cmdName {
		case "/quit", "/exit":
			return nil
		case "/help":
			_, _ = fmt.Fprint(out, chatHelp)
		case "/open":
			scope, err := messages.ParseScope(strings.TrimSpace(arg))
			if err != nil {
				_, _ = fmt.Fprintf(out, "! %s\n", err)
				continue
			}
			view.Reset()
			if err := c.Open(ctx, selector.IntentFor(scope)); err != nil {
				_, _ = fmt.Fprintf(out, "! %s\n", err)
			}
		case "/refresh":
			c.Refresh(ctx)
		case "/delete":
			if err := c.Delete(ctx, strings.TrimSpace(arg)); err != nil {
				log.Debug().Err(err).Msg("delete failed")
			}
		case "/list":
			for _, r := range c.Conversations(ctx) {
				_, _ = fmt.Fprintf(out, "%-16s %4d  %s\n", r.Title(), r.Count, r.Preview())
			}
		default:
			res := c.Send(ctx, send.Input{Text: answer}, line)
			if res.Outcome == send.OutcomeRejected {
				log.Debug().Err(res.Reason).Msg("not sent")
			}
		}
	}
}
