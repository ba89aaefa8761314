package cmds

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/chatsync/pkg/backend/httpapi"
	"github.com/go-go-golems/chatsync/pkg/backend/memory"
)

func newResponder(cmd *cobra.Command) (memory.Responder, error) {
	name, _ := cmd.Flags().GetString("responder")
	switch name {
	case "echo":
		return memory.EchoResponder{}, nil
	case "openai":
		apiKey, _ := cmd.Flags().GetString("openai-api-key")
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("the openai responder needs --openai-api-key or OPENAI_API_KEY")
		}
		baseURL, _ := cmd.Flags().GetString("openai-base-url")
		model, _ := cmd.Flags().GetString("openai-model")
		prompt, _ := cmd.Flags().GetString("system-prompt")
		options := []memory.OpenAIOption{}
		if prompt != "" {
			options = append(options, memory.WithSystemPrompt(prompt))
		}
		return memory.NewOpenAIResponder(apiKey, baseURL, model, options...), nil
	default:
		return nil, errors.Errorf("unknown responder %q (echo, openai)", name)
	}
}

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an in-memory chat backend for development",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			duplicateWindow, _ := cmd.Flags().GetDuration("duplicate-window")
			rateLimit, _ := cmd.Flags().GetInt("rate-limit")

			responder, err := newResponder(cmd)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			b := memory.New(
				memory.WithResponder(responder),
				memory.WithDuplicateWindow(duplicateWindow),
				memory.WithRateLimit(rateLimit, time.Minute),
			)
			mux := httpapi.NewHandler(b, log.Logger)
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

			srv := &http.Server{
				Addr:         addr,
				Handler:      mux,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Msg("starting chat backend")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
			case <-cmd.Context().Done():
			case err := <-errc:
				return errors.Wrap(err, "server failed")
			}

			log.Info().Msg("shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().String("addr", ":8080", "Listen address")
	cmd.Flags().String("responder", "echo", "Assistant responder (echo, openai)")
	cmd.Flags().String("openai-api-key", "", "OpenAI API key")
	cmd.Flags().String("openai-base-url", "", "OpenAI compatible API base URL")
	cmd.Flags().String("openai-model", "", "Model used by the openai responder")
	cmd.Flags().String("system-prompt", "", "System prompt of the openai responder")
	cmd.Flags().Duration("duplicate-window", 2*time.Second, "Identical sends inside this window get a 409")
	cmd.Flags().Int("rate-limit", 20, "Sends per minute and user before a 429 (0 disables)")
	return cmd
}
