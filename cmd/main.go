package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"chat-relay/handler"
	"chat-relay/internal/config"
	"chat-relay/internal/integrations/agent"
	"chat-relay/internal/integrations/paramstore"
	"chat-relay/internal/logger"
	"chat-relay/internal/middleware"
	"chat-relay/internal/repository"
	"chat-relay/internal/sanitize"
	"chat-relay/internal/telemetry"
	"chat-relay/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("chat-relay exited", "err", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "chat-relay",
		Short:         "Relay chat messages to a hosted AI agent with sanitization on both sides",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Inside Lambda the runtime API is always set; anywhere else run the HTTP server.
		RunE: func(cmd *cobra.Command, _ []string) error {
			if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
				return runLambda(cmd.Context(), configPath)
			}
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (default etc/chat-relay.yaml when present)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "lambda",
			Short: "Run as an AWS Lambda behind API Gateway",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runLambda(cmd.Context(), configPath)
			},
		},
		newSanitizeCmd(),
	)
	return root
}

func newSanitizeCmd() *cobra.Command {
	var response, blocks bool
	cmd := &cobra.Command{
		Use:   "sanitize",
		Short: "Sanitize text read from stdin",
		Long:  "Reads text from stdin and writes it sanitized as a chat message, or with --response as an agent reply.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			var clean string
			if response {
				clean = sanitize.Response(string(raw))
			} else {
				clean = sanitize.Input(string(raw))
			}
			out := cmd.OutOrStdout()
			if blocks {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(sanitize.Format(clean))
			}
			_, err = fmt.Fprintln(out, clean)
			return err
		},
	}
	cmd.Flags().BoolVar(&response, "response", false, "apply the agent reply rules instead of the chat message rules")
	cmd.Flags().BoolVar(&blocks, "blocks", false, "print the result as formatted display blocks in JSON")
	return cmd
}

type app struct {
	cfg     *config.Config
	handler *handler.Handler
	metrics *telemetry.Metrics
}

// build wires every dependency from configuration. It fails before any
// request is served when the agent endpoint or access key is missing.
func build(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
	}

	if cfg.Agent.AccessKey == "" && cfg.Agent.AccessKeyParam != "" {
		ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, fmt.Errorf("create SSM client: %w", err)
		}
		if err := cfg.ResolveAccessKey(ctx, ps); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Init(cfg.Log, cfg.Agent.AccessKey)

	agentClient, err := agent.NewClient(cfg.Agent.Endpoint, cfg.Agent.AccessKey)
	if err != nil {
		return nil, fmt.Errorf("create agent client: %w", err)
	}

	metrics := telemetry.NewMetrics()
	opts := []usecase.Option{usecase.WithRecorder(metrics)}
	if cfg.Audit.Table != "" {
		audit, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.Audit.Table, cfg.AuditTTL())
		if err != nil {
			return nil, fmt.Errorf("create audit client: %w", err)
		}
		opts = append(opts, usecase.WithAuditWriter(audit))
	}

	relay, err := usecase.NewRelayService(agentClient, opts...)
	if err != nil {
		return nil, fmt.Errorf("create relay service: %w", err)
	}
	h, err := handler.NewHandler(relay)
	if err != nil {
		return nil, fmt.Errorf("create handler: %w", err)
	}
	return &app{cfg: cfg, handler: h, metrics: metrics}, nil
}

func runLambda(ctx context.Context, configPath string) error {
	a, err := build(ctx, configPath)
	if err != nil {
		return err
	}
	slog.Info("starting lambda handler", "audit_table", a.cfg.Audit.Table)
	lambda.StartWithOptions(a.handler.Handle, lambda.WithContext(ctx))
	return nil
}

func runServe(ctx context.Context, configPath string) error {
	a, err := build(ctx, configPath)
	if err != nil {
		return err
	}
	if a.cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	routes, err := handler.Routes(a.handler, handler.RouteOptions{
		AllowOrigins:   a.cfg.Server.AllowOrigins,
		TrustedProxies: a.cfg.Server.TrustedProxies,
		Limiter:        middleware.NewRateLimiter(a.cfg.RateLimit.RequestsPerSecond, a.cfg.RateLimit.Burst),
		Metrics:        a.metrics.Handler(),
	})
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           routes,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
