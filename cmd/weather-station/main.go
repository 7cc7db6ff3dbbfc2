package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"syscall"

	"github.com/diwise/context-broker/pkg/ngsild/client"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	weathersvc "github.com/diwise/weather-station/internal/pkg/application/services/weather"
	"github.com/diwise/weather-station/internal/pkg/presentation/console"
	"github.com/spf13/cobra"
)

const serviceName string = "weather-station"

type flags struct {
	apiKey            string
	apiURL            string
	contextBrokerURL  string
	requestsPerMinute int
	noColor           bool
}

func main() {
	serviceVersion := version()

	logger := newLogger(os.Stderr, os.Getenv("LOG_LEVEL"), serviceVersion)
	ctx := logging.NewContextWithLogger(context.Background(), logger)

	if err := newRootCommand(ctx).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(ctx context.Context) *cobra.Command {
	f := flags{}

	cmd := &cobra.Command{
		Use:          serviceName,
		Short:        "Look up the current weather for a city from the terminal",
		Long:         "weather-station asks for a city name and a country code and prints the current weather reported by OpenWeatherMap.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	requestsPerMinute, err := strconv.Atoi(env.GetVariableOrDefault(ctx, "OPENWEATHER_REQUESTS_PER_MINUTE", "60"))
	if err != nil {
		logging.GetFromContext(ctx).Warn("ignoring invalid OPENWEATHER_REQUESTS_PER_MINUTE", "err", err.Error())
		requestsPerMinute = 60
	}

	cmd.Flags().StringVar(&f.apiKey, "api-key", env.GetVariableOrDefault(ctx, "OPENWEATHER_API_KEY", ""), "OpenWeatherMap API key, prompted for when empty")
	cmd.Flags().StringVar(&f.apiURL, "api-url", env.GetVariableOrDefault(ctx, "OPENWEATHER_API_URL", weathersvc.DefaultAPIURL), "current weather endpoint")
	cmd.Flags().StringVar(&f.contextBrokerURL, "context-broker-url", env.GetVariableOrDefault(ctx, "CONTEXT_BROKER_URL", ""), "publish observations to this NGSI-LD context broker")
	cmd.Flags().IntVar(&f.requestsPerMinute, "requests-per-minute", requestsPerMinute, "max lookups per minute, 0 disables pacing")
	cmd.Flags().BoolVar(&f.noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	return cmd
}

func run(ctx context.Context, f flags, in io.Reader, out, errOut io.Writer) error {
	logger := logging.GetFromContext(ctx)

	cleanup, err := tracing.Init(ctx, logger, serviceName, version())
	if err != nil {
		logger.Warn("failed to initialize tracing", "err", err.Error())
	} else {
		defer cleanup()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ctxBrokerClient client.ContextBrokerClient
	if f.contextBrokerURL != "" {
		logger.Info("publishing observations to context broker", "url", f.contextBrokerURL)
		ctxBrokerClient = client.NewContextBrokerClient(f.contextBrokerURL)
	}

	svc := weathersvc.NewWeatherService(ctx, f.apiURL, f.requestsPerMinute, ctxBrokerClient)

	options := []console.Option{console.WithAPIKey(f.apiKey)}
	if file, ok := in.(*os.File); ok {
		options = append(options, console.WithSecretReader(console.TerminalSecretReader(file)))
	}
	if f.noColor {
		options = append(options, console.WithoutColor())
	}

	done, err := console.NewSession(svc, in, out, errOut, options...).Start(ctx)
	if err != nil {
		return err
	}

	select {
	case <-done:
	case <-ctx.Done():
		logger.Debug("interrupted, shutting down")
	}

	return nil
}

func newLogger(w io.Writer, level, serviceVersion string) *slog.Logger {
	logLevel := slog.LevelWarn
	if level != "" {
		if err := logLevel.UnmarshalText([]byte(level)); err != nil {
			logLevel = slog.LevelWarn
		}
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})

	return slog.New(handler).With(
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
	)
}

func version() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	buildSettings := buildInfo.Settings
	infoMap := map[string]string{}
	for _, s := range buildSettings {
		infoMap[s.Key] = s.Value
	}

	sha := infoMap["vcs.revision"]
	if infoMap["vcs.modified"] == "true" {
		sha += "+"
	}

	return sha
}
