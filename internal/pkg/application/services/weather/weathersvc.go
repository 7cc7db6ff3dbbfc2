package weathersvc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/diwise/context-broker/pkg/ngsild/client"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"
)

type WeatherService interface {
	Lookup(ctx context.Context, apiKey string, loc Location) (*WeatherResponse, error)
}

// NewWeatherService returns a service that fetches current weather from apiURL.
// Observations are published to the context broker unless ctxBrokerClient is nil.
// A requestsPerMinute of zero or less disables request pacing.
func NewWeatherService(ctx context.Context, apiURL string, requestsPerMinute int, ctxBrokerClient client.ContextBrokerClient) WeatherService {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}

	return &weatherSvc{
		apiURL:          apiURL,
		limiter:         rate.NewLimiter(limit, 1),
		ctxBrokerClient: ctxBrokerClient,
	}
}

type weatherSvc struct {
	apiURL          string
	limiter         *rate.Limiter
	ctxBrokerClient client.ContextBrokerClient
}

var tracer = otel.Tracer("openweathermap-client")

func (ws *weatherSvc) Lookup(ctx context.Context, apiKey string, loc Location) (*WeatherResponse, error) {
	var err error

	ctx, span := tracer.Start(ctx, "lookup-current-weather")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	_, ctx, log := o11y.AddTraceIDToLoggerAndStoreInContext(
		span, logging.GetFromContext(ctx), ctx,
	)

	responseBody, err := ws.getCurrentWeather(ctx, apiKey, loc)
	if err != nil {
		return nil, err
	}

	log.Debug("received response", "body", string(responseBody))

	answer := &WeatherResponse{}
	err = json.Unmarshal(responseBody, answer)
	if err != nil {
		err = fmt.Errorf("failed to decode current weather: %w", err)
		return nil, err
	}

	if ws.ctxBrokerClient != nil {
		if pubErr := ws.publishWeatherObservation(ctx, answer); pubErr != nil {
			log.Error("unable to publish weather observation", "city", answer.Name, "err", pubErr.Error())
		}
	}

	return answer, nil
}
