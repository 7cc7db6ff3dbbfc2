package weathersvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const DefaultAPIURL string = "https://api.openweathermap.org/data/2.5/weather"

var httpClient = http.Client{
	Transport: otelhttp.NewTransport(http.DefaultTransport),
	Timeout:   10 * time.Second,
}

func currentWeatherURL(apiURL, apiKey string, loc Location) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse api url: %w", err)
	}

	q := u.Query()
	q.Set("q", loc.City+","+loc.CountryCode)
	q.Set("units", "metric")
	q.Set("appid", apiKey)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// redactAPIKey masks the appid query parameter so that the key never ends up
// in error messages, logs or spans.
func redactAPIKey(requestURL string) string {
	u, err := url.Parse(requestURL)
	if err != nil {
		return ""
	}

	q := u.Query()
	if q.Has("appid") {
		q.Set("appid", "REDACTED")
		u.RawQuery = q.Encode()
	}

	return u.String()
}

func (ws *weatherSvc) getCurrentWeather(ctx context.Context, apiKey string, loc Location) ([]byte, error) {
	var err error

	ctx, span := tracer.Start(ctx, "get-current-weather")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	log := logging.GetFromContext(ctx)

	requestURL, err := currentWeatherURL(ws.apiURL, apiKey, loc)
	if err != nil {
		return nil, err
	}

	if err = ws.limiter.Wait(ctx); err != nil {
		err = fmt.Errorf("request was not allowed by rate limiter: %w", err)
		return nil, err
	}

	apiReq, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		err = fmt.Errorf("failed to create http request: %w", err)
		return nil, err
	}
	apiReq.Header.Set("Accept", "application/json")

	apiResponse, err := httpClient.Do(apiReq)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = redactAPIKey(urlErr.URL)
		}
		err = fmt.Errorf("failed to retrieve current weather: %w", err)
		return nil, err
	}
	defer apiResponse.Body.Close()

	responseBody, err := io.ReadAll(apiResponse.Body)
	if err != nil {
		err = fmt.Errorf("failed to read response body: %w", err)
		return nil, err
	}

	if apiResponse.StatusCode != http.StatusOK {
		log.Debug("unexpected response", "status", apiResponse.StatusCode, "body", string(responseBody))
		err = newAPIError(apiResponse.StatusCode, responseBody)
		return nil, err
	}

	return responseBody, nil
}

func newAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		Message:    http.StatusText(statusCode),
	}

	reply := struct {
		Code    any    `json:"cod"`
		Message string `json:"message"`
	}{}

	if json.Unmarshal(body, &reply) == nil {
		if reply.Code != nil {
			apiErr.Code = fmt.Sprint(reply.Code)
		}
		if reply.Message != "" {
			apiErr.Message = reply.Message
		}
	}

	return apiErr
}
