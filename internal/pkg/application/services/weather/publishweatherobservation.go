package weathersvc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/diwise/context-broker/pkg/datamodels/fiware"
	ngsierrors "github.com/diwise/context-broker/pkg/ngsild/errors"
	"github.com/diwise/context-broker/pkg/ngsild/types"
	"github.com/diwise/context-broker/pkg/ngsild/types/entities"
	"github.com/diwise/context-broker/pkg/ngsild/types/entities/decorators"
	"github.com/diwise/context-broker/pkg/ngsild/types/properties"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
)

func (ws *weatherSvc) publishWeatherObservation(ctx context.Context, observation *WeatherResponse) (err error) {
	ctx, span := tracer.Start(ctx, "publish-weatherobservation")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	attributes := convertWeatherResponseToFiwareEntity(observation)

	fragment, _ := entities.NewFragment(attributes...)
	entityID := fiware.WeatherObservedIDPrefix + "openweathermap:" + observationID(observation)

	headers := map[string][]string{"Content-Type": {"application/ld+json"}}

	_, err = ws.ctxBrokerClient.MergeEntity(ctx, entityID, fragment, headers)
	if err != nil {
		if !errors.Is(err, ngsierrors.ErrNotFound) {
			err = fmt.Errorf("failed to merge entity: %s", err.Error())
			return
		}

		var entity types.Entity
		entity, err = entities.New(entityID, fiware.WeatherObservedTypeName, attributes...)
		if err != nil {
			err = fmt.Errorf("entities.New failed: %s", err.Error())
			return
		}

		_, err = ws.ctxBrokerClient.CreateEntity(ctx, entity, headers)
		if err != nil {
			err = fmt.Errorf("failed to post weather observed to context broker: %s", err.Error())
			return
		}
	}

	return nil
}

func observationID(observation *WeatherResponse) string {
	if observation.ID != 0 {
		return strconv.FormatInt(observation.ID, 10)
	}

	id := strings.ToLower(strings.ReplaceAll(observation.Name, " ", ""))
	if observation.Sys.Country != "" {
		id = id + ":" + strings.ToLower(observation.Sys.Country)
	}
	return id
}

func convertWeatherResponseToFiwareEntity(observation *WeatherResponse) []entities.EntityDecoratorFunc {
	observedAt := time.Now().UTC()
	if observation.Dt > 0 {
		observedAt = time.Unix(observation.Dt, 0).UTC()
	}
	utcTime := observedAt.Format(time.RFC3339)

	attributes := append(
		make([]entities.EntityDecoratorFunc, 0, 9),
		decorators.Location(observation.Coord.Lat, observation.Coord.Lon),
		decorators.Name(observation.Name),
		decorators.DateObserved(utcTime),
		number("temperature", observation.Main.Temp, utcTime),
		number("humidity", observation.Main.Humidity/100.0, utcTime),
	)

	if observation.Wind.Direction != 0 || observation.Wind.Speed != 0 {
		attributes = append(
			attributes,
			number("windDirection", observation.Wind.Direction, utcTime),
			number("windSpeed", observation.Wind.Speed, utcTime),
		)
	}

	if desc := observation.Description(); desc != "" {
		attributes = append(attributes, decorators.Description(desc))
	}

	return attributes
}

func number(property string, value float64, at string) entities.EntityDecoratorFunc {
	return decorators.Number(property, value, properties.ObservedAt(at))
}
