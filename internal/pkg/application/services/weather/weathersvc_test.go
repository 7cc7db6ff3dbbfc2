package weathersvc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/diwise/context-broker/pkg/ngsild"
	ngsierrors "github.com/diwise/context-broker/pkg/ngsild/errors"
	"github.com/diwise/context-broker/pkg/ngsild/types"
	test "github.com/diwise/context-broker/pkg/test"
	. "github.com/diwise/service-chassis/pkg/test/http"
	"github.com/diwise/service-chassis/pkg/test/http/expects"
	"github.com/diwise/service-chassis/pkg/test/http/response"
	"github.com/matryer/is"
)

func TestLookup(t *testing.T) {
	is, _, ws := setupMockWeatherService(t, http.StatusOK, responseJSON)

	w, err := ws.Lookup(context.Background(), "apikey", Location{City: "London", CountryCode: "GB"})

	is.NoErr(err)
	is.Equal(w.Name, "London")
	is.Equal(w.Description(), "light intensity drizzle")
	is.Equal(w.Main.Temp, 7.17)
	is.Equal(w.Main.Humidity, 81.0)
	is.Equal(w.Wind.Speed, 4.1)
}

func TestLookupRequestsMetricUnitsForCityAndCountry(t *testing.T) {
	is := is.New(t)

	var query url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(responseJSON))
	}))
	defer srv.Close()

	ws := NewWeatherService(context.Background(), srv.URL+"/data/2.5/weather", 0, nil)

	_, err := ws.Lookup(context.Background(), "apikey", Location{City: "New York", CountryCode: "US"})

	is.NoErr(err)
	is.Equal(query.Get("q"), "New York,US")
	is.Equal(query.Get("units"), "metric")
	is.Equal(query.Get("appid"), "apikey")
}

func TestLookupFailsWithAPIError(t *testing.T) {
	is, _, ws := setupMockWeatherService(t, http.StatusNotFound, `{"cod":"404","message":"city not found"}`)

	_, err := ws.Lookup(context.Background(), "apikey", Location{City: "Nowhere", CountryCode: "XX"})

	is.True(err != nil) // expected an error but got none

	var apiErr *APIError
	is.True(errors.As(err, &apiErr))
	is.Equal(apiErr.StatusCode, http.StatusNotFound)
	is.Equal(apiErr.Code, "404")
	is.Equal(apiErr.Message, "city not found")
}

func TestLookupFailsWithStatusTextWhenBodyIsEmpty(t *testing.T) {
	is, _, ws := setupMockWeatherService(t, http.StatusUnauthorized, "")

	_, err := ws.Lookup(context.Background(), "", Location{City: "London", CountryCode: "GB"})

	var apiErr *APIError
	is.True(errors.As(err, &apiErr))
	is.Equal(apiErr.Message, "Unauthorized")
}

func TestLookupFailsOnMalformedResponse(t *testing.T) {
	is, ctxbroker, ws := setupMockWeatherService(t, http.StatusOK, `{"weather":`)

	_, err := ws.Lookup(context.Background(), "apikey", Location{City: "London", CountryCode: "GB"})

	is.True(err != nil) // expected a decode error but got none
	is.Equal(len(ctxbroker.MergeEntityCalls()), 0)
}

func TestLookupIsPacedByRateLimiter(t *testing.T) {
	is := is.New(t)
	owmMock := NewMockServiceThat(
		Expects(is, expects.AnyInput()),
		Returns(
			response.Code(http.StatusOK),
			response.Body([]byte(responseJSON)),
		),
	)

	ws := NewWeatherService(context.Background(), owmMock.URL(), 1, nil)
	loc := Location{City: "London", CountryCode: "GB"}

	_, err := ws.Lookup(context.Background(), "apikey", loc)
	is.NoErr(err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = ws.Lookup(ctx, "apikey", loc)
	is.True(err != nil) // second lookup within the same minute should not be allowed before the deadline
}

func TestDescriptionWithoutWeatherConditions(t *testing.T) {
	is := is.New(t)

	w := WeatherResponse{Name: "London"}

	is.Equal(w.Description(), "")
}

func TestLookupPublishesWeatherObservation(t *testing.T) {
	is, ctxbroker, ws := setupMockWeatherService(t, http.StatusOK, responseJSON)

	_, err := ws.Lookup(context.Background(), "apikey", Location{City: "London", CountryCode: "GB"})
	is.NoErr(err)

	is.Equal(len(ctxbroker.MergeEntityCalls()), 1)  // should first attempt to merge the observation
	is.Equal(len(ctxbroker.CreateEntityCalls()), 1) // on failure to merge due to not found error, should create instead

	e := ctxbroker.CreateEntityCalls()[0].Entity
	eBytes, _ := e.MarshalJSON()
	entity := string(eBytes)

	is.True(strings.Contains(entity, `"id":"urn:ngsi-ld:WeatherObserved:openweathermap:2643743"`))
	is.True(strings.Contains(entity, `"dateObserved":{"type":"Property","value":{"@type":"DateTime","@value":"2019-06-12T14:44:05Z"}}`))
	is.True(strings.Contains(entity, `"value":0.81`))
}

func TestLookupSucceedsWhenPublishFails(t *testing.T) {
	is, ctxbroker, ws := setupMockWeatherService(t, http.StatusOK, responseJSON)
	ctxbroker.MergeEntityFunc = func(ctx context.Context, entityID string, fragment types.EntityFragment, headers map[string][]string) (*ngsild.MergeEntityResult, error) {
		return nil, errors.New("broker unavailable")
	}

	w, err := ws.Lookup(context.Background(), "apikey", Location{City: "London", CountryCode: "GB"})

	is.NoErr(err)
	is.Equal(w.Name, "London")
	is.Equal(len(ctxbroker.CreateEntityCalls()), 0) // only not found errors should result in a create
}

func TestLookupDoesNotExposeAPIKeyWhenRequestFails(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	apiURL := srv.URL + "/data/2.5/weather"
	srv.Close()

	ws := NewWeatherService(context.Background(), apiURL, 0, nil)

	_, err := ws.Lookup(context.Background(), "secretkey", Location{City: "London", CountryCode: "GB"})

	is.True(err != nil) // expected a transport error but got none
	is.True(!strings.Contains(err.Error(), "secretkey"))
	is.True(strings.Contains(err.Error(), "appid=REDACTED"))
}

func TestPublishIncludesWindForLightBreeze(t *testing.T) {
	is, ctxbroker, ws := setupMockWeatherService(t, http.StatusOK, lightBreezeResponseJSON)

	_, err := ws.Lookup(context.Background(), "apikey", Location{City: "Sundsvall", CountryCode: "SE"})
	is.NoErr(err)

	e := ctxbroker.CreateEntityCalls()[0].Entity
	eBytes, _ := e.MarshalJSON()

	is.True(strings.Contains(string(eBytes), `"windSpeed"`))
}

func TestPublishOmitsWindWhenCalm(t *testing.T) {
	is := is.New(t)

	w := &WeatherResponse{Name: "Sundsvall", Dt: 1560350645}

	is.Equal(len(convertWeatherResponseToFiwareEntity(w)), 5) // location, name, dateObserved, temperature and humidity
}

func TestObservationIDWithoutCityID(t *testing.T) {
	is := is.New(t)

	w := &WeatherResponse{Name: "Sundsvall Centrum"}
	w.Sys.Country = "SE"

	is.Equal(observationID(w), "sundsvallcentrum:se")
}

func setupMockWeatherService(t *testing.T, owmStatusCode int, owmBody string) (*is.I, *test.ContextBrokerClientMock, WeatherService) {
	is := is.New(t)
	owmMock := NewMockServiceThat(
		Expects(is, expects.AnyInput()),
		Returns(
			response.Code(owmStatusCode),
			response.Body([]byte(owmBody)),
		),
	)

	ctxBroker := &test.ContextBrokerClientMock{
		CreateEntityFunc: func(ctx context.Context, entity types.Entity, headers map[string][]string) (*ngsild.CreateEntityResult, error) {
			return nil, nil
		},
		MergeEntityFunc: func(ctx context.Context, entityID string, fragment types.EntityFragment, headers map[string][]string) (*ngsild.MergeEntityResult, error) {
			return nil, ngsierrors.ErrNotFound
		},
	}
	ws := NewWeatherService(context.Background(), owmMock.URL(), 0, ctxBroker)

	return is, ctxBroker, ws
}

const responseJSON string = `{"coord":{"lon":-0.13,"lat":51.51},"weather":[{"id":300,"main":"Drizzle","description":"light intensity drizzle","icon":"09d"}],"base":"stations","main":{"temp":7.17,"feels_like":4.2,"pressure":1012,"humidity":81,"temp_min":6.11,"temp_max":8.33},"visibility":10000,"wind":{"speed":4.1,"deg":80},"clouds":{"all":90},"dt":1560350645,"sys":{"type":1,"id":5091,"message":0.0103,"country":"GB","sunrise":1560312186,"sunset":1560371848},"timezone":3600,"id":2643743,"name":"London","cod":200}`

const lightBreezeResponseJSON string = `{"coord":{"lon":17.3063,"lat":62.3908},"weather":[{"description":"clear sky"}],"main":{"temp":-2.1,"humidity":90},"wind":{"speed":0.005,"deg":0},"dt":1560350645,"sys":{"country":"SE"},"id":2670781,"name":"Sundsvall","cod":200}`
