package weathersvc

import "fmt"

type Location struct {
	City        string
	CountryCode string
}

type coord struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

type Weather struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type Main struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	Pressure  float64 `json:"pressure"`
	Humidity  float64 `json:"humidity"`
}

type Wind struct {
	Speed     float64 `json:"speed"`
	Direction float64 `json:"deg"`
}

type WeatherResponse struct {
	ID      int64     `json:"id"`
	Name    string    `json:"name"`
	Coord   coord     `json:"coord"`
	Weather []Weather `json:"weather"`
	Main    Main      `json:"main"`
	Wind    Wind      `json:"wind"`
	Dt      int64     `json:"dt"`
	Sys     struct {
		Country string `json:"country"`
	} `json:"sys"`
}

// Description returns the description of the first weather condition, the
// only one that is ever shown.
func (r *WeatherResponse) Description() string {
	if len(r.Weather) == 0 {
		return ""
	}
	return r.Weather[0].Description
}

// APIError is returned when openweathermap answers with anything but 200 OK.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openweathermap returned status %d: %s", e.StatusCode, e.Message)
}
