package console

import (
	"fmt"

	weathersvc "github.com/diwise/weather-station/internal/pkg/application/services/weather"
	"github.com/fatih/color"
)

// ColorFor picks the display color of a weather summary from the description
// of its first weather condition. Unknown descriptions are printed as is.
func ColorFor(description string) *color.Color {
	switch description {
	case "clear sky":
		return color.New(color.FgHiYellow)
	case "few clouds", "scattered clouds", "broken clouds":
		return color.New(color.FgHiBlue)
	case "overcast clouds", "mist", "haze", "smoke", "sand", "dust", "fog", "squalls":
		return color.New(color.Faint)
	case "shower rain", "rain", "thunderstorm", "snow":
		return color.New(color.FgHiCyan)
	default:
		return color.New(color.Reset)
	}
}

func FormatWeather(w *weathersvc.WeatherResponse) string {
	return fmt.Sprintf(
		"weather in %s: %s\n > temp: %.1fC\n > humidity: %.1f%%\n > wind speed: %.1f m/s\n",
		w.Name,
		w.Description(),
		w.Main.Temp,
		w.Main.Humidity,
		w.Wind.Speed,
	)
}
