package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/weather-station/internal/pkg/application/services"
	weathersvc "github.com/diwise/weather-station/internal/pkg/application/services/weather"
	"github.com/fatih/color"
)

type Session interface {
	services.Starter
	Run(ctx context.Context) error
}

type Option func(*session)

// WithAPIKey skips the API key prompt.
func WithAPIKey(apiKey string) Option {
	return func(s *session) {
		s.apiKey = apiKey
	}
}

// WithSecretReader reads the API key through readSecret instead of the
// regular input. A nil reader is ignored.
func WithSecretReader(readSecret SecretReader) Option {
	return func(s *session) {
		s.readSecret = readSecret
	}
}

func WithoutColor() Option {
	return func(s *session) {
		s.colorize = false
	}
}

func NewSession(svc weathersvc.WeatherService, in io.Reader, out, errOut io.Writer, options ...Option) Session {
	s := &session{
		svc:      svc,
		in:       newLineReader(in),
		out:      out,
		errOut:   errOut,
		colorize: true,
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

type session struct {
	svc        weathersvc.WeatherService
	in         *lineReader
	out        io.Writer
	errOut     io.Writer
	apiKey     string
	readSecret SecretReader
	colorize   bool
}

func (s *session) Start(ctx context.Context) (chan struct{}, error) {
	done := make(chan struct{})

	go func() {
		defer close(done)

		if err := s.Run(ctx); err != nil {
			logging.GetFromContext(ctx).Error("console session ended with error", "err", err.Error())
		}
	}()

	return done, nil
}

func (s *session) Run(ctx context.Context) error {
	log := logging.GetFromContext(ctx)

	s.println(color.New(color.FgHiMagenta), "Welcome to Weather Station")

	apiKey := s.apiKey
	if apiKey == "" {
		s.println(color.New(color.FgHiYellow), "Please supply a valid OpenWeather API key")

		var err error
		apiKey, err = s.readAPIKey()
		if err != nil {
			return endOfInput(err)
		}
	}

	for ctx.Err() == nil {
		s.println(color.New(color.FgHiMagenta), "Please enter a City Name")
		city, err := s.in.ReadLine()
		if err != nil {
			return endOfInput(err)
		}

		s.println(color.New(color.FgHiCyan), "Please enter a Country Code")
		countryCode, err := s.in.ReadLine()
		if err != nil {
			return endOfInput(err)
		}

		w, err := s.svc.Lookup(ctx, apiKey, weathersvc.Location{City: city, CountryCode: countryCode})
		if err != nil {
			log.Debug("lookup failed", "city", city, "country", countryCode, "err", err.Error())
			fmt.Fprintf(s.errOut, "Error: %s\n", err.Error())
		} else {
			s.println(ColorFor(w.Description()), FormatWeather(w))
		}

		s.println(color.New(color.FgHiRed), "Would you like to check another location? (y/n)")
		answer, err := s.in.ReadLine()
		if err != nil {
			return endOfInput(err)
		}

		if answer == "n" || answer == "N" {
			return nil
		}
	}

	return nil
}

func (s *session) readAPIKey() (string, error) {
	if s.readSecret == nil {
		return s.in.ReadLine()
	}

	key, err := s.readSecret()
	fmt.Fprintln(s.out)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(key)), nil
}

func (s *session) println(c *color.Color, text string) {
	if !s.colorize {
		c.DisableColor()
	}
	c.Fprintln(s.out, text)
}

func endOfInput(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("failed to read input: %w", err)
}
