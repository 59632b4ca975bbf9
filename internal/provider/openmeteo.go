package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"skycover/internal/config"
	"skycover/internal/models"
)

var ErrUnsupportedParameter = errors.New("parameter not available from provider")

// Observation is a single reading for one location and parameter. Values are
// rounded to whole units: celsius, millimeters, km/h and percent.
type Observation struct {
	Value      int64
	ObservedAt time.Time
}

// OpenMeteo fetches current conditions from the Open-Meteo forecast API.
// Calls go through a circuit breaker so a flapping upstream stops being
// hammered until it recovers.
type OpenMeteo struct {
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteo(cfg config.ProviderConfig) *OpenMeteo {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenMeteo{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openmeteo",
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		}),
	}
}

// Observe reads the current value of one weather parameter at a location
// given as "lat,lon".
func (p *OpenMeteo) Observe(ctx context.Context, location, parameter string) (Observation, error) {
	lat, lon, err := parseLocation(location)
	if err != nil {
		return Observation{}, err
	}

	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	values.Set("current", "temperature_2m,precipitation,wind_speed_10m,relative_humidity_2m")

	raw, err := p.circuit.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
		if err != nil {
			return nil, err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("openmeteo: unexpected status %d", resp.StatusCode)
		}
		var payload openMeteoResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, err
		}
		return payload, nil
	})
	if err != nil {
		return Observation{}, err
	}
	payload := raw.(openMeteoResponse)

	var v float64
	switch parameter {
	case models.ParameterTemperature:
		v = payload.Current.Temperature
	case models.ParameterRainfall:
		v = payload.Current.Precipitation
	case models.ParameterWind:
		v = payload.Current.WindSpeed
	case models.ParameterHumidity:
		v = payload.Current.Humidity
	default:
		return Observation{}, ErrUnsupportedParameter
	}

	ts, err := time.Parse("2006-01-02T15:04", payload.Current.Time)
	if err != nil {
		ts = time.Now()
	}
	return Observation{
		Value:      int64(math.Round(v)),
		ObservedAt: ts.UTC(),
	}, nil
}

type openMeteoResponse struct {
	Current struct {
		Time          string  `json:"time"`
		Temperature   float64 `json:"temperature_2m"`
		Precipitation float64 `json:"precipitation"`
		WindSpeed     float64 `json:"wind_speed_10m"`
		Humidity      float64 `json:"relative_humidity_2m"`
	} `json:"current"`
}

func parseLocation(location string) (float64, float64, error) {
	parts := strings.SplitN(location, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("location %q is not lat,lon", location)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse longitude: %w", err)
	}
	return lat, lon, nil
}
