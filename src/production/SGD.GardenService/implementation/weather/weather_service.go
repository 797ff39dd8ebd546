package weather

import (
	"context"
	"errors"
	"net/url"

	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/client"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
)

// forecastResponse is the subset of the OpenWeatherMap forecast payload we read
type forecastResponse struct {
	List []forecastItem `json:"list"`
}

type forecastItem struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Rain *struct {
		ThreeHours float64 `json:"3h"`
	} `json:"rain"`
}

func (i forecastItem) description() string {
	if len(i.Weather) == 0 {
		return ""
	}
	return i.Weather[0].Description
}

type Service struct {
	cfg    config.WeatherConfig
	http   *client.JSONClient
	logger *logger.Logger
}

func NewService(cfg config.WeatherConfig, httpClient *client.JSONClient, log *logger.Logger) *Service {
	return &Service{cfg: cfg, http: httpClient, logger: log.WithComponent("weather")}
}

// Forecast returns the current and next 3h slot for location.
// Any failure yields the fallback forecast.
func (s *Service) Forecast(ctx context.Context, location string) sgdmodels.WeatherForecast {
	if location == "" {
		location = s.cfg.DefaultLocation
	}

	forecast, err := s.fetch(ctx, location)
	if err != nil {
		s.logger.Logger.Error().Err(err).Str("location", location).Msg("Failed to fetch weather forecast")
		return sgdmodels.FallbackForecast()
	}

	s.logger.Logger.Info().
		Str("location", location).
		Float64("current_temp", forecast.CurrentTemp).
		Str("current", forecast.CurrentDescription).
		Float64("next_temp", forecast.NextTemp).
		Bool("rain_expected", forecast.RainExpected).
		Msg("Weather forecast")
	return forecast
}

func (s *Service) fetch(ctx context.Context, location string) (sgdmodels.WeatherForecast, error) {
	query := url.Values{}
	query.Set("q", location)
	query.Set("appid", s.cfg.APIKey)
	query.Set("units", "metric")
	query.Set("lang", s.cfg.Language)
	query.Set("cnt", "2")

	var resp forecastResponse
	if err := s.http.Get(ctx, s.cfg.APIURL, query, &resp); err != nil {
		return sgdmodels.WeatherForecast{}, err
	}
	return toForecast(resp)
}

func toForecast(resp forecastResponse) (sgdmodels.WeatherForecast, error) {
	if len(resp.List) == 0 {
		return sgdmodels.WeatherForecast{}, errors.New("forecast has no items")
	}

	current := resp.List[0]
	forecast := sgdmodels.WeatherForecast{
		CurrentDescription: current.description(),
		CurrentTemp:        current.Main.Temp,
		CurrentHumidity:    current.Main.Humidity,
	}

	if len(resp.List) == 1 {
		forecast.NextDescription = forecast.CurrentDescription
		forecast.NextTemp = forecast.CurrentTemp
		forecast.NextHumidity = forecast.CurrentHumidity
		return forecast, nil
	}

	next := resp.List[1]
	forecast.NextDescription = next.description()
	forecast.NextTemp = next.Main.Temp
	forecast.NextHumidity = next.Main.Humidity
	forecast.RainExpected = next.Rain != nil && next.Rain.ThreeHours > 0
	return forecast, nil
}
