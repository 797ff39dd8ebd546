package sgdmodels

// WeatherForecast is the short forecast handed to the assistant
type WeatherForecast struct {
	CurrentDescription string  `json:"current_description"`
	CurrentTemp        float64 `json:"current_temp"`
	CurrentHumidity    float64 `json:"current_humidity"`
	RainExpected       bool    `json:"rain_expected"`
	NextDescription    string  `json:"next_description"`
	NextTemp           float64 `json:"next_temp"`
	NextHumidity       float64 `json:"next_humidity"`
}

// FallbackForecast is used whenever the weather provider fails
func FallbackForecast() WeatherForecast {
	return WeatherForecast{
		CurrentDescription: "Unknown (API error)",
		NextDescription:    "Unknown",
	}
}
