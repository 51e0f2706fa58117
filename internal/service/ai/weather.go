package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

const defaultWeatherBaseURL = "https://api.open-meteo.com"

type weatherTool struct {
	baseURL    string
	httpClient *http.Client
}

type weatherParams struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func newWeatherTool(baseURL string) tool.InvokableTool {
	if baseURL == "" {
		baseURL = defaultWeatherBaseURL
	}
	w := &weatherTool{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: WebSearchHTTPTimeout},
	}
	info := &schema.ToolInfo{
		Name: ToolGetWeather,
		Desc: "Get the current weather at a location",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"latitude":  {Desc: "Latitude of the location", Type: schema.Number, Required: true},
			"longitude": {Desc: "Longitude of the location", Type: schema.Number, Required: true},
		}),
	}
	return utils.NewTool(info, w.run)
}

func (w *weatherTool) run(ctx context.Context, params *weatherParams) (string, error) {
	if params == nil || params.Latitude == nil || params.Longitude == nil {
		return "", errors.New("latitude and longitude are required")
	}
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(*params.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(*params.Longitude, 'f', -1, 64))
	q.Set("current", "temperature_2m")
	q.Set("hourly", "temperature_2m")
	q.Set("daily", "sunrise,sunset")
	q.Set("timezone", "auto")

	body, err := fetchURL(ctx, w.httpClient, w.baseURL+"/v1/forecast?"+q.Encode())
	if err != nil {
		return "", fmt.Errorf("weather lookup: %w", err)
	}
	return body, nil
}
