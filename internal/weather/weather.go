package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"shipnews/internal/logger"
)

const defaultBaseURL = "https://wttr.in"

// marineAliases maps coastal city names to the sea area mariners actually
// care about.
var marineAliases = map[string]struct {
	Query string
	Name  string
}{
	"天津": {Query: "Bohai Sea", Name: "渤海湾"},
}

// DayForecast is one day of outlook.
type DayForecast struct {
	Date    string `json:"date"`
	MinTemp string `json:"min_temp"`
	MaxTemp string `json:"max_temp"`
	Desc    string `json:"desc"`
}

// Briefing is the weather summary served alongside the digest.
type Briefing struct {
	Location  string        `json:"location"`
	Temp      string        `json:"temp"`
	Desc      string        `json:"desc"`
	WindDir   string        `json:"wind_dir"`
	WindKmph  string        `json:"wind_kmph"`
	Beaufort  int           `json:"beaufort"`
	Forecast  []DayForecast `json:"forecast"`
	FetchedAt string        `json:"fetched_at"`
}

// Client fetches conditions from the wttr.in JSON endpoint.
type Client struct {
	http    *http.Client
	baseURL string
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: defaultBaseURL,
	}
}

// SetBaseURL overrides the endpoint (tests).
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

type wttrResponse struct {
	CurrentCondition []struct {
		TempC       string `json:"temp_C"`
		WindDir     string `json:"winddir16Point"`
		WindKmph    string `json:"windspeedKmph"`
		WeatherDesc []struct {
			Value string `json:"value"`
		} `json:"weatherDesc"`
	} `json:"current_condition"`
	Weather []struct {
		Date     string `json:"date"`
		MinTempC string `json:"mintempC"`
		MaxTempC string `json:"maxtempC"`
		Hourly   []struct {
			WeatherDesc []struct {
				Value string `json:"value"`
			} `json:"weatherDesc"`
		} `json:"hourly"`
	} `json:"weather"`
}

// Fetch returns a briefing for location. Port cities with a marine alias
// are queried as their sea area instead.
func (c *Client) Fetch(ctx context.Context, location string) (*Briefing, error) {
	query, display := location, location
	if alias, ok := marineAliases[location]; ok {
		query, display = alias.Query, alias.Name
	}

	reqURL := fmt.Sprintf("%s/%s?format=j1&lang=zh", c.baseURL, url.PathEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create weather request: %w", err)
	}
	req.Header.Set("User-Agent", "curl/8.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather service returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read weather response: %w", err)
	}

	var parsed wttrResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse weather response: %w", err)
	}
	if len(parsed.CurrentCondition) == 0 {
		return nil, fmt.Errorf("weather response contained no current conditions")
	}

	cur := parsed.CurrentCondition[0]
	b := &Briefing{
		Location:  display,
		Temp:      cur.TempC,
		WindDir:   cur.WindDir,
		WindKmph:  cur.WindKmph,
		Beaufort:  beaufortFromKmph(cur.WindKmph),
		FetchedAt: time.Now().Format("2006-01-02 15:04:05"),
	}
	if len(cur.WeatherDesc) > 0 {
		b.Desc = cur.WeatherDesc[0].Value
	}

	for i, day := range parsed.Weather {
		if i >= 2 {
			break
		}
		df := DayForecast{
			Date:    day.Date,
			MinTemp: day.MinTempC,
			MaxTemp: day.MaxTempC,
		}
		if len(day.Hourly) > 0 && len(day.Hourly[0].WeatherDesc) > 0 {
			// Hourly slots cover the day in 3-hour steps; the middle slot
			// approximates midday conditions.
			mid := len(day.Hourly) / 2
			if len(day.Hourly[mid].WeatherDesc) > 0 {
				df.Desc = day.Hourly[mid].WeatherDesc[0].Value
			} else {
				df.Desc = day.Hourly[0].WeatherDesc[0].Value
			}
		}
		b.Forecast = append(b.Forecast, df)
	}

	logger.Debug("weather fetched", "location", display, "beaufort", b.Beaufort)
	return b, nil
}

// beaufortThresholds are the WMO upper bounds in m/s for forces 0 through
// 11; anything above the last bound is force 12.
var beaufortThresholds = []float64{0.5, 1.5, 3.3, 5.5, 7.9, 10.7, 13.8, 17.1, 20.7, 24.4, 28.4, 32.6}

func beaufortFromKmph(kmph string) int {
	v, err := strconv.ParseFloat(kmph, 64)
	if err != nil {
		return 0
	}
	ms := v / 3.6
	for force, bound := range beaufortThresholds {
		if ms < bound {
			return force
		}
	}
	return 12
}
