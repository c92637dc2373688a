package celllookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lvonguyen/cdrforge/internal/cdr"
)

const openCellIDDefaultBaseURL = "https://opencellid.org"

// OpenCellIDConfig holds OpenCellID-specific configuration.
type OpenCellIDConfig struct {
	Enabled bool `yaml:"enabled"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string        `yaml:"api_key_env"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DefaultOpenCellIDConfig returns sensible defaults for OpenCellID.
func DefaultOpenCellIDConfig() OpenCellIDConfig {
	return OpenCellIDConfig{
		APIKeyEnv: "OPENCELLID_API_KEY",
		BaseURL:   openCellIDDefaultBaseURL,
		Timeout:   5 * time.Second,
	}
}

// OpenCellID is a Source backed by the OpenCellID cell API.
type OpenCellID struct {
	config     OpenCellIDConfig
	apiKey     string
	httpClient *http.Client
}

// openCellIDResponse is the JSON body of /cell/get.
type openCellIDResponse struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Range   int     `json:"range"`
	Error   string  `json:"error,omitempty"`
	Code    int     `json:"code,omitempty"`
	Samples int     `json:"samples"`
}

// NewOpenCellID creates a new OpenCellID source.
func NewOpenCellID(config OpenCellIDConfig) (*OpenCellID, error) {
	apiKey := os.Getenv(config.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("OpenCellID API key not found in env var: %s", config.APIKeyEnv)
	}
	if config.BaseURL == "" {
		config.BaseURL = openCellIDDefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &OpenCellID{
		config:     config,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// Name implements Source.
func (o *OpenCellID) Name() string { return "opencellid" }

// Locate implements Source. The API needs the full MCC/MNC/LAC/cell tuple;
// partial keys are reported as not found without a request.
func (o *OpenCellID) Locate(ctx context.Context, key cdr.CellKey) (cdr.Coordinate, bool, error) {
	cellID, err := strconv.ParseInt(key.CellID, 10, 64)
	if err != nil {
		cellID, err = strconv.ParseInt(key.CellID, 16, 64)
	}
	if err != nil || key.MCC == 0 || key.LAC == 0 {
		return cdr.Coordinate{}, false, nil
	}

	q := url.Values{}
	q.Set("key", o.apiKey)
	q.Set("mcc", strconv.Itoa(key.MCC))
	q.Set("mnc", strconv.Itoa(key.MNC))
	q.Set("lac", strconv.Itoa(key.LAC))
	q.Set("cellid", strconv.FormatInt(cellID, 10))
	q.Set("format", "json")
	fullURL := strings.TrimSuffix(o.config.BaseURL, "/") + "/cell/get?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return cdr.Coordinate{}, false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "CDRForge/1.0")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return cdr.Coordinate{}, false, fmt.Errorf("OpenCellID lookup failed: %w", err)
	}
	defer resp.Body.Close()

	// 404 means the cell is unknown
	if resp.StatusCode == http.StatusNotFound {
		return cdr.Coordinate{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return cdr.Coordinate{}, false, fmt.Errorf("OpenCellID returned %d: %s", resp.StatusCode, string(body))
	}

	var body openCellIDResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return cdr.Coordinate{}, false, fmt.Errorf("decoding OpenCellID response: %w", err)
	}
	// OpenCellID reports unknown cells in the body with code 1.
	if body.Error != "" {
		if body.Code == 1 {
			return cdr.Coordinate{}, false, nil
		}
		return cdr.Coordinate{}, false, fmt.Errorf("OpenCellID error %d: %s", body.Code, body.Error)
	}
	if body.Lat == 0 && body.Lon == 0 {
		return cdr.Coordinate{}, false, nil
	}
	return cdr.Coordinate{Lat: body.Lat, Lon: body.Lon, Source: o.Name()}, true, nil
}
