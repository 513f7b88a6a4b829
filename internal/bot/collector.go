package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/globalpass/standby-cli/internal/model"
)

// CollectorAdapter talks to one source's collector service over HTTP.
// The browser automation runs in that service; this adapter only submits
// criteria and decodes the records it scraped.
type CollectorAdapter struct {
	name    string
	baseURL string
	http    *http.Client
}

// CollectorOption configures a CollectorAdapter.
type CollectorOption func(*CollectorAdapter)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) CollectorOption {
	return func(a *CollectorAdapter) {
		a.http = hc
	}
}

// NewCollectorAdapter creates an adapter for the named source backed by
// the collector service at baseURL.
func NewCollectorAdapter(name, baseURL string, opts ...CollectorOption) *CollectorAdapter {
	a := &CollectorAdapter{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			// Collection drives a real browser upstream; page loads and
			// form fills dominate, so the client timeout is generous and
			// the run deadline arrives through ctx.
			Timeout: 10 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *CollectorAdapter) Name() string {
	return a.name
}

// collectResponse is the collector service's response body.
type collectResponse struct {
	Records []model.RawFlightRecord `json:"records"`
	Error   string                  `json:"error,omitempty"`
}

// Collect submits the criteria and returns the scraped records. The
// request is a single round trip, so progress is coarse: submission,
// response, decode.
func (a *CollectorAdapter) Collect(ctx context.Context, criteria model.SearchCriteria, progress ProgressFunc) ([]model.RawFlightRecord, error) {
	if progress != nil {
		progress(5, "submitting search")
	}

	body, err := json.Marshal(criteria)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: marshal criteria", a.name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/collect", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "%s: build request", a.name)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: collect request", a.name)
	}
	defer resp.Body.Close()

	if progress != nil {
		progress(80, "decoding records")
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, eris.Wrapf(err, "%s: read response", a.name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("%s: collector returned %d: %s", a.name, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out collectResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrapf(err, "%s: decode response", a.name)
	}
	if out.Error != "" {
		return nil, eris.Errorf("%s: collector error: %s", a.name, out.Error)
	}

	// Stamp the source so downstream merging never depends on the
	// collector filling it in.
	for i := range out.Records {
		out.Records[i].Source = a.name
	}

	if progress != nil {
		progress(95, "finished")
	}
	return out.Records, nil
}
