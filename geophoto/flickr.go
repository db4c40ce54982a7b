package geophoto

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nakarte/geophotos/internal/config"
)

// Client talks to the upstream geotagged-photo search API. It owns its
// own retry policy and timeouts (spec.md §6, §9): callers never see a
// transient network failure, only a TransportError after every retry
// is exhausted. The client reports the API's total as-is; comparing it
// against the hard cap is left to the coordinator.
type Client struct {
	apiKey     string
	httpClient *http.Client
	retries    int
	backoff    time.Duration
}

// NewClient builds a Client from cfg, sizing the shared transport's
// idle-connection pool to the downloader's worker count so concurrent
// page fetches don't starve each other for connections (spec.md §5).
func NewClient(cfg config.Config) *Client {
	transport := &http.Transport{
		MaxIdleConnsPerHost: cfg.DownloaderWorkers,
		MaxIdleConns:        cfg.DownloaderWorkers * 2,
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
	}
	return &Client{
		apiKey: cfg.APIKey,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
		},
		retries: cfg.RetryAttempts,
		backoff: cfg.RetryBackoff,
	}
}

// SearchPage is one page of the upstream search response: enough to
// decode into Photo records plus the pagination/overflow bookkeeping
// the coordinator needs (spec.md §4.2).
type SearchPage struct {
	Page    int
	Pages   int
	Total   int
	PerPage int
	Photos  []rawPhoto
}

type rawPhoto struct {
	ID         string `json:"id"`
	Owner      string `json:"owner"`
	Latitude   string `json:"latitude"`
	Longitude  string `json:"longitude"`
	Accuracy   string `json:"accuracy"`
	DateUpload string `json:"dateupload"`
}

type searchEnvelope struct {
	Stat    string `json:"stat"`
	Message string `json:"message"`
	Photos  struct {
		Page    int        `json:"page"`
		Pages   int        `json:"pages"`
		PerPage int        `json:"perpage"`
		Total   string     `json:"total"`
		Photo   []rawPhoto `json:"photo"`
	} `json:"photos"`
}

// Search fetches one page of a bounding-box search, retrying transient
// failures up to c.retries times with a fixed c.backoff delay between
// attempts (spec.md §9, "Retry policy"). Search never interprets a
// large Total itself; the coordinator compares it against the
// configured hard cap and builds an *OverflowDetected value when it is
// exceeded (spec.md §7).
func (c *Client) Search(ctx context.Context, j Job, page int) (SearchPage, error) {
	return c.fetch(ctx, j, page, 250)
}

// ProbeTotal issues a single-photo request (per_page=1) to cheaply read
// the API's reported total without paying for a full paginated fetch
// (spec.md §4.2, "preflight probe"): a region that will only be
// discarded as overflow shouldn't cost 16 page requests to discover.
func (c *Client) ProbeTotal(ctx context.Context, j Job) (int, error) {
	sp, err := c.fetch(ctx, j, 1, 1)
	if err != nil {
		return 0, err
	}
	return sp.Total, nil
}

func (c *Client) fetch(ctx context.Context, j Job, page, perPage int) (SearchPage, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return SearchPage{}, ctx.Err()
			case <-time.After(c.backoff):
			}
		}
		result, err := c.searchOnce(ctx, j, page, perPage)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return SearchPage{}, ctx.Err()
		}
	}
	return SearchPage{}, &TransportError{Op: "search", Err: lastErr}
}

func (c *Client) searchOnce(ctx context.Context, j Job, page, perPage int) (SearchPage, error) {
	q := url.Values{}
	q.Set("method", "flickr.photos.search")
	q.Set("api_key", c.apiKey)
	q.Set("format", "json")
	q.Set("nojsoncallback", "1")
	q.Set("has_geo", "1")
	q.Set("extras", "geo,date_upload,owner_name")
	q.Set("bbox", fmt.Sprintf("%f,%f,%f,%f", j.MinLon, j.MinLat, j.MaxLon, j.MaxLat))
	q.Set("min_upload_date", strconv.FormatInt(j.MinDate, 10))
	q.Set("max_upload_date", strconv.FormatInt(j.MaxDate, 10))
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	reqURL := "https://api.flickr.com/services/rest?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return SearchPage{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SearchPage{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SearchPage{}, fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	var env searchEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return SearchPage{}, err
	}
	if env.Stat != "ok" {
		return SearchPage{}, fmt.Errorf("upstream stat=%s: %s", env.Stat, env.Message)
	}

	total, _ := strconv.Atoi(env.Photos.Total)
	return SearchPage{
		Page:    env.Photos.Page,
		Pages:   env.Photos.Pages,
		Total:   total,
		PerPage: env.Photos.PerPage,
		Photos:  env.Photos.Photo,
	}, nil
}

// ToPhotos converts the raw JSON photo entries in sp into domain
// Photo/id pairs. An entry missing (or unparseable) latitude,
// longitude or dateupload indicates schema drift upstream and is
// fatal for the whole page, aborting the job rather than silently
// storing a (0,0) record (spec.md §7, MalformedRecord). A bad photo id
// or an otherwise-present value that fails its range invariant is
// logged and skipped instead, same as before.
func (sp SearchPage) ToPhotos() (map[uint64]Photo, []error, error) {
	out := make(map[uint64]Photo, len(sp.Photos))
	var skipped []error
	for _, rp := range sp.Photos {
		id, err := strconv.ParseUint(rp.ID, 10, 64)
		if err != nil {
			skipped = append(skipped, &MalformedRecordError{Reason: "bad photo id: " + rp.ID})
			continue
		}

		lat, latErr := strconv.ParseFloat(rp.Latitude, 64)
		lon, lonErr := strconv.ParseFloat(rp.Longitude, 64)
		uploadTS, dateErr := strconv.ParseInt(rp.DateUpload, 10, 64)
		if latErr != nil || lonErr != nil || dateErr != nil {
			return nil, nil, &MalformedRecordError{PhotoID: id, Reason: "missing latitude/longitude/dateupload"}
		}
		accuracy, _ := strconv.Atoi(rp.Accuracy)

		p := Photo{
			LatE7:      int32(lat * 1e7),
			LonE7:      int32(lon * 1e7),
			Accuracy:   int32(accuracy),
			FetchTS:    time.Now().Unix(),
			UploadDate: uploadTS,
			Owner:      rp.Owner,
		}
		if !p.Valid() {
			skipped = append(skipped, &MalformedRecordError{PhotoID: id, Reason: "out-of-range coordinates or date"})
			continue
		}
		out[id] = p
	}
	return out, skipped, nil
}
