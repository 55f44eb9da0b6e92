// Package zone resolves a UGC id to a friendly display name over HTTPS,
// memoizing results for the process lifetime.
package zone

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	baseURL   = "https://api.weather.gov/zones"
	userAgent = "SparkAlerts"
	timeout   = 5 * time.Second
)

// Resolver caches UGC->name lookups for the process lifetime.
type Resolver struct {
	client *http.Client
	cache  sync.Map // string -> *string (nil-valued entry means "resolved to absent")
}

// New builds a Resolver with a fixed 5s request timeout.
func New() *Resolver {
	return &Resolver{
		client: &http.Client{Timeout: timeout},
	}
}

type zoneResponse struct {
	Properties struct {
		Name  string `json:"name"`
		State string `json:"state"`
	} `json:"properties"`
}

// Resolve maps a UGC id to a display name, or returns ok=false when the
// upstream has no name or the request failed. Negative results are cached
// too.
func (r *Resolver) Resolve(ctx context.Context, id string) (string, bool) {
	if cached, found := r.cache.Load(id); found {
		entry := cached.(*string)
		if entry == nil {
			return "", false
		}
		return *entry, true
	}

	name, ok := r.fetch(ctx, id)
	if !ok {
		r.cache.Store(id, (*string)(nil))
		return "", false
	}
	r.cache.Store(id, &name)
	return name, true
}

func (r *Resolver) fetch(ctx context.Context, id string) (string, bool) {
	kind := kindForUGC(id)
	url := fmt.Sprintf("%s/%s/%s", baseURL, kind, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	var parsed zoneResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false
	}
	if parsed.Properties.Name == "" {
		return "", false
	}
	if kind == "county" && parsed.Properties.State != "" {
		return fmt.Sprintf("%s, %s", parsed.Properties.Name, parsed.Properties.State), true
	}
	return parsed.Properties.Name, true
}

// kindForUGC chooses the zones/{kind} path segment: "county" when the UGC's
// third letter is 'C', else "forecast". Fire-weather zones only differ by
// path segment; callers that need that fallback use ResolveFire.
func kindForUGC(id string) string {
	if len(id) >= 3 && strings.ToUpper(id[2:3]) == "C" {
		return "county"
	}
	return "forecast"
}

// ResolveFire retries a forecast-zone id against the "fire" zone kind.
func (r *Resolver) ResolveFire(ctx context.Context, id string) (string, bool) {
	cacheKey := "fire:" + id
	if cached, found := r.cache.Load(cacheKey); found {
		entry := cached.(*string)
		if entry == nil {
			return "", false
		}
		return *entry, true
	}
	url := fmt.Sprintf("%s/fire/%s", baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		r.cache.Store(cacheKey, (*string)(nil))
		return "", false
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.cache.Store(cacheKey, (*string)(nil))
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		r.cache.Store(cacheKey, (*string)(nil))
		return "", false
	}
	var parsed zoneResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || parsed.Properties.Name == "" {
		r.cache.Store(cacheKey, (*string)(nil))
		return "", false
	}
	r.cache.Store(cacheKey, &parsed.Properties.Name)
	return parsed.Properties.Name, true
}

// ResolveAll fans out parallel lookups for a set of UGC ids and joins the
// non-null names with "; ".
func (r *Resolver) ResolveAll(ctx context.Context, ids []string) string {
	type result struct {
		idx  int
		name string
		ok   bool
	}
	results := make([]result, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			name, ok := r.Resolve(ctx, id)
			if !ok && kindForUGC(id) == "forecast" {
				name, ok = r.ResolveFire(ctx, id)
			}
			results[i] = result{idx: i, name: name, ok: ok}
		}(i, id)
	}
	wg.Wait()

	var names []string
	for _, res := range results {
		if res.ok {
			names = append(names, res.name)
		}
	}
	return strings.Join(names, "; ")
}
