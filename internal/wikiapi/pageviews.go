// SPDX-License-Identifier: MIT

package wikiapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/wikigraph/linkgraph/internal/errs"
)

// TopArticle is one ranked entry of the Wikimedia pageview metrics API.
type TopArticle struct {
	Title string
	Views int64
	Rank  int
}

// TopPageviews fetches the most-viewed articles of one language edition
// for a whole month from the Wikimedia REST metrics endpoint
// (/metrics/pageviews/top/<prefix>.wikipedia/all-access/<year>/<month>/all-days).
// The shortest-path service uses the ranking to preload the link cache
// with the articles people actually ask about, instead of the plain
// top-degree vertices.
func (c *Client) TopPageviews(ctx context.Context, year int, month int) ([]TopArticle, error) {
	base := c.MetricsBase
	if base == "" {
		base = "https://wikimedia.org/api/rest_v1"
	}
	reqURL := fmt.Sprintf(
		"%s/metrics/pageviews/top/%s.wikipedia/all-access/%04d/%02d/all-days",
		base, c.Prefix, year, month)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errs.New(errs.Config, "wikiapi.TopPageviews", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errs.New(errs.Transient, "wikiapi.TopPageviews", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, errs.New(errs.Transient, "wikiapi.TopPageviews", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.Schema, "wikiapi.TopPageviews", fmt.Errorf("status %d", resp.StatusCode))
	}

	var body struct {
		Items []struct {
			Articles []struct {
				Article string `json:"article"`
				Views   int64  `json:"views"`
				Rank    int    `json:"rank"`
			} `json:"articles"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errs.New(errs.Schema, "wikiapi.TopPageviews", err)
	}

	var out []TopArticle
	for _, item := range body.Items {
		for _, a := range item.Articles {
			out = append(out, TopArticle{Title: a.Article, Views: a.Views, Rank: a.Rank})
		}
	}
	return out, nil
}
