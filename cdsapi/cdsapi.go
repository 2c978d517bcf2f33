/*
Copyright © 2026 the Reanest authors.
This file is part of Reanest.

Reanest is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Reanest is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Reanest.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package cdsapi retrieves reanalysis data from the Copernicus Climate
// Data Store over its HTTP API: it submits a retrieval, polls the task
// until it completes, and downloads the result file.
package cdsapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/reanest"
)

const (
	// DefaultURL is the Climate Data Store API root.
	DefaultURL = "https://cds.climate.copernicus.eu/api/v2"

	defaultPollInterval = 5 * time.Second
)

// A Client submits retrievals to the Climate Data Store. It implements
// reanest.Retriever.
type Client struct {
	// URL is the API root. Empty means DefaultURL.
	URL string

	// Key is the API credential, in "uid:key" form.
	Key string

	// HTTPClient issues the requests. If nil, http.DefaultClient is
	// used.
	HTTPClient *http.Client

	// Dir is where downloaded files go. Empty means the system
	// temporary directory.
	Dir string

	// PollInterval is the pause between task status checks. Zero means
	// the default.
	PollInterval time.Duration

	// Log receives progress information.
	Log logrus.FieldLogger

	// Clock is the time source for polling pauses. If nil, the real
	// clock is used.
	Clock clockwork.Clock
}

// New returns a client configured from the environment variables
// CDSAPI_URL and CDSAPI_KEY, falling back to ~/.cdsapirc.
func New() (*Client, error) {
	c := &Client{
		URL: os.Getenv("CDSAPI_URL"),
		Key: os.Getenv("CDSAPI_KEY"),
	}
	if c.Key == "" {
		url, key, err := readRCFile()
		if err != nil {
			return nil, err
		}
		if c.URL == "" {
			c.URL = url
		}
		c.Key = key
	}
	if c.Key == "" {
		return nil, fmt.Errorf("cdsapi: no API key: set CDSAPI_KEY or create ~/.cdsapirc")
	}
	return c, nil
}

// readRCFile reads the url and key lines of ~/.cdsapirc.
func readRCFile() (url, key string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("cdsapi: finding home directory: %v", err)
	}
	path := filepath.Join(home, ".cdsapirc")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", nil
		}
		return "", "", fmt.Errorf("cdsapi: opening %s: %v", path, err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "url:"):
			url = strings.TrimSpace(strings.TrimPrefix(line, "url:"))
		case strings.HasPrefix(line, "key:"):
			key = strings.TrimSpace(strings.TrimPrefix(line, "key:"))
		}
	}
	if err := scanner.Err(); err != nil {
		return "", "", fmt.Errorf("cdsapi: reading %s: %v", path, err)
	}
	return url, key, nil
}

func (c *Client) url() string {
	if c.URL == "" {
		return DefaultURL
	}
	return strings.TrimSuffix(c.URL, "/")
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

func (c *Client) clock() clockwork.Clock {
	if c.Clock == nil {
		return clockwork.NewRealClock()
	}
	return c.Clock
}

func (c *Client) pollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return defaultPollInterval
	}
	return c.PollInterval
}

// taskStatus is the task state document returned by submission and
// polling.
type taskStatus struct {
	State     string `json:"state"`
	RequestID string `json:"request_id"`
	Location  string `json:"location"`
	Error     struct {
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

// Retrieve submits the retrieval described by req, waits for it to
// complete, and downloads the result. The returned path ends in .zip
// for surface data and .nc for pressure-level data.
func (c *Client) Retrieve(ctx context.Context, req *reanest.Request) (string, error) {
	dataset, payload := BuildRequest(req)
	log := c.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{
		"request": req.ID,
		"dataset": dataset,
	}).Info("submitting retrieval")

	status, err := c.submit(ctx, dataset, payload)
	if err != nil {
		return "", err
	}
	for !isTerminal(status.State) {
		select {
		case <-c.clock().After(c.pollInterval()):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		status, err = c.poll(ctx, status.RequestID)
		if err != nil {
			return "", err
		}
	}
	if status.State != "completed" {
		msg := status.Error.Message
		if msg == "" {
			msg = status.State
		}
		return "", fmt.Errorf("cdsapi: retrieval %s failed: %s %s",
			req.ID, msg, status.Error.Reason)
	}

	ext := ".zip"
	if req.Kind == reanest.PressureLevels {
		ext = ".nc"
	}
	dir := c.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	dst := filepath.Join(dir, req.ID+"_"+req.Start.Format("20060102")+ext)
	if err := c.download(ctx, status.Location, dst); err != nil {
		return "", err
	}
	log.WithFields(logrus.Fields{
		"request": req.ID,
		"file":    dst,
	}).Info("retrieval downloaded")
	return dst, nil
}

func isTerminal(state string) bool {
	return state == "completed" || state == "failed"
}

func (c *Client) submit(ctx context.Context, dataset string, payload map[string]interface{}) (*taskStatus, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("cdsapi: encoding request: %v", err)
	}
	url := c.url() + "/resources/" + dataset
	return c.doJSON(ctx, http.MethodPost, url, bytes.NewReader(body))
}

func (c *Client) poll(ctx context.Context, requestID string) (*taskStatus, error) {
	url := c.url() + "/tasks/" + requestID
	return c.doJSON(ctx, http.MethodGet, url, nil)
}

func (c *Client) doJSON(ctx context.Context, method, url string, body io.Reader) (*taskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("cdsapi: creating request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("cdsapi: %s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("cdsapi: %s %s: status %s: %s",
			method, url, resp.Status, strings.TrimSpace(string(b)))
	}
	status := new(taskStatus)
	if err := json.NewDecoder(resp.Body).Decode(status); err != nil {
		return nil, fmt.Errorf("cdsapi: decoding response from %s: %v", url, err)
	}
	return status, nil
}

// authorize attaches the credential: basic auth for "uid:key" keys,
// a bearer token otherwise.
func (c *Client) authorize(req *http.Request) {
	if uid, key, ok := strings.Cut(c.Key, ":"); ok {
		req.SetBasicAuth(uid, key)
		return
	}
	req.Header.Set("PRIVATE-TOKEN", c.Key)
}

func (c *Client) download(ctx context.Context, location, dst string) error {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		location = c.url() + "/" + strings.TrimPrefix(location, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return fmt.Errorf("cdsapi: creating download request: %v", err)
	}
	c.authorize(req)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("cdsapi: downloading %s: %v", location, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cdsapi: downloading %s: status %s", location, resp.Status)
	}
	w, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("cdsapi: creating %s: %v", dst, err)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		w.Close()
		return fmt.Errorf("cdsapi: writing %s: %v", dst, err)
	}
	return w.Close()
}
