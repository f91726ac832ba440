// Package uploader pushes queued position fixes to the tracking backend.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"roadlog/internal/storage"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// fixPayload is the wire shape of one uploaded fix.
type fixPayload struct {
	Lat        float64  `json:"lat"`
	Lon        float64  `json:"lon"`
	Accuracy   float64  `json:"accuracy"`
	Altitude   *float64 `json:"altitude,omitempty"`
	Speed      *float64 `json:"speed,omitempty"`
	Bearing    *float64 `json:"bearing,omitempty"`
	Battery    *float64 `json:"battery,omitempty"`
	RecordedAt string   `json:"recorded_at"`
}

type uploadRequest struct {
	Fixes []fixPayload `json:"locations"`
}

// UploadFixes sends one batch in a single request. The caller decides batch
// contents; nothing is retried here.
func (c *Client) UploadFixes(ctx context.Context, token, tripRemoteID string, fixes []storage.StoredFix) error {
	if len(fixes) == 0 {
		return nil
	}
	if token == "" {
		return fmt.Errorf("missing access token")
	}
	if tripRemoteID == "" {
		return fmt.Errorf("missing remote trip id")
	}

	payload := uploadRequest{Fixes: make([]fixPayload, 0, len(fixes))}
	for _, f := range fixes {
		payload.Fixes = append(payload.Fixes, fixPayload{
			Lat:        f.Fix.Lat,
			Lon:        f.Fix.Lon,
			Accuracy:   f.Fix.Accuracy,
			Altitude:   f.Fix.Altitude,
			Speed:      f.Fix.Speed,
			Bearing:    f.Fix.Bearing,
			Battery:    f.Battery,
			RecordedAt: f.Fix.Time.UTC().Format(time.RFC3339),
		})
	}

	endpoint, err := url.JoinPath(c.BaseURL, "/trips", tripRemoteID, "/locations")
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	logRequest(http.MethodPost, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{StatusCode: resp.StatusCode, Body: string(excerpt)}
	}

	return nil
}
