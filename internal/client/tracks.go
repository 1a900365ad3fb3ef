// ABOUTME: HTTP helpers for the server's music library
// ABOUTME: Fetches the track list a host can play or queue from
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/syncroom/syncroom/internal/protocol"
)

// FetchTracks returns the server's library from GET /tracks
func (c *Client) FetchTracks(ctx context.Context) ([]protocol.Track, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+c.config.ServerAddr+"/tracks", nil)
	if err != nil {
		return nil, fmt.Errorf("build track list request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch track list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch track list: HTTP %d", resp.StatusCode)
	}

	var tracks []protocol.Track
	if err := json.NewDecoder(resp.Body).Decode(&tracks); err != nil {
		return nil, fmt.Errorf("decode track list: %w", err)
	}
	return tracks, nil
}
