package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// refreshResponseLimit caps the refresh response body. Tokens are small;
// anything bigger is a broken endpoint.
const refreshResponseLimit = 1 << 20

// HTTPRefresh builds a RefreshFunc that POSTs to the issuance endpoint's
// refresh URL and decodes the renewed token from its JSON body. The session
// context (refresh cookie) travels on the injected client's cookie jar.
func HTTPRefresh(refreshURL string, client *http.Client) RefreshFunc {
	if client == nil {
		client = http.DefaultClient
	}

	return func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, refreshURL, http.NoBody)
		if err != nil {
			return "", fmt.Errorf("session: creating refresh request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("session: refresh call: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("session: refresh returned HTTP %d", resp.StatusCode)
		}

		var body struct {
			Token string `json:"token"`
		}

		if err := json.NewDecoder(io.LimitReader(resp.Body, refreshResponseLimit)).Decode(&body); err != nil {
			return "", fmt.Errorf("session: decoding refresh response: %w", err)
		}

		if body.Token == "" {
			return "", fmt.Errorf("session: refresh response missing token")
		}

		return body.Token, nil
	}
}
