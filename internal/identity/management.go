package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AdminMetadata is the typed shape pushed into the provider's per-user
// metadata blob. Enumerated fields only; no open-ended key/value map.
type AdminMetadata struct {
	IsAdmin    bool   `json:"isAdmin"`
	AdminLevel int    `json:"adminLevel"`
	Role       string `json:"role"`
}

// ManagementClient talks to the identity provider's management API to keep
// provider-side authorization metadata in sync with the local user table.
type ManagementClient interface {
	UpdateUserMetadata(ctx context.Context, externalID string, meta AdminMetadata) error
}

type managementClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewManagementClient builds the HTTP management client. The client is
// constructed once at startup and injected into the services that need it.
func NewManagementClient(baseURL, token string) (ManagementClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("management base URL must be set")
	}
	if token == "" {
		return nil, errors.New("management token must be set")
	}
	return &managementClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *managementClient) UpdateUserMetadata(ctx context.Context, externalID string, meta AdminMetadata) error {
	if externalID == "" {
		return errors.New("missing external user id")
	}

	body, err := json.Marshal(map[string]AdminMetadata{"app_metadata": meta})
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	url := fmt.Sprintf("%s/users/%s", c.baseURL, externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("management API call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("management API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
