package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"tourbook/sessiond/internal/models"
)

// ErrUnauthorized marks a 401 from the identity API. The session manager
// does not act on it directly; it hands the condition to whatever
// unauthorized handler the embedding application registered.
var ErrUnauthorized = errors.New("identity api: unauthorized")

type IdentityClient struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewIdentityClient(baseURL string, timeout time.Duration, log zerolog.Logger) *IdentityClient {
	return &IdentityClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// UserByEmail fetches the caller's user record. The result is a patch, not
// a full identity: only keys present in the response body count as server
// statements about the field.
func (c *IdentityClient) UserByEmail(ctx context.Context, email string, token string) (models.IdentityPatch, error) {
	endpoint := fmt.Sprintf("%s/users/by-email?email=%s", c.baseURL, url.QueryEscape(email))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.IdentityPatch{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.IdentityPatch{}, fmt.Errorf("identity api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return models.IdentityPatch{}, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.IdentityPatch{}, fmt.Errorf("identity api: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.IdentityPatch{}, fmt.Errorf("read response: %w", err)
	}

	var patch models.IdentityPatch
	if err := json.Unmarshal(body, &patch); err != nil {
		return models.IdentityPatch{}, fmt.Errorf("decode user record: %w", err)
	}
	return patch, nil
}
