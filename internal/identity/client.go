package identity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wallet-service/internal/domain"
)

// Client checks owner existence against the user service:
// GET {baseURL}/api/v1/users/{ownerID} with the caller's bearer token.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) Exists(ctx context.Context, ownerID int64, cred domain.Credential) (domain.VerificationResult, error) {
	url := c.baseURL + "/api/v1/users/" + strconv.FormatInt(ownerID, 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.VerificationUnavailable, fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Authorization", bearer(cred))
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Identity service call failed", "owner_id", ownerID, "error", err)
		return domain.VerificationUnavailable, fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return domain.VerificationFound, nil
	case resp.StatusCode == http.StatusNotFound:
		c.logger.Warn("Owner not found in identity service", "owner_id", ownerID)
		return domain.VerificationNotFound, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.Warn("Credential rejected by identity service", "owner_id", ownerID, "status", resp.StatusCode)
		return domain.VerificationUnauthorized, nil
	default:
		c.logger.Error("Unexpected identity service status", "owner_id", ownerID, "status", resp.StatusCode)
		return domain.VerificationUnavailable, fmt.Errorf("identity service returned status %d", resp.StatusCode)
	}
}

func bearer(cred domain.Credential) string {
	token := strings.TrimSpace(string(cred))
	if strings.HasPrefix(token, "Bearer ") {
		return token
	}
	return "Bearer " + token
}
