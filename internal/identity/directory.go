package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"

	"makequeue-backend/config"
	"makequeue-backend/internal/model"
)

// UserDetails are the display attributes the identity collaborator holds for
// a user. Lookups never mutate anything.
type UserDetails struct {
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	Role        model.Role `json:"role"`
}

// Directory resolves usernames to user details. A nil result with a nil error
// means the identity collaborator reports no such user.
type Directory interface {
	GetUserDetails(ctx context.Context, username string) (*UserDetails, error)
}

// HTTPDirectory is a Directory backed by the identity collaborator's HTTP
// API. Results are cached briefly so that one request resolves a user at
// most once.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
	cache   *cache.Cache
}

// NewHTTPDirectory creates a directory client from configuration.
func NewHTTPDirectory(cfg *config.IdentityConfig) *HTTPDirectory {
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	return &HTTPDirectory{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		cache:   cache.New(ttl, 2*ttl),
	}
}

// GetUserDetails looks up a username. Misses are cached as well, so a kiosk
// polling an unknown card does not hammer the collaborator.
func (d *HTTPDirectory) GetUserDetails(ctx context.Context, username string) (*UserDetails, error) {
	if cached, found := d.cache.Get(username); found {
		return cached.(*UserDetails), nil
	}

	reqURL := fmt.Sprintf("%s/users/%s", d.baseURL, url.PathEscape(username))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity lookup for %q failed: %w", username, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var details UserDetails
		if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
			return nil, fmt.Errorf("failed to decode identity response for %q: %w", username, err)
		}
		if details.Username == "" {
			details.Username = username
		}
		if !model.ValidRole(details.Role) {
			log.Printf("identity reported unknown role %q for %q; treating as external", details.Role, username)
			details.Role = model.RoleExternal
		}
		d.cache.SetDefault(username, &details)
		return &details, nil
	case http.StatusNotFound:
		d.cache.SetDefault(username, (*UserDetails)(nil))
		return nil, nil
	default:
		return nil, fmt.Errorf("identity lookup for %q returned status %d", username, resp.StatusCode)
	}
}
