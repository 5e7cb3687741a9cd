package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2"
)

const DefaultTokenFilePermissions = 0600

// LoadToken reads a cached OAuth2 token from disk. A missing file returns
// (nil, nil) so the caller can fall back to the interactive flow.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read token cache: %w", err)
	}

	token := &oauth2.Token{}
	if err := json.Unmarshal(data, token); err != nil {
		return nil, fmt.Errorf("failed to parse token cache: %w", err)
	}

	return token, nil
}

// SaveToken writes a token to disk, replacing any previous cache atomically.
func SaveToken(path string, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	return safeWriteFile(path, data, DefaultTokenFilePermissions)
}

// CachedTokenSource wraps the config's refreshing token source with a
// write-back to the cache file whenever the access token rotates.
func CachedTokenSource(ctx context.Context, cfg *oauth2.Config, path string, token *oauth2.Token) oauth2.TokenSource {
	return &cachingTokenSource{
		path:   path,
		source: cfg.TokenSource(ctx, token),
		last:   token,
	}
}

type cachingTokenSource struct {
	path   string
	source oauth2.TokenSource

	lock sync.Mutex
	last *oauth2.Token
}

func (c *cachingTokenSource) Token() (*oauth2.Token, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	token, err := c.source.Token()
	if err != nil {
		return nil, err
	}

	if c.last == nil || token.AccessToken != c.last.AccessToken {
		if err := SaveToken(c.path, token); err != nil {
			return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
		}

		c.last = token
	}

	return token, nil
}
