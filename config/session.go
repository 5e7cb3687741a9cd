package config

import "fmt"

// SessionConfig holds the Google project and OAuth2 client details required
// to talk to the SDM API and its event feed.
type SessionConfig struct {
	ProjectID    string
	ClientID     string
	ClientSecret string

	// Subscription is the fully qualified Pub/Sub subscription name,
	// projects/<project>/subscriptions/<name>.
	Subscription string

	TokenFile string
}

func (s SessionConfig) Validate() error {
	if s.ProjectID == "" {
		return fmt.Errorf("session configuration missing ProjectID")
	}

	if s.ClientID == "" {
		return fmt.Errorf("session configuration missing ClientID")
	}

	if s.ClientSecret == "" {
		return fmt.Errorf("session configuration missing ClientSecret")
	}

	if s.TokenFile == "" {
		return fmt.Errorf("session configuration missing TokenFile")
	}

	return nil
}
