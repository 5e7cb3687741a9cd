package auth

import (
	"fmt"

	"golang.org/x/oauth2"
)

// OAuth2 endpoints for the SDM partner connections flow.
const (
	TokenURL           = "https://www.googleapis.com/oauth2/v4/token"
	AuthorizeURLFormat = "https://nestservices.google.com/partnerconnections/%s/auth"
)

// Scopes required for the REST API and the event feed.
var Scopes = []string{
	"https://www.googleapis.com/auth/sdm.service",
	"https://www.googleapis.com/auth/pubsub",
}

// Config builds the OAuth2 configuration for a device access project.
func Config(clientID string, clientSecret string, projectID string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       Scopes,
		RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
		Endpoint: oauth2.Endpoint{
			AuthURL:  fmt.Sprintf(AuthorizeURLFormat, projectID),
			TokenURL: TokenURL,
		},
	}
}
