package credentials

import (
	"os"
	"strings"
)

// Environment variables that supply a session without the keyring, for CI
// and headless machines.
const (
	EnvAccessToken  = "PRIORITYFORGE_ACCESS_TOKEN"
	EnvRefreshToken = "PRIORITYFORGE_REFRESH_TOKEN"
	EnvUserID       = "PRIORITYFORGE_USER_ID"
)

// sessionFromEnv returns the session described by the environment, or nil
// when no access token is set.
func sessionFromEnv() *Session {
	token := strings.TrimSpace(os.Getenv(EnvAccessToken))
	if token == "" {
		return nil
	}
	return &Session{
		AccessToken:  token,
		RefreshToken: strings.TrimSpace(os.Getenv(EnvRefreshToken)),
		UserID:       strings.TrimSpace(os.Getenv(EnvUserID)),
		TokenType:    "bearer",
	}
}

// HasEnvSession checks if a session is set in environment variables.
func HasEnvSession() bool {
	return sessionFromEnv() != nil
}
