package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blacktop/metapost/internal/metapost"
	"github.com/blacktop/metapost/internal/metapost/graph"
	"github.com/blacktop/metapost/internal/metapost/sdk"
)

const (
	envAppID        = "METAPOST_APP_ID"
	envAppSecret    = "METAPOST_APP_SECRET"
	envAccessToken  = "METAPOST_ACCESS_TOKEN"
	envGraphVersion = "METAPOST_GRAPH_VERSION"
	envCallbackPort = "METAPOST_CALLBACK_PORT"
	envGraphURL     = "METAPOST_GRAPH_URL"

	configProvider = "meta"
)

// Config captures the app credentials and Graph API settings.
type Config struct {
	AppID        string
	AppSecret    string
	AccessToken  string
	GraphVersion string
	GraphURL     string
	CallbackPort int
}

func loadConfigFromEnv() (Config, error) {
	cfg := Config{
		AppID:        strings.TrimSpace(os.Getenv(envAppID)),
		AppSecret:    strings.TrimSpace(os.Getenv(envAppSecret)),
		AccessToken:  strings.TrimSpace(os.Getenv(envAccessToken)),
		GraphVersion: strings.TrimSpace(os.Getenv(envGraphVersion)),
		GraphURL:     strings.TrimSpace(os.Getenv(envGraphURL)),
		CallbackPort: sdk.DefaultCallbackPort,
	}

	var missing []string
	if cfg.AppID == "" {
		missing = append(missing, envAppID)
	}
	if cfg.AppSecret == "" && cfg.AccessToken == "" {
		missing = append(missing, envAppSecret)
	}
	if len(missing) > 0 {
		return Config{}, metapost.MissingEnvError{Provider: configProvider, Variables: missing}
	}

	if cfg.GraphVersion == "" {
		cfg.GraphVersion = graph.DefaultVersion
	}
	if cfg.GraphURL == "" {
		cfg.GraphURL = graph.DefaultBaseURL
	}
	if raw := strings.TrimSpace(os.Getenv(envCallbackPort)); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("%s: invalid port %q", envCallbackPort, raw)
		}
		cfg.CallbackPort = port
	}

	return cfg, nil
}
