package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/urbandriving/engine/internal/agent"
	"github.com/urbandriving/engine/internal/config"
	"github.com/urbandriving/engine/internal/remote"
)

// serveAgents evaluates background agents for remote environments. The endpoint
// path is taken from the configured agent URL so clients and server agree.
func serveAgents(ctx context.Context) error {
	rc := config.GetRemoteConfig()
	path, err := agentPath(rc.URL)
	if err != nil {
		return err
	}
	return remote.NewServer(agent.DefaultRegistry(), Logger).ListenAndServe(ctx, rc.Listen, path)
}

func agentPath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing agent URL: %w", err)
	}
	if u.Path == "" {
		return "/", nil
	}
	return u.Path, nil
}
