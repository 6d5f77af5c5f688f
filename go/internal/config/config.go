// Package config loads the file-based application configuration, most
// importantly the team-token routing table used by join URLs.
package config

import (
	"fmt"
	"os"

	"github.com/showdownhq/showdown/go/internal/models"
	"gopkg.in/yaml.v3"
)

// Config is the file-based application configuration.
type Config struct {
	// TeamTokens maps a join-URL access token to a team identity. Tokens not
	// in the table are rejected and the participant selects a team manually.
	TeamTokens map[string]string `yaml:"team_tokens"`
}

// Default returns the built-in two-entry routing table used when no config
// file is present.
func Default() *Config {
	return &Config{
		TeamTokens: map[string]string{
			"t1": string(models.TeamOne),
			"t2": string(models.TeamTwo),
		},
	}
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	for token, team := range config.TeamTokens {
		if !models.Team(team).Valid() {
			return nil, fmt.Errorf("invalid team %q for token %q", team, token)
		}
	}

	return &config, nil
}

// TeamForToken resolves a join-URL token to a team. Unknown tokens return
// false.
func (c *Config) TeamForToken(token string) (models.Team, bool) {
	team, ok := c.TeamTokens[token]
	if !ok {
		return "", false
	}
	t := models.Team(team)
	if !t.Valid() {
		return "", false
	}
	return t, true
}
