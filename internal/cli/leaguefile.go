package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/tradeflow/pkg/domain"
	"gopkg.in/yaml.v3"
)

// LoadLeagueFile reads a league fixture. Files ending in .yaml or .yml are YAML, anything else JSON.
// A non-empty overrideID replaces the id found in the file.
func LoadLeagueFile(path, overrideID string) (*domain.League, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read league file: %w", err)
	}

	var league domain.League
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &league)
	default:
		err = json.Unmarshal(data, &league)
	}
	if err != nil {
		return nil, fmt.Errorf("parse league file %s: %w", path, err)
	}

	if overrideID != "" {
		league.LeagueID = overrideID
	}
	if err := league.Validate(); err != nil {
		return nil, err
	}
	return &league, nil
}
