package multispace

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"flowerchat.dev/internal/protocol"
	"flowerchat.dev/internal/space"
)

// Config lists the spaces a node projects.
type Config struct {
	Spaces []SpaceSpec `yaml:"spaces"`
}

type SpaceSpec struct {
	Title     string `yaml:"title"`
	RootBlock string `yaml:"root_block"`
	Author    string `yaml:"author"`
}

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("spaces.yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if len(c.Spaces) == 0 {
		return fmt.Errorf("spaces.yaml: no spaces configured")
	}
	seen := map[string]struct{}{}
	for i, sp := range c.Spaces {
		if strings.TrimSpace(sp.Title) == "" {
			return fmt.Errorf("spaces.yaml: space %d has no title", i)
		}
		if _, err := protocol.ParseHash(sp.RootBlock); err != nil {
			return fmt.Errorf("spaces.yaml: space %q: %w", sp.Title, err)
		}
		if _, err := protocol.ParsePublicKey(sp.Author); err != nil {
			return fmt.Errorf("spaces.yaml: space %q: %w", sp.Title, err)
		}
		if _, dup := seen[sp.RootBlock]; dup {
			return fmt.Errorf("spaces.yaml: duplicate root block %s", sp.RootBlock)
		}
		seen[sp.RootBlock] = struct{}{}
	}
	return nil
}

// SpaceConfig converts a spec into the engine's config.
func (s SpaceSpec) SpaceConfig() (space.Config, error) {
	root, err := protocol.ParseHash(s.RootBlock)
	if err != nil {
		return space.Config{}, err
	}
	author, err := protocol.ParsePublicKey(s.Author)
	if err != nil {
		return space.Config{}, err
	}
	return space.Config{RootBlock: root, Author: author, Title: s.Title}, nil
}
