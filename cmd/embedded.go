package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:embed configs/*.yaml
var configsFS embed.FS

// defaultConfigName is the embedded config used when nothing else is found.
const defaultConfigName = "config"

// getEmbeddedConfig returns the raw bytes of an embedded config file.
// name can be with or without the .yaml extension.
func getEmbeddedConfig(name string) ([]byte, error) {
	if !strings.HasSuffix(name, ".yaml") {
		name += ".yaml"
	}
	return configsFS.ReadFile(filepath.Join("configs", name))
}

// configSearchPaths lists filesystem locations checked before the
// embedded default, in order of preference.
func configSearchPaths() []string {
	var paths []string
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		paths = append(paths, filepath.Join(homeDir, ".config", appName, "config.yaml"))
	}
	return append(paths, "configs/config.yaml", "config.yaml")
}

// resolveServeConfig resolves the config for the serve command.
// Checks: user flag -> filesystem locations -> embedded config.
// Returns raw bytes and source description.
func resolveServeConfig(userConfig string, searchPaths []string) ([]byte, string, error) {
	if userConfig != "" {
		data, err := os.ReadFile(userConfig)
		if err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", userConfig)
		}
		return data, userConfig, nil
	}

	for _, path := range searchPaths {
		if data, err := os.ReadFile(path); err == nil {
			return data, path, nil
		}
	}

	data, err := getEmbeddedConfig(defaultConfigName)
	if err != nil {
		return nil, "", fmt.Errorf("no config file found, specify --config path: %w", err)
	}
	return data, "(embedded) " + defaultConfigName + ".yaml", nil
}
