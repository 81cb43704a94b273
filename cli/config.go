package main

import (
	"fmt"
	"os"

	"github.com/adonese/kaos/kaos_fields"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath  = "/app/config.yaml"
	defaultSecretsPath = "/app/secrets.yaml"
)

// loadConfig reads config.yaml, overlays secrets.yaml when present and then
// the environment. explicit wins over the default search paths.
func loadConfig(explicit string) (kaos_fields.KaosConfig, error) {
	var cfg kaos_fields.KaosConfig

	configPath := explicit
	if configPath == "" {
		configPath = firstExistingPath(defaultConfigPath, "./config.yaml", "../config.yaml")
	} else if _, err := os.Stat(configPath); err != nil {
		return cfg, fmt.Errorf("config %s: %w", configPath, err)
	}

	merged := map[string]interface{}{}
	if configPath != "" {
		configMap, err := readYAML(configPath)
		if err != nil {
			return cfg, err
		}
		merged = configMap
		if secretsPath := firstExistingPath(defaultSecretsPath, "./secrets.yaml"); secretsPath != "" {
			secretsMap, err := readYAML(secretsPath)
			if err != nil {
				return cfg, err
			}
			merged, _ = mergeConfig(merged, secretsMap).(map[string]interface{})
		}
	}

	// Settings may be nested under a top level "kaos" key.
	section := getMap(merged, "kaos")
	if section == nil {
		section = merged
	}
	payload, err := yaml.Marshal(section)
	if err != nil {
		return cfg, fmt.Errorf("encode kaos config: %w", err)
	}
	if err := yaml.Unmarshal(payload, &cfg); err != nil {
		return cfg, fmt.Errorf("parse kaos config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func readYAML(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	out := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse config yaml %s: %w", path, err)
	}
	return out, nil
}

func firstExistingPath(paths ...string) string {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func mergeConfig(base, override interface{}) interface{} {
	if override == nil {
		return base
	}

	switch overrideTyped := override.(type) {
	case map[string]interface{}:
		baseMap, ok := base.(map[string]interface{})
		if !ok {
			baseMap = map[string]interface{}{}
		}
		result := map[string]interface{}{}
		for key, value := range baseMap {
			result[key] = value
		}
		for key, value := range overrideTyped {
			result[key] = mergeConfig(result[key], value)
		}
		return result
	case []interface{}:
		if len(overrideTyped) == 0 {
			return base
		}
		return overrideTyped
	case string:
		if overrideTyped == "" {
			return base
		}
		return overrideTyped
	default:
		return override
	}
}

func getMap(source map[string]interface{}, key string) map[string]interface{} {
	if source == nil {
		return nil
	}
	if typed, ok := source[key].(map[string]interface{}); ok {
		return typed
	}
	return nil
}
