package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"
)

// yamlConfig resolves flag defaults from a YAML (or JSON) document. Keys may
// use the flag name as written ("log-level") or with underscores.
func yamlConfig(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return kong.ResolverFunc(func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		for _, key := range configKeys(flag.Name) {
			if v, ok := values[key]; ok {
				return v, nil
			}
		}
		return nil, nil
	}), nil
}

func configKeys(name string) []string {
	under := strings.ReplaceAll(name, "-", "_")
	if under == name {
		return []string{name}
	}
	return []string{name, under}
}
