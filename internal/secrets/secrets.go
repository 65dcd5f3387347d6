// Package secrets resolves credentials from a managed secrets file with a
// fallback to .env and the process environment.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Provider returns the value for key, or false when it is absent.
type Provider interface {
	Get(key string) (string, bool)
}

// FileProvider reads top-level KEY = "value" pairs from a TOML file.
// A missing file behaves like an empty one.
type FileProvider struct {
	path   string
	once   sync.Once
	values map[string]string
	err    error
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

func (p *FileProvider) load() {
	p.values = map[string]string{}
	if p.path == "" {
		return
	}

	raw := map[string]interface{}{}
	if _, err := toml.DecodeFile(p.path, &raw); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		p.err = fmt.Errorf("failed to read secrets file %s: %w", p.path, err)
		return
	}

	for k, v := range raw {
		switch val := v.(type) {
		case string:
			p.values[k] = val
		case int64, float64, bool:
			p.values[k] = fmt.Sprint(val)
		}
	}
}

// Err reports a malformed secrets file. Absence is not an error.
func (p *FileProvider) Err() error {
	p.once.Do(p.load)
	return p.err
}

func (p *FileProvider) Get(key string) (string, bool) {
	p.once.Do(p.load)
	v, ok := p.values[key]
	return v, ok && v != ""
}

// EnvProvider loads the given .env files once, then reads the environment.
// Variables already set in the environment win over .env entries.
type EnvProvider struct {
	files []string
	once  sync.Once
}

func NewEnvProvider(files ...string) *EnvProvider {
	return &EnvProvider{files: files}
}

func (p *EnvProvider) Get(key string) (string, bool) {
	p.once.Do(func() {
		// Load .env file if it exists
		godotenv.Load(p.files...)
	})
	v, ok := os.LookupEnv(key)
	return v, ok && v != ""
}

// Chain asks each provider in order and returns the first hit.
type Chain []Provider

func (c Chain) Get(key string) (string, bool) {
	for _, p := range c {
		if v, ok := p.Get(key); ok {
			return v, true
		}
	}
	return "", false
}

// Err returns the first load error reported by a provider in the chain.
func (c Chain) Err() error {
	for _, p := range c {
		if fp, ok := p.(interface{ Err() error }); ok {
			if err := fp.Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Lookup tries keys in order against p.
func Lookup(p Provider, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := p.Get(k); ok {
			return v, true
		}
	}
	return "", false
}
