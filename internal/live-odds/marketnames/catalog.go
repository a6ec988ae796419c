package marketnames

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

const defaultSport = "default"

//go:embed defaults.yaml
var defaultsYAML []byte

// Source fornece nomes que sobrescrevem os padrões (ex.: tabela no postgres)
type Source interface {
	ListNames(ctx context.Context) ([]Entry, error)
}

type Entry struct {
	Sport    string
	MarketID int64
	Name     string
}

// Catalog resolve o nome de exibição de um mercado por (id, esporte).
// Ordem: override do esporte, padrão do esporte, override geral, padrão geral, "Market <id>".
type Catalog struct {
	mu        sync.RWMutex
	defaults  map[string]map[int64]string
	overrides map[string]map[int64]string
}

// New carrega os padrões embutidos
func New() (*Catalog, error) {
	return Parse(defaultsYAML)
}

// Parse monta um catálogo a partir de YAML no formato esporte -> id -> nome
func Parse(data []byte) (*Catalog, error) {
	defaults := map[string]map[int64]string{}
	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return nil, fmt.Errorf("parse market names: %w", err)
	}
	return &Catalog{defaults: defaults, overrides: map[string]map[int64]string{}}, nil
}

// LoadOverrides substitui os overrides atuais pelo conteúdo da fonte
func (c *Catalog) LoadOverrides(ctx context.Context, src Source) (int, error) {
	entries, err := src.ListNames(ctx)
	if err != nil {
		return 0, fmt.Errorf("load market name overrides: %w", err)
	}
	next := map[string]map[int64]string{}
	for _, e := range entries {
		sport := e.Sport
		if sport == "" {
			sport = defaultSport
		}
		if next[sport] == nil {
			next[sport] = map[int64]string{}
		}
		next[sport][e.MarketID] = e.Name
	}

	c.mu.Lock()
	c.overrides = next
	c.mu.Unlock()
	return len(entries), nil
}

func (c *Catalog) Name(marketID int64, sport string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, layer := range []struct {
		m     map[string]map[int64]string
		sport string
	}{
		{c.overrides, sport},
		{c.defaults, sport},
		{c.overrides, defaultSport},
		{c.defaults, defaultSport},
	} {
		if n, ok := layer.m[layer.sport][marketID]; ok && n != "" {
			return n
		}
	}
	return fmt.Sprintf("Market %d", marketID)
}
