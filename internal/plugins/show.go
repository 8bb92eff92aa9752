package plugins

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/frederic-klein/yapp/internal/dist"
)

// Plugin is an installed package exposing plugin entry points.
type Plugin struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Source      string   `yaml:"source,omitempty"`
	EntryPoints []string `yaml:"entry_points"`
}

// Lister reports installed plugins.
type Lister struct {
	envs   EnvProvider
	loader PackageLoader
	groups []string
}

// NewLister creates a lister matching entry points in groups.
func NewLister(envs EnvProvider, loader PackageLoader, groups []string) *Lister {
	return &Lister{envs: envs, loader: loader, groups: groups}
}

// List returns the installed plugins sorted by name.
func (l *Lister) List(ctx context.Context) ([]Plugin, error) {
	env, err := l.envs.SystemEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering environment: %w", err)
	}
	packages, err := l.loader.Load(env, false)
	if err != nil {
		return nil, fmt.Errorf("reading installed packages: %w", err)
	}

	var plugins []Plugin
	for _, pkg := range packages {
		if !pkg.ProvidesAny(l.groups) {
			continue
		}
		p := Plugin{Name: pkg.Name, Version: pkg.Version, Source: source(pkg.Direct)}
		for _, g := range l.groups {
			p.EntryPoints = append(p.EntryPoints, pkg.EntryPoints[g]...)
		}
		sort.Strings(p.EntryPoints)
		plugins = append(plugins, p)
	}

	sort.Slice(plugins, func(i, j int) bool {
		return dist.CanonicalizeName(plugins[i].Name) < dist.CanonicalizeName(plugins[j].Name)
	})
	return plugins, nil
}

func source(d *dist.DirectURL) string {
	if d == nil {
		return ""
	}
	switch d.Kind {
	case dist.KindVCS:
		if d.Revision != "" {
			return fmt.Sprintf("%s+%s@%s", d.VCS, d.URL, d.Revision)
		}
		return d.VCS + "+" + d.URL
	default:
		return d.URL
	}
}

// WriteText prints plugins for humans.
func WriteText(w io.Writer, plugins []Plugin) error {
	if len(plugins) == 0 {
		_, err := fmt.Fprintln(w, "No plugins installed.")
		return err
	}

	for i, p := range plugins {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		noun := "plugins"
		if len(p.EntryPoints) == 1 {
			noun = "plugin"
		}
		if _, err := fmt.Fprintf(w, "  • %s (%s): provides %d %s\n",
			color.CyanString(p.Name), color.GreenString(p.Version), len(p.EntryPoints), noun); err != nil {
			return err
		}
		if p.Source != "" {
			if _, err := fmt.Fprintf(w, "      source: %s\n", p.Source); err != nil {
				return err
			}
		}
		for _, ep := range p.EntryPoints {
			if _, err := fmt.Fprintf(w, "      - %s\n", ep); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteYAML prints plugins as a YAML list.
func WriteYAML(w io.Writer, plugins []Plugin) error {
	if plugins == nil {
		plugins = []Plugin{}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(plugins); err != nil {
		return fmt.Errorf("encoding plugins: %w", err)
	}
	return enc.Close()
}
