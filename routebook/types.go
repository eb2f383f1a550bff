package routebook

import (
	"github.com/superisaac/jgate/expr"
)

type ShellT struct {
	Cmd     string   `yaml:"command"`
	Env     []string `yaml:"env,omitempty"`
	Timeout *int     `yaml:"timeout,omitempty"`
}

type RouteT struct {
	Description string  `yaml:"description,omitempty"`
	Script      string  `yaml:"script,omitempty"`
	Shell       *ShellT `yaml:"shell,omitempty"`
	Stream      bool    `yaml:"stream,omitempty"`
	Notify      bool    `yaml:"notify,omitempty"`

	scriptResolver *expr.ScriptResolver `yaml:"-"`
}

type RoutebookConfig struct {
	Version string               `yaml:"version,omitempty"`
	Routes  map[string](*RouteT) `yaml:"routes,omitempty"`
}

type Routebook struct {
	Config RoutebookConfig
}
