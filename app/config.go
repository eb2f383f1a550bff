package app

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"io/ioutil"
	"net/url"
)

// GatewayConfig
func (self *GatewayConfig) URL() *url.URL {
	if self.url == nil {
		u, err := url.Parse(self.Connect)
		if err != nil {
			panic(err)
		}
		self.url = u
	}
	return self.url
}

func (self *GatewayConfig) validateValues() error {
	if self.Connect == "" {
		return errors.New("gateway.connect is empty")
	}
	u, err := url.Parse(self.Connect)
	if err != nil {
		return errors.Wrap(err, "url.Parse")
	}
	switch u.Scheme {
	case "ws", "wss", "redis":
	default:
		return errors.Errorf("unsupported connect scheme %q", u.Scheme)
	}
	self.url = u

	if self.Route == nil {
		return errors.New("gateway.route is required")
	}
	specs := map[string]*ResolverSpec{
		"gateway.route":        self.Route,
		"gateway.command":      self.Command,
		"gateway.elementtype":  self.ElementType,
		"gateway.responsetype": self.ResponseType,
	}
	for name, spec := range specs {
		if spec == nil {
			continue
		}
		if err := spec.validateValues(name); err != nil {
			return err
		}
	}
	return nil
}

func (self *ResolverSpec) validateValues(name string) error {
	hasValue := self.Value != nil
	hasExpr := self.Expr != ""
	if hasValue && hasExpr {
		return errors.Errorf("%s has both value and expr", name)
	}
	if !hasValue && !hasExpr {
		return errors.Errorf("%s needs a value or an expr", name)
	}
	return nil
}

func (self *AppConfig) Load(yamlPath string) error {
	data, err := ioutil.ReadFile(yamlPath)
	if err != nil {
		return errors.Wrap(err, "ioutil.ReadFile")
	}
	return self.LoadYamldata(data)
}

func (self *AppConfig) LoadYamldata(yamlData []byte) error {
	err := yaml.Unmarshal(yamlData, self)
	if err != nil {
		return errors.Wrap(err, "yaml.Unmarshal")
	}
	return self.validateValues()
}

func (self *AppConfig) validateValues() error {
	return self.Gateway.validateValues()
}
