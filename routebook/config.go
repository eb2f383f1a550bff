package routebook

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/superisaac/jgate/expr"
	yaml "gopkg.in/yaml.v2"
	"io/ioutil"
)

func (self *RoutebookConfig) Load(filePath string) error {
	log.Infof("read routebook from %s", filePath)
	data, err := ioutil.ReadFile(filePath)
	if err != nil {
		return err
	}
	return self.LoadBytes(data)
}

func (self *RoutebookConfig) LoadBytes(data []byte) error {
	err := yaml.Unmarshal(data, self)
	if err != nil {
		return err
	}
	err = self.validateValues()
	return err
}

func (self *RoutebookConfig) validateValues() error {
	if self.Version == "" {
		self.Version = "1.0"
	}

	for name, route := range self.Routes {
		if route.Notify && route.Stream {
			return errors.Errorf("route %s cannot be both notify and stream", name)
		}
		if route.Script != "" {
			resolver, err := expr.Script(route.Script)
			if err != nil {
				return errors.Wrapf(err, "route %s", name)
			}
			route.scriptResolver = resolver
		}
	}
	return nil
}
