package config

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

const (
	defaultConfigFile = "default.json"
	envOverridesFile  = "custom-environment-variables.json"
)

type localSource struct {
	dir   string
	files []string

	// service params are read from the root when serviceAtRoot is set
	service       string
	serviceAtRoot bool
}

// LocalOpt configures a local source
type LocalOpt func(s *localSource)

// WithDir reads config files from a given dir
func WithDir(dir string) LocalOpt {
	return func(s *localSource) {
		s.dir = dir
	}
}

// WithAppEnv adds "<env>.json" on top of defaults
func WithAppEnv(appEnv AppEnv) LocalOpt {
	return func(s *localSource) {
		if appEnv.Name != "" {
			s.files = append(s.files, appEnv.Name+".json")
		}
		s.service = appEnv.ServiceName
	}
}

// WithServiceAtRoot resolves params of the app service without service prefix
func WithServiceAtRoot() LocalOpt {
	return func(s *localSource) {
		s.serviceAtRoot = true
	}
}

func projectConfigDir() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		panic("Can not resolve config dir")
	}
	return filepath.Join(file, "..", "..", "..", "..", "config")
}

// NewLocalSource reads params from JSON files of a config dir. Later files
// win over default.json. Env variables named in
// custom-environment-variables.json win over files
func NewLocalSource(opts ...LocalOpt) (Source, error) {
	source := &localSource{
		dir:   projectConfigDir(),
		files: []string{defaultConfigFile},
	}
	for _, opt := range opts {
		opt(source)
	}
	return source, nil
}

func readJSONTree(file string) (map[string]interface{}, error) {
	buffer, err := ioutil.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(buffer, &tree); err != nil {
		return nil, errors.Wrapf(err, "Malformed config file %v", file)
	}
	return tree, nil
}

func lookup(tree map[string]interface{}, path string) (interface{}, bool) {
	var node interface{} = tree
	for _, part := range strings.Split(path, "/") {
		obj, ok := node.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if node, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return node, node != nil
}

func (s *localSource) pathOf(p param) string {
	if p.service() == "" || (s.serviceAtRoot && p.service() == s.service) {
		return p.key()
	}
	return p.service() + "/" + p.key()
}

func (s *localSource) GetParameters(ctx context.Context, params []param) (map[param]interface{}, error) {
	values := make(map[param]interface{}, len(params))
	for _, name := range s.files {
		tree, err := readJSONTree(filepath.Join(s.dir, name))
		if os.IsNotExist(err) && name != defaultConfigFile {
			continue
		}
		if err != nil {
			return nil, err
		}
		logger.Debug(ctx, "Reading params from %v", name)
		for _, p := range params {
			if val, ok := lookup(tree, s.pathOf(p)); ok {
				values[p] = val
			}
		}
	}

	overrides, err := readJSONTree(filepath.Join(s.dir, envOverridesFile))
	if os.IsNotExist(err) {
		return values, nil
	}
	if err != nil {
		return nil, err
	}
	for _, p := range params {
		varName, _ := lookup(overrides, s.pathOf(p))
		if name, ok := varName.(string); ok {
			if envVal := os.Getenv(name); envVal != "" {
				values[p] = envVal
			}
		}
	}
	return values, nil
}
