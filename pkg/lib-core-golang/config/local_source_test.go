package config

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bxcodec/faker/v3"
	"github.com/stretchr/testify/assert"
)

func writeJSON(t *testing.T, dir, name string, value interface{}) {
	buffer, err := json.Marshal(value)
	if err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dir, name), buffer, 0600); err != nil {
		t.Fatal(err)
	}
}

func TestNewLocalSource(t *testing.T) {
	source, err := NewLocalSource()
	if !assert.NoError(t, err) {
		return
	}
	local := source.(*localSource)
	assert.Equal(t, "config", filepath.Base(local.dir))
	assert.FileExists(t, filepath.Join(local.dir, "default.json"))
	assert.Equal(t, []string{"default.json"}, local.files)
}

func TestLocalSource_GetParameters(t *testing.T) {
	const service = "fints-fetcher"
	var (
		logLevel     = paramKey{path: "log/logLevel", svc: service}
		pollInterval = paramKey{path: "fints/tan-poll-interval", svc: service}
		tanTimeout   = paramKey{path: "fints/tan-timeout", svc: service}
		productID    = paramKey{path: "fints/product-id", svc: service}
		unscoped     = paramKey{path: "fints/http-timeout"}
	)

	type testCase struct {
		name   string
		files  map[string]interface{}
		env    map[string]string
		opts   []LocalOpt
		params []param
		assert func(t *testing.T, values map[param]interface{}, err error)
	}
	tests := []func() testCase{
		func() testCase {
			return testCase{
				name: "env file wins over defaults",
				files: map[string]interface{}{
					"default.json": map[string]interface{}{
						"log":   map[string]interface{}{"logLevel": "info"},
						"fints": map[string]interface{}{"tan-poll-interval": "2s", "tan-timeout": "5m", "http-timeout": "30s"},
					},
					"production.json": map[string]interface{}{
						"fints": map[string]interface{}{"tan-timeout": "10m"},
					},
				},
				opts:   []LocalOpt{WithAppEnv(AppEnv{ServiceName: service, Name: "production"}), WithServiceAtRoot()},
				params: []param{logLevel, pollInterval, tanTimeout, unscoped},
				assert: func(t *testing.T, values map[param]interface{}, err error) {
					if !assert.NoError(t, err) {
						return
					}
					assert.Equal(t, map[param]interface{}{
						logLevel:     "info",
						pollInterval: "2s",
						tanTimeout:   "10m",
						unscoped:     "30s",
					}, values)
				},
			}
		},
		func() testCase {
			id := faker.UUIDDigit()
			return testCase{
				name: "service scoped params",
				files: map[string]interface{}{
					"default.json": map[string]interface{}{
						"fints": map[string]interface{}{"product-id": "root-level"},
					},
					"dev.json": map[string]interface{}{
						service: map[string]interface{}{
							"fints": map[string]interface{}{"product-id": id},
						},
					},
				},
				opts:   []LocalOpt{WithAppEnv(AppEnv{ServiceName: service, Name: "dev"})},
				params: []param{productID},
				assert: func(t *testing.T, values map[param]interface{}, err error) {
					if assert.NoError(t, err) {
						assert.Equal(t, map[param]interface{}{productID: id}, values)
					}
				},
			}
		},
		func() testCase {
			envName := "FINTS_TAN_TIMEOUT_" + strings.ToUpper(faker.Word())
			return testCase{
				name: "env variables win over files",
				files: map[string]interface{}{
					"default.json": map[string]interface{}{
						"fints": map[string]interface{}{"tan-poll-interval": "2s", "tan-timeout": "5m"},
					},
					"custom-environment-variables.json": map[string]interface{}{
						"fints": map[string]interface{}{
							"tan-timeout":       envName,
							"tan-poll-interval": envName + "_UNSET",
						},
					},
				},
				env:    map[string]string{envName: "90s"},
				opts:   []LocalOpt{WithAppEnv(AppEnv{ServiceName: service, Name: "test"}), WithServiceAtRoot()},
				params: []param{pollInterval, tanTimeout},
				assert: func(t *testing.T, values map[param]interface{}, err error) {
					if assert.NoError(t, err) {
						assert.Equal(t, map[param]interface{}{pollInterval: "2s", tanTimeout: "90s"}, values)
					}
				},
			}
		},
		func() testCase {
			return testCase{
				name: "null and missing keys are skipped",
				files: map[string]interface{}{
					"default.json": map[string]interface{}{
						"fints": map[string]interface{}{"tan-timeout": nil, "tan-poll-interval": map[string]interface{}{}},
					},
				},
				opts:   []LocalOpt{WithServiceAtRoot(), WithAppEnv(AppEnv{ServiceName: service})},
				params: []param{tanTimeout, productID, unscoped},
				assert: func(t *testing.T, values map[param]interface{}, err error) {
					if assert.NoError(t, err) {
						assert.Empty(t, values)
					}
				},
			}
		},
		func() testCase {
			return testCase{
				name:   "default file is required",
				files:  map[string]interface{}{},
				params: []param{logLevel},
				assert: func(t *testing.T, values map[param]interface{}, err error) {
					assert.Error(t, err)
				},
			}
		},
		func() testCase {
			return testCase{
				name:   "malformed file",
				files:  map[string]interface{}{"default.json": "{not json"},
				params: []param{logLevel},
				assert: func(t *testing.T, values map[param]interface{}, err error) {
					if assert.Error(t, err) {
						assert.Contains(t, err.Error(), "Malformed config file")
					}
				},
			}
		},
	}
	for _, tt := range tests {
		tt := tt()
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				if raw, ok := content.(string); ok {
					if err := ioutil.WriteFile(filepath.Join(dir, name), []byte(raw), 0600); err != nil {
						t.Fatal(err)
					}
					continue
				}
				writeJSON(t, dir, name, content)
			}
			for name, value := range tt.env {
				setEnv(t, name, value)
			}
			source, err := NewLocalSource(append([]LocalOpt{WithDir(dir)}, tt.opts...)...)
			if !assert.NoError(t, err) {
				return
			}
			values, err := source.GetParameters(context.Background(), tt.params)
			tt.assert(t, values, err)
		})
	}
}
