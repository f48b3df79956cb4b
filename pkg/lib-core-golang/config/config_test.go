package config

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/bxcodec/faker/v3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type mockSource struct {
	values map[param]interface{}
	err    error
}

func (s *mockSource) GetParameters(ctx context.Context, params []param) (map[param]interface{}, error) {
	return s.values, s.err
}

func setEnv(t *testing.T, name, value string) {
	prev, existed := os.LookupEnv(name)
	os.Setenv(name, value)
	t.Cleanup(func() {
		if existed {
			os.Setenv(name, prev)
		} else {
			os.Unsetenv(name)
		}
	})
}

func TestNewAppEnv(t *testing.T) {
	t.Run("from os env", func(t *testing.T) {
		setEnv(t, appEnvVar, "production")
		setEnv(t, clusterNameVar, "cluster-"+faker.Word())
		env := NewAppEnv("fints-fetcher")
		assert.Equal(t, AppEnv{
			ServiceName: "fints-fetcher",
			Name:        "production",
			ClusterName: os.Getenv(clusterNameVar),
		}, env)
		assert.False(t, env.localOnly())
	})
	t.Run("test by default under go test", func(t *testing.T) {
		setEnv(t, appEnvVar, "")
		env := NewAppEnv("fints-fetcher")
		assert.Equal(t, "test", env.Name)
		assert.True(t, env.localOnly())
	})
}

func TestLoad(t *testing.T) {
	type testCase struct {
		name     string
		bindings []binding
		assert   func(t *testing.T, cfg ServiceConfig, err error)
	}
	productID := StringParam{paramKey{path: "fints/product-id", svc: "fints-fetcher"}}
	pollInterval := DurationParam{paramKey{path: "fints/tan-poll-interval"}}
	tests := []func() testCase{
		func() testCase {
			id := faker.UUIDDigit()
			return testCase{
				name: "typed values from every binding",
				bindings: []binding{
					{params: []param{pollInterval}, source: &mockSource{values: map[param]interface{}{pollInterval: "3s"}}},
					{params: []param{productID}, source: &mockSource{values: map[param]interface{}{productID: id}}},
				},
				assert: func(t *testing.T, cfg ServiceConfig, err error) {
					if !assert.NoError(t, err) {
						return
					}
					assert.Equal(t, id, cfg.String(productID).Value())
					assert.Equal(t, 3*time.Second, cfg.Duration(pollInterval).Value())
					assert.Panics(t, func() {
						cfg.String(StringParam{paramKey{path: "unknown"}})
					})
				},
			}
		},
		func() testCase {
			return testCase{
				name: "missing value",
				bindings: []binding{
					{params: []param{productID}, source: &mockSource{values: map[param]interface{}{}}},
				},
				assert: func(t *testing.T, cfg ServiceConfig, err error) {
					assert.EqualError(t, err, fmt.Sprintf("Parameter %v not found", productID))
				},
			}
		},
		func() testCase {
			return testCase{
				name: "bad value",
				bindings: []binding{
					{params: []param{pollInterval}, source: &mockSource{values: map[param]interface{}{pollInterval: true}}},
				},
				assert: func(t *testing.T, cfg ServiceConfig, err error) {
					if assert.Error(t, err) {
						assert.Contains(t, err.Error(), "Bad value of parameter fints/tan-poll-interval")
					}
				},
			}
		},
		func() testCase {
			sourceErr := errors.New(faker.Sentence())
			return testCase{
				name: "source error",
				bindings: []binding{{params: []param{productID}, source: &mockSource{err: sourceErr}}},
				assert: func(t *testing.T, cfg ServiceConfig, err error) {
					assert.Equal(t, sourceErr, errors.Cause(err))
				},
			}
		},
	}
	for _, tt := range tests {
		tt := tt()
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := load(context.Background(), tt.bindings)
			tt.assert(t, cfg, err)
		})
	}
}
