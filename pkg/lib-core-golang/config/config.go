// Package config loads typed params from local JSON files, env variables
// and AWS SSM.
package config

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/lib-core-golang/diag"
)

const (
	appEnvVar      = "APP_ENV"
	clusterNameVar = "CLUSTER_NAME"

	awsSSMEndpointURLVar          = "AWS_SSM_ENDPOINT_URL"
	awsSSMEndpointTokenVar        = "AWS_SSM_ENDPOINT_TOKEN"
	awsSSMEndpointTokenHeaderName = "x-access-token"
)

var logger = diag.CreateLogger()

// AppEnv describes where the app runs
type AppEnv struct {
	ServiceName string

	// Name comes from APP_ENV. Defaults to "test" under go test and "dev" otherwise
	Name string

	// ClusterName comes from CLUSTER_NAME and scopes remote params
	ClusterName string
}

// localOnly is true for envs that keep remote params in local files
func (e AppEnv) localOnly() bool {
	return e.Name == "dev" || e.Name == "test"
}

func runningTests() bool {
	return flag.Lookup("test.v") != nil
}

// NewAppEnv reads the app env from os env
func NewAppEnv(serviceName string) AppEnv {
	env := AppEnv{
		ServiceName: serviceName,
		Name:        os.Getenv(appEnvVar),
		ClusterName: os.Getenv(clusterNameVar),
	}
	if env.Name != "" {
		return env
	}
	if runningTests() {
		env.Name = "test"
	} else {
		env.Name = "dev"
	}
	return env
}

// Source reads raw values of params
type Source interface {
	GetParameters(ctx context.Context, params []param) (map[param]interface{}, error)
}

// ServiceConfig gives access to loaded values
type ServiceConfig interface {
	String(p StringParam) StringVal
	Duration(p DurationParam) DurationVal
}

type serviceConfig map[param]paramValue

func (cfg serviceConfig) value(p param) paramValue {
	val, ok := cfg[p]
	if !ok {
		panic(fmt.Sprintf("Param %v has not been loaded", p))
	}
	return val
}

func (cfg serviceConfig) String(p StringParam) StringVal {
	return cfg.value(p).(StringVal)
}

func (cfg serviceConfig) Duration(p DurationParam) DurationVal {
	return cfg.value(p).(DurationVal)
}

type binding struct {
	params []param
	source Source
}

// load resolves every bound param. A param without a value is an error
func load(ctx context.Context, bindings []binding) (ServiceConfig, error) {
	cfg := serviceConfig{}
	for _, b := range bindings {
		raw, err := b.source.GetParameters(ctx, b.params)
		if err != nil {
			return nil, errors.Wrap(err, "Failed to fetch params")
		}
		logger.
			WithData(diag.MsgData{"params": b.params}).
			Debug(ctx, "Fetched %v of %v params", len(raw), len(b.params))
		for _, p := range b.params {
			rawVal, ok := raw[p]
			if !ok {
				return nil, errors.Errorf("Parameter %v not found", p)
			}
			val := p.emptyValue()
			if err := val.set(rawVal); err != nil {
				return nil, errors.Wrapf(err, "Bad value of parameter %v", p)
			}
			cfg[p] = val
		}
	}
	return cfg, nil
}
