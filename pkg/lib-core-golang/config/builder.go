package config

import "context"

// SourceFactory creates a source once config is loaded
type SourceFactory func() (Source, error)

// Builder collects params of an app grouped by their source
type Builder struct {
	appEnv AppEnv
	groups []*ParamsBuilder
}

// NewBuilder returns a builder for a given env
func NewBuilder(appEnv AppEnv) *Builder {
	return &Builder{appEnv: appEnv}
}

// LocalSource reads params of the app from the root of config files
func (b *Builder) LocalSource() SourceFactory {
	return func() (Source, error) {
		return NewLocalSource(WithAppEnv(b.appEnv), WithServiceAtRoot())
	}
}

// RemoteSource reads params from AWS SSM. Dev and test envs read them
// from config files under the service name
func (b *Builder) RemoteSource() SourceFactory {
	return func() (Source, error) {
		if b.appEnv.localOnly() {
			return NewLocalSource(WithAppEnv(b.appEnv))
		}
		return NewAWSSSMSource(b.appEnv)
	}
}

// NewParamsBuilder starts a group of params read from one source
func (b *Builder) NewParamsBuilder(factory SourceFactory) *ParamsBuilder {
	group := &ParamsBuilder{service: b.appEnv.ServiceName, factory: factory}
	b.groups = append(b.groups, group)
	return group
}

// LoadConfig creates sources and loads values of all built params
func (b *Builder) LoadConfig(ctx context.Context) (ServiceConfig, error) {
	bindings := make([]binding, 0, len(b.groups))
	for _, group := range b.groups {
		source, err := group.factory()
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, binding{params: group.params, source: source})
	}
	logger.Info(ctx, "Loading config of %v env", b.appEnv.Name)
	cfg, err := load(ctx, bindings)
	if err != nil {
		logger.WithError(err).Error(ctx, "Failed to load config")
		return nil, err
	}
	return cfg, nil
}

// ParamsBuilder declares params of one source
type ParamsBuilder struct {
	service string
	factory SourceFactory
	params  []param
}

func (b *ParamsBuilder) keyOf(path string) paramKey {
	return paramKey{path: path, svc: b.service}
}

// String declares a text param
func (b *ParamsBuilder) String(path string) StringParam {
	p := StringParam{b.keyOf(path)}
	b.params = append(b.params, p)
	return p
}

// Duration declares a duration param
func (b *ParamsBuilder) Duration(path string) DurationParam {
	p := DurationParam{b.keyOf(path)}
	b.params = append(b.params, p)
	return p
}
