package config

import "time"

type param interface {
	key() string
	service() string
	emptyValue() paramValue
}

// paramKey identifies a param within a service. Key is a "/" separated path
type paramKey struct {
	path string
	svc  string
}

func (p paramKey) key() string {
	return p.path
}

func (p paramKey) service() string {
	return p.svc
}

func (p paramKey) emptyValue() paramValue {
	panic("param type is unknown: " + p.String())
}

func (p paramKey) String() string {
	if p.svc == "" {
		return p.path
	}
	return p.svc + ":" + p.path
}

// StringParam is a text param
type StringParam struct {
	paramKey
}

func (p StringParam) emptyValue() paramValue {
	return StringVal{val: new(string)}
}

// DurationParam is a param like "2s" or "5m"
type DurationParam struct {
	paramKey
}

func (p DurationParam) emptyValue() paramValue {
	return DurationVal{val: new(time.Duration)}
}
