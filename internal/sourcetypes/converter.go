package sourcetypes

import "context"

// Converter describes a source-type handler known to the service.
type Converter interface {
	SourceType() string
	HealthCheck(context.Context) Health
}

// Health summarizes the readiness of a converter.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// External is a converter implemented by remote workers that poll for its
// source type. It is always ready from the service's point of view.
type External string

// SourceType implements Converter.
func (e External) SourceType() string { return string(e) }

// HealthCheck implements Converter.
func (e External) HealthCheck(context.Context) Health {
	h := Healthy(string(e))
	h.Detail = "converted by polling workers"
	return h
}
