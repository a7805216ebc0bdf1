package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/naashmtp/odoo-shopify-connector/core"
)

// RootName prefixes every component logger name.
const RootName = "shopify-sync"

// ComponentName returns shopify-sync.<component>, or the root name when
// component is blank.
func ComponentName(component string) string {
	component = strings.Trim(strings.TrimSpace(component), ".")
	if component == "" {
		return RootName
	}
	return RootName + "." + component
}

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves glog logger/provider then returns equivalent go-job adapters.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}

// ComponentLoggers gives a sync component its observer and the go-job
// logger for workers that run on its behalf, both backed by the same named
// logger.
type ComponentLoggers struct {
	Name     string
	Observer core.Observer
	Job      job.Logger
}

func ForComponent(
	component string,
	provider core.LoggerProvider,
	logger core.Logger,
	metrics core.MetricsRecorder,
) ComponentLoggers {
	name := ComponentName(component)
	observer := core.ResolveObserver(name, provider, logger, metrics)
	return ComponentLoggers{
		Name:     name,
		Observer: observer,
		Job:      ToJobLogger(observer.Logger()),
	}
}
