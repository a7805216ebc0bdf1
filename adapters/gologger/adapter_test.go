package gologger

import (
	"context"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestResolveDeterministicFallback(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	var resolvedProvider glog.LoggerProvider
	_, resolved := Resolve(RootName, provider, loggerOnly)
	got := resolved.(*capturingLogger)
	if got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolvedProvider, resolved = Resolve(RootName, nil, loggerOnly)
	got = resolved.(*capturingLogger)
	if got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	_, resolved = Resolve(RootName, nil, nil)
	if resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestGoJobBridgeCompatibility(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	_, _, jobProvider, jobLogger := ResolveForJob(RootName, provider, nil)
	if jobProvider == nil {
		t.Fatalf("expected go-job provider bridge")
	}
	if jobLogger == nil {
		t.Fatalf("expected go-job logger bridge")
	}

	bridged := jobProvider.GetLogger(ComponentName("queue"))
	bridged.Info("hello", "k", "v")

	captured := providerLogger.lastInfo
	if captured.msg != "hello" {
		t.Fatalf("expected bridged message, got %q", captured.msg)
	}
	if captured.args[0] != "k" || captured.args[1] != "v" {
		t.Fatalf("expected bridged args, got %#v", captured.args)
	}
}

func TestComponentName(t *testing.T) {
	cases := map[string]string{
		"":           "shopify-sync",
		" queue ":    "shopify-sync.queue",
		".webhooks.": "shopify-sync.webhooks",
	}
	for in, want := range cases {
		if got := ComponentName(in); got != want {
			t.Fatalf("ComponentName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestForComponentSharesNamedLogger(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	loggers := ForComponent("worker", provider, nil, nil)
	if loggers.Name != "shopify-sync.worker" {
		t.Fatalf("unexpected component name %q", loggers.Name)
	}
	if provider.lastName != "shopify-sync.worker" {
		t.Fatalf("expected provider lookup by component name, got %q", provider.lastName)
	}
	if loggers.Job == nil {
		t.Fatalf("expected go-job logger")
	}

	loggers.Job.Info("job claimed", "job_id", "job_1")
	if providerLogger.lastInfo.msg != "job claimed" {
		t.Fatalf("expected go-job logger to write to component logger, got %q", providerLogger.lastInfo.msg)
	}
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger   *capturingLogger
	lastName string
}

func (p *capturingProvider) GetLogger(name string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	p.lastName = name
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{
		msg:  msg,
		args: append([]any(nil), args...),
	}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
