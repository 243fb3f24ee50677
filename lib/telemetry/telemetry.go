package telemetry

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"moodle-bridge/lib/configutil"

	"go.opentelemetry.io/otel"
)

type Telemetry struct {
	shutdownFuncs []func(context.Context) error
}

func (t Telemetry) Shutdown(ctx context.Context) error {
	var errlist []error
	for _, shutdown := range t.shutdownFuncs {
		err := shutdown(ctx)
		if err != nil {
			errlist = append(errlist, err)
		}
	}
	return errors.Join(errlist...)
}

type OtlpConnConfig struct {
	GrpcEndpoint string            `json:"grpc_endpoint"`
	HttpEndpoint string            `json:"http_endpoint"`
	Headers      map[string]string `json:"headers"`
}

type OtlpConfig struct {
	Traces  OtlpConnConfig `json:"traces"`
	Metrics OtlpConnConfig `json:"metrics"`
}

type Config struct {
	Otlp OtlpConfig `json:"otlp"`
}

var setupTestEnvironments = map[string]bool{}

// sets up telemetry in a testing environment, ensuring that it isn't
// set up more than once. a missing telemetry.json5 is not an error in
// tests, logging still works without an exporter.
func SetupForTesting(t testing.TB, serviceName string) func() {
	if setupTestEnvironments[serviceName] {
		return func() {}
	}
	setupTestEnvironments[serviceName] = true

	InitSlog(true)

	ctx := context.Background()
	tel, err := SetupFromEnv(ctx, serviceName)
	if os.IsNotExist(err) {
		return func() {}
	}
	if err != nil {
		t.Fatal(err)
	}
	return func() {
		err := tel.Shutdown(ctx)
		if err != nil {
			t.Fatal(err)
		}
	}
}

// searches up the filesystem from the cwd to find a file
// called telemetry.json5, once found it will then use it
// as a config to setup telemetry
func SetupFromEnv(ctx context.Context, serviceName string) (Telemetry, error) {
	config, err := configutil.ReadRecursively[Config]("telemetry.json5")
	if err != nil {
		return Telemetry{}, err
	}
	return Setup(ctx, serviceName, config)
}

func Setup(ctx context.Context, serviceName string, config Config) (Telemetry, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*15)
	defer cancel()

	r, err := newResource(serviceName)
	if err != nil {
		return Telemetry{}, err
	}

	tracerProvider, err := newTraceProvider(ctx, r, config)
	if err != nil {
		return Telemetry{}, err
	}
	otel.SetTracerProvider(tracerProvider)

	meterProvider, err := newMetricProvider(ctx, r, config)
	if err != nil {
		return Telemetry{}, err
	}
	otel.SetMeterProvider(meterProvider)

	return Telemetry{
		shutdownFuncs: []func(context.Context) error{
			tracerProvider.Shutdown,
			meterProvider.Shutdown,
		},
	}, nil
}
