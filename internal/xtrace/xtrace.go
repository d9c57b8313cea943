/*
 *    Copyright 2021 chenquan
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *        http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 */

// Package xtrace wires an OpenTelemetry tracer provider, exporting to
// either Jaeger or Zipkin depending on configuration. The broker core
// uses the returned tracer to open one span per dispatched packet,
// giving an operator an end-to-end trace of a PUBLISH from ingress
// connection through subscriber fan-out.
package xtrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Name is the tracer name the broker registers its spans under.
const Name = "github.com/yunqi/lighthouse"

// Options configures the exporter backend. Exactly one of JaegerEndpoint
// or ZipkinEndpoint should be set; an empty Options disables tracing
// (the no-op tracer provider is used).
type Options struct {
	JaegerEndpoint string
	ZipkinEndpoint string
	ServiceName    string
}

// Init installs a global TracerProvider per Options and returns a
// shutdown func to flush pending spans on broker exit.
func Init(opts Options) (func(context.Context) error, error) {
	if opts.JaegerEndpoint == "" && opts.ZipkinEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = "lighthouse"
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(attribute.String("service.name", serviceName)))
	if err != nil {
		return nil, err
	}

	var exporter sdktrace.SpanExporter
	if opts.JaegerEndpoint != "" {
		exporter, err = jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(opts.JaegerEndpoint)))
	} else {
		exporter, err = zipkin.New(opts.ZipkinEndpoint)
	}
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the broker's named tracer from whatever TracerProvider
// is currently installed (the global no-op one if Init was never called).
func Tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(Name)
}
