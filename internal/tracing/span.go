// Copyright 2026 The skillsd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// scopeName is the instrumentation scope for spans emitted by the daemon.
const scopeName = "github.com/skillsd/skillsd"

// PluginStartup starts a span covering a plugin's startup sequence.
func PluginStartup(ctx context.Context, plugin string) (context.Context, trace.Span) {
	return otel.Tracer(scopeName).Start(ctx, "plugin.startup",
		trace.WithAttributes(attribute.String("skillsd.plugin", plugin)),
	)
}

// ConnectorConnect starts a span covering a connector dial.
func ConnectorConnect(ctx context.Context, connector string) (context.Context, trace.Span) {
	return otel.Tracer(scopeName).Start(ctx, "connector.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("skillsd.connector", connector)),
	)
}

// ConnectorExecute starts a span covering a single operation execution.
// circuitState is the breaker state observed before the call.
func ConnectorExecute(ctx context.Context, connector, operation, circuitState string) (context.Context, trace.Span) {
	return otel.Tracer(scopeName).Start(ctx, "connector.execute",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("skillsd.connector", connector),
			attribute.String("skillsd.operation", operation),
			attribute.String("skillsd.circuit_state", circuitState),
		),
	)
}

// End completes the span, recording err as an error status when non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
