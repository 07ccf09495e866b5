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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// newTestProvider installs a provider backed by an in-memory exporter.
func newTestProvider(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	provider, err := New(context.Background(), Config{
		Enabled:    true,
		SampleRate: 1.0,
	}, sdktrace.WithSyncer(exporter))
	require.NoError(t, err)
	require.True(t, provider.Enabled())

	t.Cleanup(func() {
		provider.Shutdown(context.Background())
	})

	return exporter
}

func TestProvider_Disabled(t *testing.T) {
	provider, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, provider.Enabled())
	assert.NoError(t, provider.Shutdown(context.Background()))
	assert.NoError(t, provider.ForceFlush(context.Background()))
}

func TestProvider_ServiceResource(t *testing.T) {
	exporter := newTestProvider(t)

	_, span := PluginStartup(context.Background(), "jira")
	End(span, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	var serviceName string
	for _, attr := range spans[0].Resource.Attributes() {
		if attr.Key == semconv.ServiceNameKey {
			serviceName = attr.Value.AsString()
		}
	}
	assert.Equal(t, "skillsd", serviceName)
}

func TestPluginStartupSpan(t *testing.T) {
	exporter := newTestProvider(t)

	_, span := PluginStartup(context.Background(), "confluence")
	End(span, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "plugin.startup", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.String("skillsd.plugin", "confluence"))
}

func TestConnectorExecuteSpan(t *testing.T) {
	exporter := newTestProvider(t)

	_, span := ConnectorExecute(context.Background(), "jira", "get_issue", "CLOSED")
	End(span, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	captured := spans[0]
	assert.Equal(t, "connector.execute", captured.Name)
	assert.Contains(t, captured.Attributes, attribute.String("skillsd.connector", "jira"))
	assert.Contains(t, captured.Attributes, attribute.String("skillsd.operation", "get_issue"))
	assert.Contains(t, captured.Attributes, attribute.String("skillsd.circuit_state", "CLOSED"))
	assert.Equal(t, codes.Unset, captured.Status.Code)
}

func TestEnd_RecordsError(t *testing.T) {
	exporter := newTestProvider(t)

	_, span := ConnectorConnect(context.Background(), "jira")
	End(span, errors.New("dial failed"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	captured := spans[0]
	assert.Equal(t, "connector.connect", captured.Name)
	assert.Equal(t, codes.Error, captured.Status.Code)
	assert.Equal(t, "dial failed", captured.Status.Description)
	require.NotEmpty(t, captured.Events)
	assert.Equal(t, "exception", captured.Events[0].Name)
}

func TestSpanNesting(t *testing.T) {
	exporter := newTestProvider(t)

	ctx, parent := PluginStartup(context.Background(), "jira")
	_, child := ConnectorConnect(ctx, "jira")
	End(child, nil)
	End(parent, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	// Children export first under a syncer.
	assert.Equal(t, "connector.connect", spans[0].Name)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
	assert.Equal(t, spans[1].SpanContext.TraceID(), spans[0].SpanContext.TraceID())
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		contains string
	}{
		{name: "always at full rate", rate: 1.0, contains: "AlwaysOnSampler"},
		{name: "never at zero", rate: 0.0, contains: "AlwaysOffSampler"},
		{name: "parent-based ratio between", rate: 0.25, contains: "TraceIDRatioBased"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampler := newSampler(tt.rate)
			if !strings.Contains(sampler.Description(), tt.contains) {
				t.Errorf("expected sampler description to contain %q, got %q", tt.contains, sampler.Description())
			}
			if tt.rate > 0.0 && tt.rate < 1.0 && !strings.Contains(sampler.Description(), "ParentBased") {
				t.Errorf("expected parent-based sampler, got %q", sampler.Description())
			}
		})
	}
}
