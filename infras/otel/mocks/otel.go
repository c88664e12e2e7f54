// Package mocks provides no-op tracing for tests.
package mocks

import (
	"context"

	"roomkey/infras/otel"
)

type noopOtel struct{}

// NewOtel returns an Otel whose scopes record nothing.
func NewOtel() otel.Otel {
	return noopOtel{}
}

func (noopOtel) NewScope(ctx context.Context, _, _ string) (context.Context, otel.Scope) {
	return ctx, NewScope()
}

type noopScope struct{}

func NewScope() otel.Scope {
	return noopScope{}
}

func (noopScope) End()                               {}
func (noopScope) TraceError(error)                   {}
func (noopScope) TraceIfError(*error)                {}
func (noopScope) AddEvent(string, ...map[string]any) {}
func (noopScope) SetAttribute(string, any)           {}
func (noopScope) SetAttributes(map[string]any)       {}
