package logging

import (
	"context"
	"log/slog"
)

// ContextProvider returns the attributes describing what is running right now,
// e.g. the episode and tick.
type ContextProvider func() []slog.Attr

// ContextHandler appends the provider's attributes to every record. A provided
// key the record or the logger already carries is left out, so a call that logs
// its own "episode" is not duplicated.
type ContextHandler struct {
	inner    slog.Handler
	provider ContextProvider
	preset   map[string]struct{}
	grouped  bool
}

func NewContextHandler(inner slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{inner: inner, provider: provider}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider == nil {
		return h.inner.Handle(ctx, r)
	}
	attrs := h.provider()
	if len(attrs) == 0 {
		return h.inner.Handle(ctx, r)
	}

	seen := make(map[string]struct{}, r.NumAttrs()+len(h.preset))
	for k := range h.preset {
		seen[k] = struct{}{}
	}
	r.Attrs(func(a slog.Attr) bool {
		seen[a.Key] = struct{}{}
		return true
	})
	for _, a := range attrs {
		if _, dup := seen[a.Key]; !dup {
			r.AddAttrs(a)
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := h.clone()
	out.inner = h.inner.WithAttrs(attrs)
	if !h.grouped {
		// keys inside a group do not collide with top-level context keys
		for _, a := range attrs {
			out.preset[a.Key] = struct{}{}
		}
	}
	return out
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	out := h.clone()
	out.inner = h.inner.WithGroup(name)
	out.grouped = true
	return out
}

func (h *ContextHandler) clone() *ContextHandler {
	preset := make(map[string]struct{}, len(h.preset))
	for k := range h.preset {
		preset[k] = struct{}{}
	}
	return &ContextHandler{inner: h.inner, provider: h.provider, preset: preset, grouped: h.grouped}
}
