package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/danielcopper/openapi-image-gen/pkg/types"
)

func collectEvents(t *testing.T, s *Stream, ctx context.Context) []Event {
	t.Helper()
	var out []Event
	for {
		ev, ok := s.Next(ctx)
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func TestStreamHappySequence(t *testing.T) {
	ran := 0
	s := NewStream("dall-e-3", types.ProviderProxy, func(ctx context.Context) (*types.GenerationResult, error) {
		ran++
		return &types.GenerationResult{
			Images:   []types.Image{{URL: "http://x/images/a.png"}},
			Model:    "dall-e-3",
			Provider: types.ProviderProxy,
		}, nil
	})

	evs := collectEvents(t, s, context.Background())
	if len(evs) != 4 {
		t.Fatalf("events=%d", len(evs))
	}
	wantStatus := []string{"queued", "generating", "processing", "complete"}
	wantProgress := []int{0, 20, 80, 100}
	for i, ev := range evs {
		if ev.Status != wantStatus[i] || ev.Progress != wantProgress[i] {
			t.Fatalf("event %d: %+v", i, ev)
		}
	}
	if ran != 1 {
		t.Fatalf("run called %d times", ran)
	}
	last := evs[3]
	if last.Type != EventComplete || len(last.ImageURLs) != 1 || last.Result == nil {
		t.Fatalf("terminal event: %+v", last)
	}
}

func TestStreamLazyUntilPulled(t *testing.T) {
	ran := 0
	s := NewStream("", types.ProviderProxy, func(ctx context.Context) (*types.GenerationResult, error) {
		ran++
		return &types.GenerationResult{}, nil
	})
	s.Next(context.Background()) // queued
	s.Next(context.Background()) // generating
	if ran != 0 {
		t.Fatal("generation must not run before the third pull")
	}
	s.Next(context.Background())
	if ran != 1 {
		t.Fatalf("run called %d times", ran)
	}
}

func TestStreamErrorIsTerminal(t *testing.T) {
	s := NewStream("m", types.ProviderProxy, func(ctx context.Context) (*types.GenerationResult, error) {
		return nil, errors.New("backend exploded")
	})
	evs := collectEvents(t, s, context.Background())
	if len(evs) != 3 {
		t.Fatalf("events=%d", len(evs))
	}
	last := evs[2]
	if last.Type != EventError || last.Status != "error" || last.Err == nil {
		t.Fatalf("terminal event: %+v", last)
	}
	// The stream is exhausted; further pulls return nothing.
	if _, ok := s.Next(context.Background()); ok {
		t.Fatal("stream must stay closed after terminal event")
	}
}

func TestStreamStopsOnCancel(t *testing.T) {
	s := NewStream("m", types.ProviderProxy, func(ctx context.Context) (*types.GenerationResult, error) {
		t.Fatal("run must not be invoked after cancel")
		return nil, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	if _, ok := s.Next(ctx); !ok {
		t.Fatal("first event expected")
	}
	cancel()
	if _, ok := s.Next(ctx); ok {
		t.Fatal("canceled stream must stop emitting")
	}
}

func TestStreamExactlyOneTerminal(t *testing.T) {
	s := NewStream("m", types.ProviderProxy, func(ctx context.Context) (*types.GenerationResult, error) {
		return &types.GenerationResult{}, nil
	})
	terminal := 0
	for {
		ev, ok := s.Next(context.Background())
		if !ok {
			break
		}
		if ev.Type == EventComplete || ev.Type == EventError {
			terminal++
		}
	}
	if terminal != 1 {
		t.Fatalf("terminal events=%d", terminal)
	}
}
