package gateway

import (
	"context"

	"github.com/danielcopper/openapi-image-gen/pkg/types"
)

// EventType tags a progress event.
type EventType string

const (
	// EventStatus is a non-terminal progress update.
	EventStatus EventType = "status"
	// EventComplete is the successful terminal event.
	EventComplete EventType = "complete"
	// EventError is the failure terminal event.
	EventError EventType = "error"
)

// Event is one element of the progress sequence. Terminal events carry
// either the final result or the failure, never both.
type Event struct {
	Type      EventType               `json:"-"`
	Status    string                  `json:"status"`
	Progress  int                     `json:"progress"`
	Message   string                  `json:"message"`
	ImageURLs []string                `json:"image_urls,omitempty"`
	Model     string                  `json:"model,omitempty"`
	Provider  types.Provider          `json:"provider,omitempty"`
	Fallback  bool                    `json:"fallback_used,omitempty"`
	Result    *types.GenerationResult `json:"-"`
	Err       error                   `json:"-"`
}

// Stream is a finite, non-restartable, lazily evaluated sequence of
// progress events. The consumer drives it by calling Next; the underlying
// generation runs between the "generating" and "processing" events, on
// the consumer's pull. Exactly one terminal event is produced.
type Stream struct {
	model string
	prov  types.Provider
	run   func(context.Context) (*types.GenerationResult, error)

	step int
	res  *types.GenerationResult
	done bool
}

// NewStream builds the sequence without starting any work.
func NewStream(model string, prov types.Provider, run func(context.Context) (*types.GenerationResult, error)) *Stream {
	return &Stream{model: model, prov: prov, run: run}
}

// Next yields the next event. It returns ok=false after the terminal
// event, and stops emitting immediately once ctx is canceled.
func (s *Stream) Next(ctx context.Context) (Event, bool) {
	if s.done || ctx.Err() != nil {
		s.done = true
		return Event{}, false
	}
	switch s.step {
	case 0:
		s.step++
		return Event{Type: EventStatus, Status: "queued", Progress: 0,
			Message: "Request queued for " + s.displayModel()}, true
	case 1:
		s.step++
		return Event{Type: EventStatus, Status: "generating", Progress: 20,
			Message: "Starting generation with " + string(s.prov) + "/" + s.displayModel()}, true
	case 2:
		res, err := s.run(ctx)
		if err != nil {
			s.done = true
			return Event{Type: EventError, Status: "error", Message: err.Error(), Err: err}, true
		}
		s.res = res
		s.step++
		return Event{Type: EventStatus, Status: "processing", Progress: 80,
			Message: "Processing and saving images"}, true
	case 3:
		s.done = true
		urls := make([]string, 0, len(s.res.Images))
		for _, img := range s.res.Images {
			if img.URL != "" {
				urls = append(urls, img.URL)
			}
		}
		return Event{
			Type:      EventComplete,
			Status:    "complete",
			Progress:  100,
			Message:   "Generation finished",
			ImageURLs: urls,
			Model:     s.res.Model,
			Provider:  s.res.Provider,
			Fallback:  s.res.FallbackUsed,
			Result:    s.res,
		}, true
	}
	s.done = true
	return Event{}, false
}

func (s *Stream) displayModel() string {
	if s.model == "" {
		return "default model"
	}
	return s.model
}
