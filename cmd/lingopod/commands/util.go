package commands

import (
	"context"
	"fmt"

	"github.com/lingopod/lingopod/pkg/cli"
	"github.com/lingopod/lingopod/pkg/goal"
	"github.com/lingopod/lingopod/pkg/jsontime"
	"github.com/lingopod/lingopod/pkg/profile"
	"github.com/lingopod/lingopod/pkg/realtime"
	"github.com/lingopod/lingopod/pkg/responses"
)

const (
	defaultRealtimeModel = "gpt-4o-realtime-preview"
	defaultResponsesURL  = "https://api.openai.com/v1/responses"
	defaultTextModel     = "gpt-4o-mini"
	defaultGeminiModel   = "gemini-2.0-flash"
)

// sessionRequest is the -f request file for session run.
type sessionRequest struct {
	// Settings are the conversation settings. Saved settings from a
	// previous session take precedence for fields already on disk.
	Settings profile.Settings `yaml:"settings" json:"settings"`

	// Goal seeds an initial practice goal.
	Goal *goal.Variation `yaml:"goal,omitempty" json:"goal,omitempty"`

	// Variations rotate as follow-up goals after each completion.
	Variations []goal.Variation `yaml:"variations,omitempty" json:"variations,omitempty"`

	// Seed selects how follow-up goals are produced: "variations" (the
	// default) rotates the list above, "context" derives the next goal
	// from recent conversation turns and falls back to the list.
	Seed string `yaml:"seed,omitempty" json:"seed,omitempty"`

	// Translations enables per-turn translation of assistant messages.
	Translations bool `yaml:"translations" json:"translations"`

	// Record enables per-turn clip recording into the local cache.
	Record bool `yaml:"record" json:"record"`

	// Recorder tunes the clip stop heuristic. Zero fields use the
	// recorder defaults. Durations are strings like "900ms".
	Recorder recorderTuning `yaml:"recorder,omitempty" json:"recorder,omitempty"`

	// Archive exports the session on exit.
	Archive bool `yaml:"archive" json:"archive"`
}

// recorderTuning is the recorder stop-heuristic section of a session
// request.
type recorderTuning struct {
	// Quiet is how long the level must stay below the arm threshold
	// before the clip is cut.
	Quiet jsontime.Duration `yaml:"quiet,omitempty" json:"quiet,omitempty"`

	// MinActive is the minimum voiced time before quiet can cut.
	MinActive jsontime.Duration `yaml:"min_active,omitempty" json:"min_active,omitempty"`

	// Max caps a single clip's duration.
	Max jsontime.Duration `yaml:"max,omitempty" json:"max,omitempty"`
}

func contextModel(cc *cli.Context) string {
	if cc.Model != "" {
		return cc.Model
	}
	return defaultRealtimeModel
}

func newRealtimeClient(cc *cli.Context) *realtime.Client {
	var opts []realtime.Option
	if cc.WebSocketURL != "" {
		opts = append(opts, realtime.WithWebSocketURL(cc.WebSocketURL))
	}
	if cc.SignalingURL != "" {
		opts = append(opts, realtime.WithSignalingURL(cc.SignalingURL))
	}
	return realtime.NewClient(cc.APIKey, opts...)
}

// newDialFunc builds the engine dial callback for the context's
// configured transport.
func newDialFunc(cc *cli.Context, voice string) (func(ctx context.Context) (realtime.Session, error), error) {
	client := newRealtimeClient(cc)
	connect := &realtime.ConnectConfig{
		Model: contextModel(cc),
		Voice: voice,
	}
	switch cc.Transport {
	case "", "websocket":
		return func(ctx context.Context) (realtime.Session, error) {
			return client.ConnectWebSocket(ctx, connect)
		}, nil
	case "webrtc":
		return func(ctx context.Context) (realtime.Session, error) {
			return client.ConnectWebRTC(ctx, connect)
		}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q (want websocket or webrtc)", cc.Transport)
	}
}

func newResponsesClient(cc *cli.Context) *responses.Client {
	return &responses.Client{
		URL:    defaultResponsesURL,
		APIKey: cc.APIKey,
		Model:  defaultTextModel,
	}
}
