package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"
	"google.golang.org/genai"

	"github.com/lingopod/lingopod/pkg/archive"
	"github.com/lingopod/lingopod/pkg/cli"
	"github.com/lingopod/lingopod/pkg/clipcache"
	"github.com/lingopod/lingopod/pkg/engine"
	"github.com/lingopod/lingopod/pkg/goal"
	"github.com/lingopod/lingopod/pkg/profile"
	"github.com/lingopod/lingopod/pkg/realtime"
	"github.com/lingopod/lingopod/pkg/recorder"
	"github.com/lingopod/lingopod/pkg/transcript"
	"github.com/lingopod/lingopod/pkg/translate"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Run or monitor a live practice session",
}

var sessionRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive practice session",
	Long: `Start a voice practice session from a request file.

Example request file (session.yaml):
  settings:
    target_language: es
    native_language: en
    level: beginner
    voice: coral
    custom_subjects: [soccer, cooking]
  goal:
    title: Order a coffee
    rubric: The learner asks for a coffee, in Spanish, politely.
  variations:
    - title: Ask for directions
      rubric: The learner asks how to get somewhere in Spanish.
  seed: context
  translations: true
  record: true
  archive: true

The session runs until interrupted with Ctrl+C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireInputFile(); err != nil {
			return err
		}
		cc, err := getContext()
		if err != nil {
			return err
		}
		var req sessionRequest
		if err := cli.LoadRequest(inputFile, &req); err != nil {
			return err
		}
		printVerbose("Using context: %s", cc.Name)
		return runSession(cmd.Context(), cc, &req)
	},
}

func runSession(parent context.Context, cc *cli.Context, req *sessionRequest) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	paths, err := cli.NewPaths()
	if err != nil {
		return err
	}
	if err := paths.EnsureBaseDir(); err != nil {
		return err
	}

	var clips clipcache.Store
	if req.Record {
		if err := paths.EnsureClipsDir(); err != nil {
			return err
		}
		clips, err = clipcache.NewBadger(clipcache.BadgerOptions{Dir: paths.ClipsDir()})
		if err != nil {
			return fmt.Errorf("opening clip cache: %w", err)
		}
		defer clips.Close()
	}

	var translator translate.Translator
	if req.Translations {
		translator = &translate.Remote{Client: newResponsesClient(cc)}
	}

	styles := cli.NewStyles(cli.DefaultTheme)
	goals, err := newGoalEngine(ctx, cc, req, styles)
	if err != nil {
		return err
	}

	dial, err := newDialFunc(cc, req.Settings.Voice)
	if err != nil {
		return err
	}

	printer := &turnPrinter{styles: styles, done: make(map[string]bool), translated: make(map[string]bool)}
	var eng *engine.Engine
	eng, err = engine.New(engine.Config{
		Dial:       dial,
		Settings:   req.Settings,
		Profile:    profile.NewFile(paths.ProfileFile()),
		Translator: translator,
		Goals:      goals,
		Clips:      clips,
		Recorder: recorder.Config{
			Quiet:     req.Recorder.Quiet.Duration(),
			MinActive: req.Recorder.MinActive.Duration(),
			Max:       req.Recorder.Max.Duration(),
		},
		OnState: func(s engine.UIState) {
			printVerbose("state: %s", s)
		},
		OnUpdate: func() {
			printer.print(eng.Messages())
		},
		OnError: func(err error) {
			cli.PrintError("%v", err)
		},
	})
	if err != nil {
		return err
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}
	cli.PrintInfo("Connected. Speak in %s; Ctrl+C ends the session.", eng.Settings().TargetLanguage)

	<-ctx.Done()
	if err := eng.Stop(); err != nil {
		printVerbose("teardown: %v", err)
	}
	if goals != nil {
		goals.Wait()
	}
	printer.print(eng.Messages())

	if req.Archive {
		id, err := exportSession(paths, eng, clips)
		if err != nil {
			return fmt.Errorf("archiving session: %w", err)
		}
		cli.PrintSuccess("Session archived as %s", id)
	}
	return nil
}

// newGoalEngine wires the goal scorer: Gemini-judged when the context has
// a Gemini key, responses-judged otherwise. Returns nil when the request
// configures no goal.
func newGoalEngine(ctx context.Context, cc *cli.Context, req *sessionRequest, styles cli.Styles) (*goal.Engine, error) {
	if req.Goal == nil && len(req.Variations) == 0 {
		return nil, nil
	}
	lang := req.Settings.TargetLanguage

	var evaluator goal.Evaluator
	if cc.GeminiAPIKey != "" {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cc.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("creating gemini client: %w", err)
		}
		evaluator = &goal.GeminiEvaluator{Client: client, Model: defaultGeminiModel}
	} else {
		evaluator = &goal.HTTPEvaluator{Client: newResponsesClient(cc)}
	}

	var seeder goal.Seeder
	if len(req.Variations) > 0 {
		seeder = &goal.VariationSeeder{Variations: req.Variations, Lang: lang}
	}
	switch req.Seed {
	case "", "variations":
	case "context":
		seeder = &goal.ContextSeeder{
			Client:   newResponsesClient(cc),
			Lang:     lang,
			Fallback: seeder,
		}
	default:
		return nil, fmt.Errorf("unknown seed mode %q (want variations or context)", req.Seed)
	}

	totalXP := 0
	var mu sync.Mutex
	eng := &goal.Engine{
		Evaluator:     evaluator,
		Store:         goal.NewMemoryStore(),
		Seeder:        seeder,
		Pronunciation: req.Settings.Pronunciation,
		OnEvent: func(ev goal.Event) {
			mu.Lock()
			totalXP += ev.XP
			xp := totalXP
			mu.Unlock()
			switch ev.Type {
			case goal.EventGoalXP:
				cli.PrintSuccess("Goal completed: %s  %s", ev.Goal.Title, styles.GoalLine(ev.Goal.Title, ev.Goal.Attempts, xp))
			case goal.EventTurnXP:
				if ev.Verdict != nil && ev.Verdict.Feedback != "" {
					printVerbose("feedback: %s", ev.Verdict.Feedback)
				}
			case goal.EventGoalSeeded:
				cli.PrintInfo("New goal: %s", ev.Goal.Title)
			}
		},
	}

	first := req.Goal
	if first == nil {
		first = &req.Variations[0]
	}
	eng.Seed(&goal.Goal{
		ID:     "goal_" + uuid.New().String()[:8],
		Title:  first.Title,
		Rubric: first.Rubric,
		Lang:   lang,
	})
	return eng, nil
}

// turnPrinter streams finished turns and late-arriving translations to
// stdout, each exactly once.
type turnPrinter struct {
	styles     cli.Styles
	mu         sync.Mutex
	done       map[string]bool
	translated map[string]bool
}

func (p *turnPrinter) print(msgs []*transcript.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if m.Done && !p.done[m.ID] {
			p.done[m.ID] = true
			for _, line := range p.styles.TranscriptLines([]*transcript.Message{m}, false) {
				fmt.Println(line)
			}
		}
		if p.done[m.ID] && m.Translation != "" && !p.translated[m.ID] {
			p.translated[m.ID] = true
			fmt.Println("      " + p.styles.Translation.Render(m.Translation))
		}
	}
}

func exportSession(paths *cli.Paths, eng *engine.Engine, clips clipcache.Store) (string, error) {
	blobs, err := archive.NewDir(paths.ArchiveDir())
	if err != nil {
		return "", err
	}
	ex := &archive.Exporter{Blobs: blobs, Clips: clips}
	id := time.Now().Format("2006-01-02T15-04-05")
	m := &archive.Manifest{
		ID:       id,
		Settings: eng.Settings(),
		Messages: eng.Messages(),
	}
	return id, ex.Export(context.Background(), m)
}

var monitorJQ string

var sessionMonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Stream raw server events as JSON",
	Long: `Connect to the realtime endpoint and print every server event as one
JSON object per line. Useful for protocol debugging.

The --jq flag filters each event through a jq expression:

  lingopod -c personal session monitor --jq 'select(.type == "error")'
  lingopod -c personal session monitor --jq '.type'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cc, err := getContext()
		if err != nil {
			return err
		}

		var query *gojq.Query
		if monitorJQ != "" {
			query, err = gojq.Parse(monitorJQ)
			if err != nil {
				return fmt.Errorf("invalid jq expression %q: %w", monitorJQ, err)
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		client := newRealtimeClient(cc)
		sess, err := client.ConnectWebSocket(ctx, &realtime.ConnectConfig{Model: contextModel(cc)})
		if err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			sess.Close()
		}()

		for ev, err := range sess.Events() {
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			var v any
			if len(ev.Raw) > 0 {
				if err := json.Unmarshal(ev.Raw, &v); err != nil {
					continue
				}
			} else {
				v = map[string]any{"type": ev.Type}
			}
			if query == nil {
				printJSON(v)
				continue
			}
			iter := query.Run(v)
			for {
				r, ok := iter.Next()
				if !ok {
					break
				}
				if _, isErr := r.(error); isErr {
					continue
				}
				printJSON(r)
			}
		}
		return nil
	},
}

func printJSON(v any) {
	out, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Println(string(out))
}

var sessionClipCmd = &cobra.Command{
	Use:   "clip <message-id>",
	Short: "Export a recorded clip's PCM audio from the local cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputFile == "" {
			return fmt.Errorf("output file is required, use -o flag")
		}
		paths, err := cli.NewPaths()
		if err != nil {
			return err
		}
		clips, err := clipcache.NewBadger(clipcache.BadgerOptions{Dir: paths.ClipsDir()})
		if err != nil {
			return fmt.Errorf("opening clip cache: %w", err)
		}
		defer clips.Close()

		clip, err := clips.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := cli.OutputBytes(clip.Data, outputFile); err != nil {
			return err
		}
		cli.PrintSuccess("Wrote %s (%s, %dHz, %s)",
			outputFile, cli.FormatBytes(clip.ByteSize), clip.Meta.SampleRate,
			cli.FormatDuration(int(clip.Meta.DurationMs)))
		return nil
	},
}

func init() {
	sessionMonitorCmd.Flags().StringVar(&monitorJQ, "jq", "", "jq expression applied to each event")

	sessionCmd.AddCommand(sessionRunCmd)
	sessionCmd.AddCommand(sessionMonitorCmd)
	sessionCmd.AddCommand(sessionClipCmd)
}
