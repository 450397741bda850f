package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"shorts-gen/internal/audio"
	"shorts-gen/internal/captions"
	"shorts-gen/internal/logging"
	"shorts-gen/internal/media"
	"shorts-gen/internal/model"
	"shorts-gen/internal/video"
)

type Stage string

const (
	StageScript         Stage = "script"
	StageSpeech         Stage = "speech"
	StageVisualSearch   Stage = "visual-search"
	StageNarrationProbe Stage = "narration-probe"
	StageVisual         Stage = "visual"
	StageMatch          Stage = "match"
	StageMix            Stage = "mix"
	StageMixedProbe     Stage = "mixed-probe"
	StageCompose        Stage = "compose"
	StagePublish        Stage = "publish"
)

// StageError aborts a content unit and names the stage that failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Transcriber produces a timed transcript of an audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (model.Transcript, error)
}

type Options struct {
	ScratchDir    string
	Segment       captions.SegmentOptions
	AttenuationDB float64
}

// Unit is one content unit: narration, a candidate visual and an optional bed.
// Transcript may be supplied up front; otherwise the Transcriber is asked.
type Unit struct {
	ID            string
	NarrationPath string
	VisualPath    string
	BedPath       string
	Transcript    *model.Transcript
	OutputPath    string
	SRTPath       string
}

type Outcome struct {
	RunID             string
	VideoPath         string
	SRTPath           string
	NarrationDuration float64
	FinalDuration     float64
	MatchLoops        int
	BedUsed           bool
	CaptionStrategy   string
	Attempts          []model.RenderAttempt
	Tier              captions.Tier
	CueCount          int
	Degradations      []string
	Elapsed           time.Duration
}

// Captioned reports whether captions were burned into the video.
func (o *Outcome) Captioned() bool {
	return o.CaptionStrategy != ""
}

type Coordinator struct {
	opts        Options
	prober      media.Prober
	matcher     *video.Matcher
	mixer       *audio.Mixer
	composer    *video.Composer
	renderer    *captions.Renderer
	transcriber Transcriber
	log         *logging.Logger
}

func NewCoordinator(opts Options, prober media.Prober, matcher *video.Matcher, mixer *audio.Mixer,
	composer *video.Composer, renderer *captions.Renderer, transcriber Transcriber, log *logging.Logger) *Coordinator {
	return &Coordinator{
		opts:        opts,
		prober:      prober,
		matcher:     matcher,
		mixer:       mixer,
		composer:    composer,
		renderer:    renderer,
		transcriber: transcriber,
		log:         log,
	}
}

// Run takes one unit through probe, match, mix, re-probe, compose, caption
// and publish. Stages run strictly in order; fatal failures come back as
// *StageError and recoverable ones are listed in Outcome.Degradations. The
// unit's workspace is removed on every path.
func (c *Coordinator) Run(ctx context.Context, u Unit) (*Outcome, error) {
	started := time.Now()
	runID := u.ID
	if runID == "" {
		runID = uuid.NewString()
	}
	out := &Outcome{RunID: runID}
	degrade := func(msg string) {
		c.log.Warnf("pipeline[%s]: degraded: %s", runID, msg)
		out.Degradations = append(out.Degradations, msg)
	}

	ws, err := media.NewWorkspace(c.opts.ScratchDir, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Close(); err != nil {
			c.log.Warnf("pipeline[%s]: cleanup %s: %v", runID, ws.Dir, err)
		}
	}()

	narration, err := media.ProbeAsset(ctx, c.prober, u.NarrationPath, model.MediaAudio)
	if err != nil {
		return nil, stageErr(StageNarrationProbe, err)
	}
	if narration.Duration <= 0 {
		return nil, stageErr(StageNarrationProbe, fmt.Errorf("narration %s has zero duration", u.NarrationPath))
	}
	out.NarrationDuration = narration.Duration
	c.log.Infof("pipeline[%s]: narration %.2fs", runID, narration.Duration)

	if u.VisualPath == "" {
		return nil, stageErr(StageVisual, errors.New("no visual asset candidate"))
	}
	matched, err := c.matcher.Match(ctx, ws, model.MediaAsset{Path: u.VisualPath, Kind: model.MediaVideo}, narration.Duration)
	if err != nil {
		return nil, stageErr(StageMatch, err)
	}
	out.MatchLoops = matched.Loops
	if matched.ToleranceExceeded {
		degrade(fmt.Sprintf("matched visual is %.2fs for a %.2fs narration", matched.Asset.Duration, narration.Duration))
	}

	spec := model.MixSpec{Primary: narration, AttenuationDB: c.opts.AttenuationDB}
	if u.BedPath != "" {
		spec.Bed = &model.MediaAsset{Path: u.BedPath, Kind: model.MediaAudio}
	}
	mixed, err := c.mixer.Mix(ctx, ws, spec)
	if err != nil {
		return nil, stageErr(StageMix, err)
	}
	out.BedUsed = mixed.BedUsed
	for _, d := range mixed.Diagnostics {
		degrade(d)
	}

	final, err := c.prober.Probe(ctx, mixed.Asset.Path)
	if err != nil {
		return nil, stageErr(StageMixedProbe, err)
	}
	if final <= 0 {
		return nil, stageErr(StageMixedProbe, fmt.Errorf("mixed audio %s has zero duration", mixed.Asset.Path))
	}
	mixed.Asset.Duration = final
	out.FinalDuration = final
	c.log.Infof("pipeline[%s]: mixed audio %.2fs (narration %.2fs)", runID, final, narration.Duration)

	composed, err := c.composer.Compose(ctx, ws, matched.Asset, mixed.Asset, final)
	if err != nil {
		return nil, stageErr(StageCompose, err)
	}

	cues := c.captionCues(ctx, u, narration, final, out, degrade)

	result := composed.Path
	if len(cues) > 0 {
		rr := c.renderer.Render(ctx, captions.RenderJob{Workspace: ws, Video: composed, Cues: cues})
		out.Attempts = rr.Attempts
		out.CaptionStrategy = rr.Strategy
		result = rr.Output
		if rr.State.Phase == captions.ExhaustedFailed {
			degrade("all caption strategies failed, shipping without captions")
		}
	}

	if err := media.Publish(result, u.OutputPath); err != nil {
		return nil, stageErr(StagePublish, err)
	}
	out.VideoPath = u.OutputPath

	if u.SRTPath != "" && len(cues) > 0 {
		tmp := ws.Path("final.srt")
		if err := captions.WriteSRT(tmp, cues); err != nil {
			degrade(fmt.Sprintf("subtitle file not written: %v", err))
		} else if err := media.Publish(tmp, u.SRTPath); err != nil {
			degrade(fmt.Sprintf("subtitle file not published: %v", err))
		} else {
			out.SRTPath = u.SRTPath
		}
	}

	out.Elapsed = time.Since(started)
	c.log.Infof("pipeline[%s]: ✓ %s (%.2fs, captions=%q, bed=%v, degradations=%d) in %s",
		runID, out.VideoPath, out.FinalDuration, out.CaptionStrategy, out.BedUsed, len(out.Degradations), out.Elapsed.Round(time.Millisecond))
	return out, nil
}

// captionCues obtains a transcript and segments it. Every failure here
// degrades to no captions.
func (c *Coordinator) captionCues(ctx context.Context, u Unit, narration model.MediaAsset, limit float64, out *Outcome, degrade func(string)) []model.CaptionCue {
	var tr model.Transcript
	switch {
	case u.Transcript != nil:
		tr = *u.Transcript
	case c.transcriber != nil:
		t, err := c.transcriber.Transcribe(ctx, narration.Path)
		if err != nil {
			degrade(fmt.Sprintf("transcription failed, shipping without captions: %v", err))
			out.Tier = captions.TierNone
			return nil
		}
		tr = t
	default:
		out.Tier = captions.TierNone
		return nil
	}

	if !tr.HasWordTimestamps() && len(tr.Segments) > 0 {
		degrade("transcript has no word timestamps, using proportional caption timing")
	}
	seg := captions.Segment(tr, c.opts.Segment)
	cues := captions.ClampCues(seg.Cues, limit)
	out.Tier = seg.Tier
	out.CueCount = len(cues)
	c.log.Infof("pipeline: %d caption cues (tier %s)", len(cues), seg.Tier)
	return cues
}
