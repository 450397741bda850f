package audio

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"shorts-gen/internal/logging"
	"shorts-gen/internal/media"
	"shorts-gen/internal/model"
)

type MixResult struct {
	Asset       model.MediaAsset
	BedUsed     bool
	BedLoops    int
	Diagnostics []string
}

// Mixer lays an attenuated, looped and trimmed music bed under narration.
// Bed problems never fail a mix; they fall back to narration only.
type Mixer struct {
	runner media.Runner
	prober media.Prober
	log    *logging.Logger
}

func NewMixer(runner media.Runner, prober media.Prober, log *logging.Logger) *Mixer {
	return &Mixer{runner: runner, prober: prober, log: log}
}

// BedLoopCount returns ceil(primary/bed), or 1 when the bed already covers primary.
func BedLoopCount(primary, bed float64) (int, error) {
	if bed <= 0 {
		return 0, fmt.Errorf("bed duration must be positive, got %g", bed)
	}
	if bed >= primary {
		return 1, nil
	}
	return int(math.Ceil(primary / bed)), nil
}

func mixFilter(primaryDur, attenuationDB float64) string {
	return fmt.Sprintf(
		"[1:a]volume=-%sdB,atrim=duration=%s,asetpts=PTS-STARTPTS[bed];"+
			"[0:a][bed]amix=inputs=2:duration=first:dropout_transition=0:normalize=0[mix]",
		media.FormatSeconds(attenuationDB), media.FormatSeconds(primaryDur),
	)
}

func (m *Mixer) Mix(ctx context.Context, ws *media.Workspace, spec model.MixSpec) (MixResult, error) {
	if spec.Bed == nil || spec.Bed.Path == "" {
		m.log.Infof("mix: no bed, using narration as-is")
		return m.primaryOnly(ws, spec.Primary, nil)
	}

	bedDur, err := m.prober.Probe(ctx, spec.Bed.Path)
	if err != nil {
		return m.degrade(ws, spec.Primary, fmt.Sprintf("bed unreadable, mixing without it: %v", err))
	}
	loops, err := BedLoopCount(spec.Primary.Duration, bedDur)
	if err != nil {
		return m.degrade(ws, spec.Primary, fmt.Sprintf("bed unusable, mixing without it: %v", err))
	}

	args := []string{"-i", spec.Primary.Path}
	if loops > 1 {
		list := ws.Path("bed_concat.txt")
		if err := media.WriteConcatList(list, spec.Bed.Path, loops); err != nil {
			return m.degrade(ws, spec.Primary, fmt.Sprintf("bed concat list failed: %v", err))
		}
		args = append(args, "-f", "concat", "-safe", "0", "-i", list)
	} else {
		args = append(args, "-i", spec.Bed.Path)
	}
	out := ws.Path("mixed.m4a")
	args = append(args,
		"-filter_complex", mixFilter(spec.Primary.Duration, spec.AttenuationDB),
		"-map", "[mix]",
		"-c:a", "aac",
		"-b:a", "192k",
		"-t", media.FormatSeconds(spec.Primary.Duration),
		out,
	)

	m.log.Infof("mix: bed %.2fs x%d under narration %.2fs at -%gdB", bedDur, loops, spec.Primary.Duration, spec.AttenuationDB)
	if err := m.runner.Run(ctx, args...); err != nil {
		return m.degrade(ws, spec.Primary, fmt.Sprintf("bed mix failed, using narration only: %v", err))
	}
	m.log.Infof("mix: ✓ mixed audio written to %s", out)
	return MixResult{
		Asset:    model.MediaAsset{Path: out, Kind: model.MediaAudio, Duration: spec.Primary.Duration},
		BedUsed:  true,
		BedLoops: loops,
	}, nil
}

func (m *Mixer) degrade(ws *media.Workspace, primary model.MediaAsset, diag string) (MixResult, error) {
	m.log.Warnf("mix: %s", diag)
	return m.primaryOnly(ws, primary, []string{diag})
}

func (m *Mixer) primaryOnly(ws *media.Workspace, primary model.MediaAsset, diags []string) (MixResult, error) {
	out := ws.Path("mixed" + filepath.Ext(primary.Path))
	if err := media.CopyFile(primary.Path, out); err != nil {
		return MixResult{}, fmt.Errorf("mix: copy narration: %w", err)
	}
	return MixResult{
		Asset:       model.MediaAsset{Path: out, Kind: model.MediaAudio, Duration: primary.Duration},
		Diagnostics: diags,
	}, nil
}
