package tilegen

import "strings"

const (
	PresetFast    = "fast"
	PresetNormal  = "normal"
	PresetQuality = "quality"
)

func canonicalizePreset(value string) string {
	s := strings.ToLower(strings.TrimSpace(value))
	switch s {
	case PresetFast, PresetNormal, PresetQuality:
		return s
	default:
		return PresetNormal
	}
}

func minInt(a, b int) int {
	if a <= 0 {
		return b
	}
	if b <= 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a <= 0 {
		return b
	}
	if b <= 0 {
		return a
	}
	if a > b {
		return a
	}
	return b
}

// presetSettings is what a preset may change for a single run.
type presetSettings struct {
	resampling string
	processes  int
	workers    int
}

func applyPreset(g *Generator, preset string) presetSettings {
	s := presetSettings{
		resampling: g.resampling,
		processes:  g.processes,
		workers:    g.workers,
	}

	switch preset {
	case PresetFast:
		// Nearest neighbour is cheap enough to run more files side by side.
		if s.resampling == "" {
			s.resampling = "near"
		}
		s.workers = maxInt(s.workers, 4)
	case PresetQuality:
		// Lanczos is CPU bound inside gdal2tiles; give each file all the processes.
		if s.resampling == "" {
			s.resampling = "lanczos"
		}
		s.processes = maxInt(s.processes, 8)
		s.workers = minInt(s.workers, 1)
	default:
		// normal: gdal2tiles' own default (average) and configured parallelism
	}
	return s
}
