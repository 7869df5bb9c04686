package logging

import (
	"sort"

	"go.uber.org/zap/zapcore"
)

// newSampledCore wraps core with one sampler per configured level.
// Error and above, and levels without a sampling entry, pass through.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled || len(cfg.Levels) == 0 {
		return core
	}

	sampled := make(map[zapcore.Level]LevelSamplingConfig, len(cfg.Levels))
	for name, rate := range cfg.Levels {
		lvl, err := LevelFromString(name)
		if err != nil || lvl >= zapcore.ErrorLevel {
			continue
		}
		sampled[lvl] = rate
	}

	levels := make([]zapcore.Level, 0, len(sampled))
	for lvl := range sampled {
		levels = append(levels, lvl)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	cores := make([]zapcore.Core, 0, len(levels)+1)
	for _, lvl := range levels {
		rate := sampled[lvl]
		cores = append(cores, zapcore.NewSamplerWithOptions(
			&levelRangeCore{Core: core, min: lvl, max: lvl},
			cfg.Tick,
			rate.Initial,
			rate.Thereafter,
		))
	}
	cores = append(cores, &levelRangeCore{
		Core: core,
		min:  TraceLevel,
		max:  zapcore.FatalLevel,
		skip: sampled,
	})
	return zapcore.NewTee(cores...)
}

// levelRangeCore only accepts entries with min <= level <= max that are not
// in skip.
type levelRangeCore struct {
	zapcore.Core
	min, max zapcore.Level
	skip     map[zapcore.Level]LevelSamplingConfig
}

func (c *levelRangeCore) Enabled(lvl zapcore.Level) bool {
	if lvl < c.min || lvl > c.max {
		return false
	}
	if _, ok := c.skip[lvl]; ok {
		return false
	}
	return c.Core.Enabled(lvl)
}

func (c *levelRangeCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelRangeCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelRangeCore{
		Core: c.Core.With(fields),
		min:  c.min,
		max:  c.max,
		skip: c.skip,
	}
}
