package log

import (
	"context"
	"io"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
	"moul.io/zapfilter"
)

type (
	// Config describes the content of the optional log config file.
	// Filters use the zapfilter rule syntax ("level:namespace", space separated),
	// for example "debug:telemetry.* info:*".
	Config struct {
		DefaultLevel string `yaml:"defaultLevel"`
		Filters      string `yaml:"filters"`
	}

	// dynamicFilter holds the active zapfilter rules.
	// The filtering core consults it on every entry, so rules can be
	// swapped while the logger is in use.
	dynamicFilter struct {
		fn atomic.Value // zapfilter.FilterFunc
	}
)

func LoadConfig(fileName string) (*Config, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	ret := &Config{DefaultLevel: "info"}
	if err := yaml.Unmarshal(data, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func (d *dynamicFilter) filter(e zapcore.Entry, f []zapcore.Field) bool {
	if fn, ok := d.fn.Load().(zapfilter.FilterFunc); ok && fn != nil {
		return fn(e, f)
	}
	return true
}

func (d *dynamicFilter) apply(rules string) error {
	fn, err := zapfilter.ParseRules(rules)
	if err != nil {
		return err
	}
	d.fn.Store(fn)
	return nil
}

// NewWithConfig creates a logger like New/DevLogger but with filter rules
// from the config file. The core runs at debug level when filters are
// present; the rules decide what gets through.
//
//nolint:whitespace // editor/linter issue
func NewWithConfig(cfg *Config, out io.Writer, format string, opts ...Option) (
	*Logger, error,
) {
	if out == nil {
		out = os.Stderr
	}
	level := InfoLevel
	if cfg.DefaultLevel != "" {
		var err error
		if level, err = ParseLevel(cfg.DefaultLevel); err != nil {
			return nil, err
		}
	}
	coreLevel := level
	if cfg.Filters != "" {
		coreLevel = DebugLevel
	}
	var enc zapcore.Encoder
	if format == "json" {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(out), coreLevel)
	ret := &Logger{level: level}
	if cfg.Filters != "" {
		ret.filter = &dynamicFilter{}
		if err := ret.filter.apply(cfg.Filters); err != nil {
			return nil, err
		}
		core = zapfilter.NewFilteringCore(core, ret.filter.filter)
	}
	ret.l = zap.New(core, opts...)
	return ret, nil
}

// ApplyConfig replaces the active filter rules. No-op for loggers
// created without filters.
func (l *Logger) ApplyConfig(cfg *Config) error {
	if l.filter == nil || cfg.Filters == "" {
		return nil
	}
	return l.filter.apply(cfg.Filters)
}

// WatchConfig reloads the log config file on changes and applies the
// filter rules to l until the context is done.
func WatchConfig(ctx context.Context, fileName string, l *Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(fileName); err != nil {
		watcher.Close()
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, cErr := LoadConfig(fileName)
				if cErr != nil {
					l.Warn("could not reload log config", ErrorField(cErr))
					continue
				}
				if aErr := l.ApplyConfig(cfg); aErr != nil {
					l.Warn("could not apply log config", ErrorField(aErr))
				} else {
					l.Info("log config reloaded", String("file", fileName))
				}
			case wErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.Warn("log config watcher error", ErrorField(wErr))
			}
		}
	}()
	return nil
}
