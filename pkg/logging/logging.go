package logging

import (
	"sync"

	"github.com/arcline/maestro/pkg/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the process-wide logging configuration. It is applied with
// Configure and reverted with Reset; both calls invalidate handles that
// were issued before the call (see Handle.Stale).
type Config struct {
	Level       string
	Encoding    string
	Development bool
}

// DefaultConfig reads the logging configuration from the environment.
func DefaultConfig() Config {
	return Config{
		Level:    utils.Env("LOG_LEVEL", "debug"),
		Encoding: utils.Env("LOG_ENCODING", "json"),
	}
}

type manager struct {
	mu         sync.RWMutex
	config     Config
	root       *zap.Logger
	generation uint64
}

var mgr = &manager{}

// Configure applies cfg process-wide and rebuilds the root logger.
// Handles issued before this call become stale.
func Configure(cfg Config) error {
	root, err := build(cfg)
	if err != nil {
		return err
	}
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.config = cfg
	mgr.root = root
	mgr.generation++
	return nil
}

// Reset reverts to the environment-derived default configuration.
// Like Configure, it invalidates previously issued handles.
func Reset() error {
	return Configure(DefaultConfig())
}

// New builds a standalone logger from the environment, without going
// through the handle manager. Suitable for main() bootstrap.
func New() (*zap.Logger, error) {
	return build(DefaultConfig())
}

func build(cfg Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Encoding != "" {
		zcfg.Encoding = cfg.Encoding
	}
	switch cfg.Level {
	case "debug":
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		zcfg.Development = true
	case "info":
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zcfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	if cfg.Development {
		zcfg.Development = true
	}

	zcfg.OutputPaths = []string{"stdout"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}

// Handle is a named logger bound to the configuration generation it was
// last resolved against. Reconfiguring the process marks existing
// handles stale; the next Logger call re-resolves against the current
// configuration and clears the staleness.
type Handle struct {
	name       string
	mu         sync.Mutex
	logger     *zap.Logger
	generation uint64
}

// Named issues a handle for a named logger under the current configuration.
func Named(name string) (*Handle, error) {
	mgr.mu.Lock()
	if mgr.root == nil {
		root, err := build(DefaultConfig())
		if err != nil {
			mgr.mu.Unlock()
			return nil, err
		}
		mgr.config = DefaultConfig()
		mgr.root = root
		mgr.generation++
	}
	root := mgr.root
	gen := mgr.generation
	mgr.mu.Unlock()

	return &Handle{name: name, logger: root.Named(name), generation: gen}, nil
}

// Stale reports whether the process configuration changed since this
// handle last resolved a logger.
func (h *Handle) Stale() bool {
	mgr.mu.RLock()
	gen := mgr.generation
	mgr.mu.RUnlock()
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.generation != gen
}

// Logger returns the named logger for the current configuration,
// re-resolving if the handle went stale.
func (h *Handle) Logger() *zap.Logger {
	mgr.mu.RLock()
	root := mgr.root
	gen := mgr.generation
	mgr.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.generation != gen && root != nil {
		h.logger = root.Named(h.name)
		h.generation = gen
	}
	return h.logger
}
