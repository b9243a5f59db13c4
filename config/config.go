// Package config holds the settings of an analysis run.
package config

import (
	"io/ioutil"
	"os"
	"time"

	"github.com/benbjohnson/dcpa"
	"github.com/benbjohnson/dcpa/cfa"
	"github.com/benbjohnson/dcpa/sat"
	"github.com/benbjohnson/dcpa/worker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Abstraction modes.
var (
	BooleanMode   = dcpa.BooleanAbstraction.String()
	CartesianMode = dcpa.CartesianAbstraction.String()
)

// Solver backends. The z3 backend is only available when built with the
// "z3" tag.
const (
	SATBackend = "sat"
	Z3Backend  = "z3"
)

// Logging formats.
const (
	TextFormat = "text"
	JSONFormat = "json"
)

// Config is the configuration file of the dcpa command.
type Config struct {
	Solver   Solver   `yaml:"solver"`
	Analysis Analysis `yaml:"analysis"`
	Logging  Logging  `yaml:"logging"`
}

type Solver struct {
	// Decision procedure answering satisfiability queries.
	Backend string `yaml:"backend"`

	// Interval at which a running search checks for cancellation.
	PollInterval time.Duration `yaml:"poll-interval"`

	// Number of cached satisfiability queries per worker. Zero disables the cache.
	CacheSize int `yaml:"cache-size"`
}

type Analysis struct {
	AbstractionMode      string `yaml:"abstraction-mode"`
	BooleanLimit         int    `yaml:"boolean-limit"`
	MaxErrorHops         int    `yaml:"max-error-hops"`
	MaxWidenings         int    `yaml:"max-widenings"`
	AbstractionCacheSize int    `yaml:"abstraction-cache-size"`

	// Seed the precision with the conditions of assume edges.
	MinePredicates bool `yaml:"mine-predicates"`

	// Predicates tracked at every location, in the formula syntax.
	Predicates []string `yaml:"predicates"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Solver: Solver{
			Backend:      SATBackend,
			PollInterval: sat.DefaultPollInterval,
			CacheSize:    1024,
		},
		Analysis: Analysis{
			AbstractionMode:      BooleanMode,
			BooleanLimit:         dcpa.DefaultBooleanLimit,
			MaxErrorHops:         worker.DefaultMaxErrorHops,
			MaxWidenings:         worker.DefaultMaxWidenings,
			AbstractionCacheSize: 256,
			MinePredicates:       true,
		},
		Logging: Logging{
			Level:  "info",
			Format: TextFormat,
		},
	}
}

// Load reads the configuration file at path. Settings missing from the
// file keep their default value.
func Load(path string) (Config, error) {
	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return Config{}, errors.Errorf("config file not found: %s", path)
	} else if err != nil {
		return Config{}, err
	}

	c, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrap(err, path)
	}
	return c, nil
}

// Parse decodes and validates a YAML configuration.
func Parse(data []byte) (Config, error) {
	c := Default()
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Config{}, err
	} else if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate returns an error if a setting is out of range.
func (c *Config) Validate() error {
	switch {
	case c.Solver.PollInterval <= 0:
		return errors.New("solver.poll-interval must be positive")
	case c.Solver.CacheSize < 0:
		return errors.New("solver.cache-size must not be negative")
	case c.Analysis.BooleanLimit < 0:
		return errors.New("analysis.boolean-limit must not be negative")
	case c.Analysis.MaxErrorHops < 1:
		return errors.New("analysis.max-error-hops must be positive")
	case c.Analysis.MaxWidenings < 0:
		return errors.New("analysis.max-widenings must not be negative")
	case c.Analysis.AbstractionCacheSize < 0:
		return errors.New("analysis.abstraction-cache-size must not be negative")
	}

	if _, ok := backends[c.Solver.Backend]; !ok {
		if c.Solver.Backend == Z3Backend {
			return errors.New("solver.backend: z3 support not built in, rebuild with -tags z3")
		}
		return errors.Errorf("solver.backend: unknown backend %q", c.Solver.Backend)
	}

	if _, err := c.Analysis.Mode(); err != nil {
		return err
	} else if _, err := c.Analysis.GlobalPredicates(); err != nil {
		return err
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return errors.Wrap(err, "logging.level")
	} else if c.Logging.Format != TextFormat && c.Logging.Format != JSONFormat {
		return errors.Errorf("logging.format: unknown format %q", c.Logging.Format)
	}
	return nil
}

// Mode returns the configured abstraction mode.
func (a *Analysis) Mode() (dcpa.AbstractionMode, error) {
	mode, err := dcpa.ParseAbstractionMode(a.AbstractionMode)
	if err != nil {
		return 0, errors.Wrap(err, "analysis.abstraction-mode")
	}
	return mode, nil
}

// GlobalPredicates parses the configured predicates.
func (a *Analysis) GlobalPredicates() ([]dcpa.Expr, error) {
	preds := make([]dcpa.Expr, 0, len(a.Predicates))
	for i, s := range a.Predicates {
		pred, err := dcpa.ParseExpr(s)
		if err != nil {
			return nil, errors.Wrapf(err, "analysis.predicates[%d]", i)
		} else if dcpa.ExprWidth(pred) != dcpa.WidthBool {
			return nil, errors.Errorf("analysis.predicates[%d]: not a boolean formula: %s", i, s)
		}
		preds = append(preds, pred)
	}
	return preds, nil
}

// Precision returns the initial precision for c.
func (a *Analysis) Precision(c *cfa.CFA) (*dcpa.Precision, error) {
	preds, err := a.GlobalPredicates()
	if err != nil {
		return nil, err
	}

	p := dcpa.NewPrecision()
	if a.MinePredicates {
		p = cfa.MinePredicates(c)
	}
	if len(preds) > 0 {
		p = p.AddGlobal(preds...)
	}
	return p, nil
}

// NewAnalysis returns an analysis of g configured by c.
func (c *Config) NewAnalysis(g *cfa.BlockGraph, logger *logrus.Logger) (*worker.Analysis, error) {
	mode, err := c.Analysis.Mode()
	if err != nil {
		return nil, err
	}
	precision, err := c.Analysis.Precision(g.CFA)
	if err != nil {
		return nil, err
	}

	a := worker.NewAnalysis(g, precision)
	a.AbstractionMode = mode
	a.BooleanLimit = c.Analysis.BooleanLimit
	a.MaxErrorHops = c.Analysis.MaxErrorHops
	a.MaxWidenings = c.Analysis.MaxWidenings
	a.AbstractionCacheSize = c.Analysis.AbstractionCacheSize
	a.Logger = logrus.NewEntry(logger).WithField("function", g.CFA.Function)

	newSolver, ok := backends[c.Solver.Backend]
	if !ok {
		return nil, errors.Errorf("solver.backend: unknown backend %q", c.Solver.Backend)
	}
	s := c.Solver
	a.NewSolver = func() dcpa.Solver { return newSolver(s) }
	return a, nil
}

// backends holds the solver constructors compiled into the binary.
var backends = map[string]func(Solver) dcpa.Solver{
	SATBackend: func(c Solver) dcpa.Solver {
		s := sat.NewSolver(c.CacheSize)
		s.PollInterval = c.PollInterval
		return s
	},
}

// NewLogger returns a logger with the configured level and format.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, errors.Wrap(err, "logging.level")
	}

	logger := logrus.New()
	logger.SetLevel(level)
	switch c.Logging.Format {
	case JSONFormat:
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
	return logger, nil
}
