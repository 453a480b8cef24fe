package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"text/tabwriter"

	"github.com/YuminosukeSato/goope/ope"
	"github.com/YuminosukeSato/goope/pkg/errors"
	"github.com/YuminosukeSato/goope/pkg/log"
)

type evaluateOptions struct {
	configPath    string
	dataPath      string
	output        string
	seed          int64
	seedSet       bool
	folds         int
	foldsSet      bool
	fittingMethod string
	logLevel      string
}

// apply merges command-line overrides into cfg.
func (o evaluateOptions) apply(cfg *Config) {
	if o.seedSet {
		cfg.RandomState = o.seed
	}
	if o.foldsSet {
		cfg.NFolds = o.folds
	}
	if o.fittingMethod != "" {
		cfg.FittingMethod = o.fittingMethod
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
}

func runEvaluate(opts evaluateOptions, out, errOut io.Writer) error {
	if opts.output != "json" && opts.output != "table" {
		return errors.NewValidationError("output", "must be json or table", opts.output)
	}
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	opts.apply(&cfg)
	if err := cfg.validate(); err != nil {
		return err
	}
	setupLogging(cfg, errOut)
	logger := log.GetLoggerWithName("goope")

	feedback, dist, err := loadFeedback(opts.dataPath)
	if err != nil {
		return err
	}
	runCfg, err := cfg.runConfig()
	if err != nil {
		return err
	}
	runCfg.Logger = logger
	base, err := cfg.BaseModel.build(cfg.RandomState)
	if err != nil {
		return err
	}

	logger.Debug("evaluation started",
		log.SamplesKey, feedback.NRounds,
		log.ActionsKey, feedback.NActions,
		log.ModelNameKey, cfg.BaseModel.Type,
	)
	res, err := ope.Run(feedback, dist, base, runCfg)
	if err != nil {
		return errors.Wrap(err, "evaluate")
	}

	if opts.output == "table" {
		return writeTable(out, res)
	}
	return writeJSON(out, feedback.NRounds, res)
}

func setupLogging(cfg Config, w io.Writer) {
	if cfg.LogFormat == "slog" {
		log.SetupLogger(w, cfg.LogLevel)
		return
	}
	level, _ := log.ParseLevel(cfg.LogLevel)
	log.SetProvider(log.NewZerologProvider(w, level))
}

// jsonFloat encodes non-finite values as strings, which encoding/json
// cannot represent as numbers.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return json.Marshal(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return json.Marshal(v)
}

type intervalOutput struct {
	Mean  jsonFloat `json:"mean"`
	Lower jsonFloat `json:"lower"`
	Upper jsonFloat `json:"upper"`
}

type evaluateOutput struct {
	NRounds   int                       `json:"n_rounds"`
	Values    map[string]jsonFloat      `json:"values"`
	Intervals map[string]intervalOutput `json:"intervals,omitempty"`
	NonFinite int                       `json:"non_finite"`
}

func writeJSON(w io.Writer, nRounds int, res *ope.RunResult) error {
	doc := evaluateOutput{
		NRounds:   nRounds,
		Values:    make(map[string]jsonFloat, len(res.Values)),
		NonFinite: res.NonFinite,
	}
	for name, v := range res.Values {
		doc.Values[name] = jsonFloat(v)
	}
	if len(res.Intervals) > 0 {
		doc.Intervals = make(map[string]intervalOutput, len(res.Intervals))
		for name, iv := range res.Intervals {
			doc.Intervals[name] = intervalOutput{jsonFloat(iv.Mean), jsonFloat(iv.Lower), jsonFloat(iv.Upper)}
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func writeTable(w io.Writer, res *ope.RunResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ESTIMATOR\tVALUE\tLOWER\tUPPER")
	for _, name := range res.Values.Names() {
		lower, upper := "-", "-"
		if iv, ok := res.Intervals[name]; ok {
			lower = formatValue(iv.Lower)
			upper = formatValue(iv.Upper)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, formatValue(res.Values[name]), lower, upper)
	}
	if res.NonFinite > 0 {
		fmt.Fprintf(tw, "\nnon-finite weights: %d\n", res.NonFinite)
	}
	return tw.Flush()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
