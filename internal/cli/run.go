package cli

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emiliopalmerini/abcsmc/internal/abc"
	"github.com/emiliopalmerini/abcsmc/internal/adapters/otel"
	"github.com/emiliopalmerini/abcsmc/internal/distance"
	"github.com/emiliopalmerini/abcsmc/internal/domain"
	"github.com/emiliopalmerini/abcsmc/internal/epsilon"
	"github.com/emiliopalmerini/abcsmc/internal/history"
	"github.com/emiliopalmerini/abcsmc/internal/infrastructure/config"
	"github.com/emiliopalmerini/abcsmc/internal/model"
	"github.com/emiliopalmerini/abcsmc/internal/models"
	"github.com/emiliopalmerini/abcsmc/internal/ode"
	"github.com/emiliopalmerini/abcsmc/internal/ports"
	"github.com/emiliopalmerini/abcsmc/internal/random"
	"github.com/emiliopalmerini/abcsmc/internal/sampler"
	"github.com/emiliopalmerini/abcsmc/internal/util"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an ABC-SMC analysis",
	Long: `Run an ABC-SMC analysis and store every generation in the history.

The run is described by a YAML run file; flags override its values.
Without --config the conversion reaction is fitted to data simulated at its
nominal parameters.

Examples:
  abcsmc run --config run.yaml
  abcsmc run --populations 8 --population-size 500 --seed 3
  abcsmc run --config run.yaml --resume 2 --populations 3`,
	RunE: runRun,
}

var (
	runConfigPath  string
	runPopulations int
	runPopSize     int
	runSeed        uint64
	runSampler     string
	runWorkers     int
	runMinEpsilon  float64
	runMaxSims     int
	runResume      int64
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "YAML run file")
	runCmd.Flags().IntVarP(&runPopulations, "populations", "n", 0, "Maximum number of generations")
	runCmd.Flags().IntVar(&runPopSize, "population-size", 0, "Accepted particles per generation")
	runCmd.Flags().Uint64Var(&runSeed, "seed", 0, "Random seed")
	runCmd.Flags().StringVar(&runSampler, "sampler", "", "Sampler: single_core, parallel, mapping")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Sampler workers (0 = number of CPUs)")
	runCmd.Flags().Float64Var(&runMinEpsilon, "min-epsilon", 0, "Stop once epsilon falls to this value")
	runCmd.Flags().IntVar(&runMaxSims, "max-simulations", 0, "Stop after this many simulations in total")
	runCmd.Flags().Int64Var(&runResume, "resume", 0, "Continue the stored analysis with this id")
}

func runRun(cmd *cobra.Command, args []string) error {
	rf, err := loadRunFile(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewAppContext(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	metrics, err := newMetricsExporter(ctx, cfg.OTel)
	if err != nil {
		return err
	}
	defer func() {
		if err := metrics.Close(context.Background()); err != nil {
			logger.Warn("failed to flush metrics", zap.Error(err))
		}
	}()

	h, reason, err := runAnalysis(ctx, rf, app.History, metrics, logger, runResume)
	if err != nil {
		return err
	}
	return printRunSummary(ctx, cmd.OutOrStdout(), h, reason)
}

// loadRunFile reads --config, or the defaults, and applies the flags the user
// set explicitly.
func loadRunFile(cmd *cobra.Command) (*config.RunFile, error) {
	rf := config.DefaultRunFile()
	if runConfigPath != "" {
		var err error
		if rf, err = config.LoadRunFile(runConfigPath); err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("populations") {
		rf.Generations = runPopulations
		rf.SamplesPerParticle = nil
	}
	if flags.Changed("population-size") {
		rf.PopulationSize = runPopSize
	}
	if flags.Changed("seed") {
		rf.Seed = runSeed
	}
	if flags.Changed("sampler") {
		rf.Sampler.Name = runSampler
	}
	if flags.Changed("workers") {
		rf.Sampler.Workers = runWorkers
	}
	if flags.Changed("min-epsilon") {
		rf.MinimumEpsilon = runMinEpsilon
	}
	if flags.Changed("max-simulations") {
		rf.MaxTotalSimulations = runMaxSims
	}
	if err := rf.Validate(); err != nil {
		return nil, err
	}
	return rf, nil
}

func newMetricsExporter(ctx context.Context, c config.OTel) (ports.MetricsExporter, error) {
	if !c.Enabled {
		return otel.NewNoOpExporter(), nil
	}
	exp, err := otel.NewExporter(ctx, otel.Config{Endpoint: c.Endpoint, Enabled: true, Insecure: c.Insecure})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}
	return exp, nil
}

// runAnalysis builds the engine from the run file and runs it, either as a new
// analysis or continuing analysis resumeID when it is positive.
func runAnalysis(ctx context.Context, rf *config.RunFile, repo ports.HistoryRepository, metrics ports.MetricsExporter, logger *zap.Logger, resumeID int64) (*history.History, abc.StopReason, error) {
	engineCfg, err := buildConfig(rf, repo, metrics, logger)
	if err != nil {
		return nil, "", err
	}
	engine, err := abc.New(engineCfg)
	if err != nil {
		return nil, "", err
	}

	if resumeID > 0 {
		if _, err := engine.Resume(ctx, resumeID); err != nil {
			return nil, "", err
		}
	} else {
		observed, err := observedData(ctx, rf, engineCfg.Models[0])
		if err != nil {
			return nil, "", err
		}
		gtModel := -1
		var gtPar domain.Parameter
		if len(rf.Observed) == 0 {
			gtModel = 0
			gtPar = groundTruth(rf)
		}
		if _, err := engine.NewAnalysis(ctx, observed, gtModel, gtPar, runOptions(rf)); err != nil {
			return nil, "", err
		}
	}

	h, err := engine.Run(ctx, abc.RunOptions{
		NrSamplesPerParticle:  rf.SamplesPerParticle,
		MaxNrPopulations:      rf.Generations,
		MinimumEpsilon:        rf.MinimumEpsilon,
		MaxTotalNrSimulations: rf.MaxTotalSimulations,
	})
	if err != nil {
		return nil, "", err
	}
	return h, engine.StopReason(), nil
}

func buildConfig(rf *config.RunFile, repo ports.HistoryRepository, metrics ports.MetricsExporter, logger *zap.Logger) (abc.Config, error) {
	c := abc.Config{
		PopulationSize:             rf.PopulationSize,
		MaxAttemptsPerParticle:     rf.MaxAttemptsPerParticle,
		MinParticlesPerPopulation:  rf.MinParticles,
		ContinueIfSingleModelAlive: rf.ContinueIfSingleModelAlive,
		Repository:                 repo,
		Metrics:                    metrics,
		Logger:                     logger,
	}
	for _, name := range rf.Models {
		m, prior, err := models.Load(name, rf.Timepoints)
		if err != nil {
			return abc.Config{}, err
		}
		c.Models = append(c.Models, m)
		c.ParameterPriors = append(c.ParameterPriors, prior)
	}

	kernel, err := random.NewModelPerturbationKernel(len(c.Models), rf.ProbabilityToStay)
	if err != nil {
		return abc.Config{}, err
	}
	c.ModelKernel = &kernel

	if c.Distance, err = distance.New(rf.Distance.Name, distanceP(rf.Distance.P)); err != nil {
		return abc.Config{}, err
	}
	eps := rf.Epsilon
	if c.Epsilon, err = epsilon.New(eps.Name, eps.Alpha, eps.Multiplier, eps.Values); err != nil {
		return abc.Config{}, err
	}
	if c.Sampler, err = newSampler(rf.Sampler, rf.Seed, logger); err != nil {
		return abc.Config{}, err
	}
	return c, nil
}

func distanceP(p float64) float64 {
	if p <= 0 {
		return 2
	}
	return p
}

func newSampler(spec config.SamplerSpec, seed uint64, logger *zap.Logger) (sampler.Sampler, error) {
	switch spec.Name {
	case "single_core":
		s := sampler.NewSingleCore(seed)
		s.Logger = logger
		return s, nil
	case "", "parallel":
		s := sampler.NewParallel(seed, spec.Workers)
		s.Logger = logger
		return s, nil
	case "mapping":
		m := sampler.SerialMap
		if spec.Workers != 1 {
			m = sampler.BoundedMap(spec.Workers)
		}
		s := sampler.NewMapping(seed, m)
		s.Logger = logger
		return s, nil
	default:
		return nil, fmt.Errorf("unknown sampler %q", spec.Name)
	}
}

func groundTruth(rf *config.RunFile) domain.Parameter {
	if len(rf.GroundTruth) == 0 {
		return nil
	}
	return domain.Parameter(rf.GroundTruth).Copy()
}

// observedData returns the run file's observed statistics, or simulates them
// from m at the ground truth (its nominal parameters by default).
func observedData(ctx context.Context, rf *config.RunFile, m model.Model) (domain.SumStat, error) {
	if len(rf.Observed) > 0 {
		return domain.SumStat(rf.Observed).Copy(), nil
	}
	par := groundTruth(rf)
	if par == nil {
		om, ok := m.(*ode.Model)
		if !ok {
			return nil, fmt.Errorf("model %s has no nominal parameters: set ground_truth or observed", m.Name())
		}
		par = om.Def.NominalParameters()
	}
	rng := rand.New(rand.NewPCG(rf.Seed, rf.Seed^0x9e3779b97f4a7c15))
	data, err := m.Simulate(ctx, rng, par)
	if err != nil {
		return nil, fmt.Errorf("failed to simulate observed data: %w", err)
	}
	return data, nil
}

func runOptions(rf *config.RunFile) map[string]string {
	opts := map[string]string{
		"sampler": rf.Sampler.Name,
		"seed":    fmt.Sprintf("%d", rf.Seed),
	}
	for k, v := range rf.Options {
		opts[k] = v
	}
	return opts
}

func printRunSummary(ctx context.Context, out io.Writer, h *history.History, reason abc.StopReason) error {
	a := h.Analysis()
	fmt.Fprintf(out, "Analysis %d (%s)\n", a.ID, a.UUID)
	fmt.Fprintf(out, "Stopped: %s after %d generations, %s simulations",
		reason, h.MaxT()+1, util.FormatNumber(int64(h.TotalNrSimulations())))
	if a.EndTime != nil {
		fmt.Fprintf(out, " in %s", util.FormatDuration(a.EndTime.Sub(a.StartTime)))
	}
	fmt.Fprint(out, "\n\n")
	if h.MaxT() < 0 {
		return nil
	}

	pop, err := h.Population(ctx, history.Last)
	if err != nil {
		return err
	}
	probs := pop.ModelProbabilities(len(a.ModelNames))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tPROBABILITY\tPARAMETER\tMEAN\tSTD\tRANGE")
	fmt.Fprintln(w, "-----\t-----------\t---------\t----\t---\t-----")
	for m, name := range a.ModelNames {
		params, weights := pop.ModelParticles(m)
		summaries := domain.SummarizeParameters(params, weights)
		if len(summaries) == 0 {
			fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t-\n", name, util.FormatPercent(probs[m]))
			continue
		}
		for i, s := range summaries {
			label, prob := name, util.FormatPercent(probs[m])
			if i > 0 {
				label, prob = "", ""
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t[%s, %s]\n", label, prob, s.Name,
				util.FormatFloat(s.Mean), util.FormatFloat(s.Std),
				util.FormatFloat(s.Min), util.FormatFloat(s.Max))
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nFinal epsilon: %s\n", util.FormatFloat(pop.Epsilon))
	return nil
}
