package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/moratsam/opencl-vector-flow/geometry"
	vio "github.com/moratsam/opencl-vector-flow/io"
	"github.com/moratsam/opencl-vector-flow/params"
	"github.com/moratsam/opencl-vector-flow/plugin"
	"github.com/moratsam/opencl-vector-flow/pu"
	cl "github.com/moratsam/opencl-vector-flow/pu/opencl"
	vl "github.com/moratsam/opencl-vector-flow/pu/vanilla"
	"github.com/moratsam/opencl-vector-flow/report"
	"github.com/moratsam/opencl-vector-flow/stream"
	u "github.com/moratsam/opencl-vector-flow/util"
)

// ErrBackend is returned for a backend name other than vanilla or opencl.
var ErrBackend = xerrors.New("unknown backend")

var (
	cfg_file string
	file_in  string
	file_out string
	fs       = afero.NewOsFs()
	logger   *slog.Logger

	root_cmd = &cobra.Command{
		Use:   "vflow",
		Short: "Estimate transverse oscillation vector flow from beamformed ultrasound data.",
		Long: `vflow runs the scale pipeline on frames of beamformed I/Q data and writes,
per frame, the quantised axial velocity image followed by the transverse one.
Parameters come from the config file (params section), VFLOW_* environment
variables and flags, in increasing order of precedence.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return initConfig()
		},
	}

	cmd_info = &cobra.Command{
		Use:   "info",
		Short: "Show plugin capabilities and the compute device",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := plugin.GetInfo()
			fmt.Println("inputs:", info.NIn, "outputs:", info.NOut, "compute:", info.Compute)
			fmt.Println("kernels:", strings.Join(plugin.KernelNames(), ", "))
			if viper.GetString("backend") != "opencl" {
				fmt.Println("backend: vanilla (host emulation)")
				return nil
			}
			dev_context, err := cl.NewContext(logger)
			if err != nil {
				return err
			}
			defer dev_context.Release()
			fmt.Println("\nUsing device:")
			for _, i := range dev_context.DeviceInfo() {
				fmt.Println("\t", i.Name, ":", i.Value)
			}
			return nil
		},
	}

	cmd_geometry = &cobra.Command{
		Use:   "geometry",
		Short: "Print buffer descriptors, work sizes and buffer lengths for the configured parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			prm, err := loadParams()
			if err != nil {
				return err
			}
			plan := geometry.NewPlan(prm)
			out, err := yaml.Marshal(map[string]interface{}{
				"params":  prm,
				"input":   geometry.InputSize(prm),
				"output":  geometry.OutputSize(prm),
				"plan":    plan,
				"lengths": geometry.NewLengths(prm, plan),
			})
			if err != nil {
				return u.WrapErr("marshal geometry", err)
			}
			fmt.Print(string(out))
			return nil
		},
	}

	cmd_process = &cobra.Command{
		Use:   "process",
		Short: "Process a file of raw frames into a results file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return process(cmd.Context())
		},
	}
)

func Execute() error {
	iit()
	return root_cmd.Execute()
}

func iit() {
	root_cmd.AddCommand(cmd_info, cmd_geometry, cmd_process)

	// Cmd Root
	root_cmd.PersistentFlags().StringVar(&cfg_file, "config", "", "Config file (yaml, toml or json)")
	root_cmd.PersistentFlags().StringP("backend", "p", "vanilla", "Choose compute backend ({\"vanilla\",\"opencl\"})")
	root_cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	root_cmd.PersistentFlags().Int("workers", 0, "Goroutines per kernel dispatch of the vanilla backend (0: GOMAXPROCS)")
	root_cmd.PersistentFlags().Int("emissions", 0, "Override params.emissions")
	root_cmd.PersistentFlags().Int("nlines", 0, "Override params.nlines")
	root_cmd.PersistentFlags().Int("nlinesamples", 0, "Override params.nlinesamples")
	bind(root_cmd, "backend", "backend")
	bind(root_cmd, "log_level", "log-level")
	bind(root_cmd, "workers", "workers")
	bind(root_cmd, "override.emissions", "emissions")
	bind(root_cmd, "override.nlines", "nlines")
	bind(root_cmd, "override.nlinesamples", "nlinesamples")

	// Cmd Process
	cmd_process.Flags().StringVarP(&file_in, "input", "i", "", "Input file of raw INT16X2 frames")
	cmd_process.Flags().StringVarP(&file_out, "output", "o", "results.bin", "Output file")
	cmd_process.Flags().Int("frames", 0, "Process at most this many frames (0: all)")
	cmd_process.Flags().String("kernel-dir", "", "Directory holding scale.cl (default: built in source)")
	cmd_process.Flags().String("plot", "", "Write heat maps of the first frame to <prefix>_axial.png and <prefix>_transverse.png")
	cmd_process.Flags().String("meta", "", "Write run metadata as yaml to this file")
	cmd_process.Flags().Bool("strict-chain", false, "Run the stages as a linear chain")
	bindLocal(cmd_process, "frames", "frames")
	bindLocal(cmd_process, "kernel_dir", "kernel-dir")
	bindLocal(cmd_process, "plot", "plot")
	bindLocal(cmd_process, "meta", "meta")
	bindLocal(cmd_process, "strict_chain", "strict-chain")
	cmd_process.MarkFlagRequired("input")
}

func bind(cmd *cobra.Command, key, flag string) {
	viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag))
}

func bindLocal(cmd *cobra.Command, key, flag string) {
	viper.BindPFlag(key, cmd.Flags().Lookup(flag))
}

func initConfig() error {
	viper.SetEnvPrefix("vflow")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	viper.SetDefault("backend", "vanilla")
	viper.SetDefault("log_level", "info")
	setParamDefaults(params.Default())

	if cfg_file != "" {
		viper.SetConfigFile(cfg_file)
		if err := viper.ReadInConfig(); err != nil {
			return u.WrapErr("read config", err)
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log_level"))); err != nil {
		return u.WrapErr("log level", err)
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return nil
}

// setParamDefaults registers every parameter key so that environment
// variables such as VFLOW_PARAMS_NLINES are picked up.
func setParamDefaults(p params.Params) {
	defaults := map[string]interface{}{
		"emissions":    p.Emissions,
		"nlines":       p.NLines,
		"nlinesamples": p.NLineSamples,
		"numb_avg":     p.NumbAvg,
		"avg_offset":   p.AvgOffset,
		"lag_axial":    p.LagAxial,
		"lag_to":       p.LagTO,
		"lag_acq":      p.LagAcq,
		"fs":           p.Fs,
		"f0":           p.F0,
		"c":            p.C,
		"fprf":         p.Fprf,
		"depth":        p.Depth,
		"lambda_x":     p.LambdaX,
	}
	for k, v := range defaults {
		viper.SetDefault("params."+k, v)
	}
}

func loadParams() (params.Params, error) {
	// Unmarshal walks every known key, UnmarshalKey would skip the
	// environment.
	var cfg struct {
		Params params.Params `mapstructure:"params"`
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg.Params, u.WrapErr("decode params", err)
	}
	prm := cfg.Params
	if n := viper.GetInt("override.emissions"); n > 0 {
		prm.Emissions = n
	}
	if n := viper.GetInt("override.nlines"); n > 0 {
		prm.NLines = n
	}
	if n := viper.GetInt("override.nlinesamples"); n > 0 {
		prm.NLineSamples = n
	}
	if err := prm.Validate(); err != nil {
		return prm, err
	}
	return prm, nil
}

// getContext selects the compute backend. The returned func releases it.
func getContext() (pu.Context, func(), error) {
	switch viper.GetString("backend") {
	case "vanilla":
		return vl.NewContext(vl.WithWorkers(viper.GetInt("workers"))), func() {}, nil
	case "opencl":
		dev_context, err := cl.NewContext(logger)
		if err != nil {
			return nil, nil, err
		}
		return dev_context, dev_context.Release, nil
	default:
		return nil, nil, xerrors.Errorf("backend %q: %w", viper.GetString("backend"), ErrBackend)
	}
}

func process(ctx context.Context) error {
	prm, err := loadParams()
	if err != nil {
		return err
	}
	dev_context, release, err := getContext()
	if err != nil {
		return err
	}
	defer release()

	// Set up plugin.
	opts := []plugin.Option{plugin.WithLogger(logger)}
	if viper.GetBool("strict_chain") {
		opts = append(opts, plugin.WithStrictChain())
	}
	p := plugin.New(opts...)
	defer func() {
		if err := p.Cleanup(); err != nil {
			logger.Warn("cleanup failed", "err", err)
		}
	}()
	if err := p.InitializeCL(dev_context, viper.GetString("kernel_dir")); err != nil {
		return err
	}
	if err := p.Configure(prm); err != nil {
		return err
	}
	in_size := geometry.InputSize(prm)
	if err := p.SetInBufSize(in_size, 0); err != nil {
		return err
	}
	if err := p.Prepare(); err != nil {
		return err
	}
	out_size, err := p.GetOutBufSize(0)
	if err != nil {
		return err
	}

	// Open files.
	n_frames, err := vio.FrameCount(fs, file_in, in_size.Bytes())
	if err != nil {
		return err
	}
	f_in, err := vio.OpenFile(fs, file_in)
	if err != nil {
		return u.WrapErr("open input", err)
	}
	defer f_in.Close()
	f_out, err := vio.CreateFile(fs, file_out)
	if err != nil {
		return u.WrapErr("create output", err)
	}
	defer f_out.Close()
	logger.Info("processing", "input", file_in, "frames", n_frames, "frame_bytes", in_size.Bytes(), "output", out_size.String())

	// Stream frames.
	s, err := stream.NewStreamer(dev_context, p, stream.WithLimit(viper.GetInt("frames")))
	if err != nil {
		return err
	}
	defer s.Close()

	plot_prefix := viper.GetString("plot")
	var frames []report.FrameMeta
	count, err := s.Run(ctx, f_in, func(res stream.Result) error {
		if err := vio.WriteResults(f_out, res.Out[0], res.Out[1]); err != nil {
			return err
		}
		fm := report.FrameMeta{
			Index:      res.Index,
			Axial:      report.Summarize(res.Out[0]),
			Transverse: report.Summarize(res.Out[1]),
		}
		frames = append(frames, fm)
		logger.Debug("frame", "index", res.Index, "axial_max", fm.Axial.Max, "transverse_max", fm.Transverse.Max)
		if res.Index == 0 && plot_prefix != "" {
			if err := report.SaveHeatMap(fs, plot_prefix+"_axial.png", "axial", res.Out[0], prm.NLines, prm.NLineSamples); err != nil {
				return err
			}
			if err := report.SaveHeatMap(fs, plot_prefix+"_transverse.png", "transverse", res.Out[1], prm.NLines, prm.NLineSamples); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("done", "frames", count, "output", file_out)

	if path := viper.GetString("meta"); path != "" {
		plan, err := p.Plan()
		if err != nil {
			return err
		}
		meta := report.Meta{
			Session: p.ID(),
			Backend: viper.GetString("backend"),
			Params:  prm,
			Input:   in_size,
			Output:  out_size,
			Plan:    plan,
			Lengths: geometry.NewLengths(prm, plan),
			Frames:  frames,
		}
		if err := report.WriteMeta(fs, path, meta); err != nil {
			return err
		}
	}
	return nil
}
