package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docfate111/HDrepresentation/internal/config"
	"github.com/docfate111/HDrepresentation/internal/logging"
	"github.com/docfate111/HDrepresentation/pkg/fsprog"
)

const (
	appName    = "fsprog"
	appVersion = "0.1.0"
)

type rootState struct {
	configPath string
	verbose    bool
	cfg        *config.Config
	logger     *zap.Logger
}

func NewRootCmd() *cobra.Command {
	st := &rootState{}
	showVersion := false

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Filesystem syscall program IR and C renderer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(st.configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging, st.verbose)
			if err != nil {
				return err
			}
			st.cfg, st.logger = cfg, logger
			fsprog.SetLogger(logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if st.logger != nil {
				_ = st.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %v", args)
			}
			if showVersion {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, appVersion)
				return err
			}
			return cmd.Help()
		},
	}

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.Flags().BoolVarP(&showVersion, "version", "v", false, "print version")
	cmd.PersistentFlags().StringVar(&st.configPath, "config", "fsprog.yaml", "path to YAML config")
	cmd.PersistentFlags().BoolVar(&st.verbose, "verbose", false, "enable debug logging")

	cmd.AddCommand(newGenCmd(st), newRenderCmd(st), newInspectCmd(st), newConvertCmd(st))
	return cmd
}

func newGenCmd(st *rootState) *cobra.Command {
	var (
		opts       fsprog.Options
		outputPath string
		sourcePath string
	)
	d := fsprog.Defaults()
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a random program from a seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			merged := st.cfg.Options()
			flags := cmd.Flags()
			if flags.Changed("seed") {
				merged.Seed = opts.Seed
			} else if merged.Seed == 0 {
				merged.Seed = uint64(time.Now().UnixNano())
			}
			if flags.Changed("root") {
				merged.Root = opts.Root
			}
			if flags.Changed("max-syscalls") {
				merged.MaxSyscalls = opts.MaxSyscalls
			}
			if flags.Changed("max-files") {
				merged.MaxFiles = opts.MaxFiles
			}
			if flags.Changed("backtrack-prob") {
				merged.BacktrackProb = opts.BacktrackProb
			}

			prog, err := fsprog.Generate(merged)
			if err != nil {
				return err
			}
			st.logger.Info("generated program",
				zap.Uint64("seed", merged.Seed),
				zap.Int("variables", prog.NumVariables()),
				zap.Int("syscalls", len(prog.Syscalls())))

			if sourcePath != "" {
				if err := prog.WriteSource(sourcePath); err != nil {
					return err
				}
			}
			if outputPath == "" {
				data, err := prog.Encode(fsprog.Format(st.cfg.Output.Format))
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return prog.Save(outputPath)
		},
	}
	cmd.Flags().Uint64VarP(&opts.Seed, "seed", "s", 0, "seed for deterministic generation")
	cmd.Flags().StringVar(&opts.Root, "root", d.Root, "directory generated paths live under")
	cmd.Flags().IntVar(&opts.MaxSyscalls, "max-syscalls", d.MaxSyscalls, "limit number of recorded syscalls")
	cmd.Flags().IntVar(&opts.MaxFiles, "max-files", d.MaxFiles, "limit number of tracked files")
	cmd.Flags().IntVar(&opts.BacktrackProb, "backtrack-prob", d.BacktrackProb, "probability [0,100]")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write program to file (.json or .yaml)")
	cmd.Flags().StringVar(&sourcePath, "source", "", "also write generated C code to file")
	_ = cmd.MarkFlagFilename("source", "c")
	return cmd
}

func newRenderCmd(st *rootState) *cobra.Command {
	outputPath := ""
	cmd := &cobra.Command{
		Use:   "render <program>",
		Short: "Render a saved program as C source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := fsprog.Load(args[0])
			if err != nil {
				return err
			}
			if outputPath != "" {
				st.logger.Debug("writing source", zap.String("path", outputPath))
				return prog.WriteSource(outputPath)
			}
			src, err := fsprog.Render(prog)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), src)
			return err
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write generated C code to file")
	_ = cmd.MarkFlagFilename("output", "c")
	return cmd
}

func newInspectCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <program>",
		Short: "Summarize a saved program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := fsprog.Load(args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "variables: %d\n", prog.NumVariables())
			for i := 0; i < prog.NumVariables(); i++ {
				v, _ := prog.Variable(fsprog.Index(i))
				fmt.Fprintf(w, "\t%s %T kind=%s\n", v.Name, v.Payload, v.Kind)
			}
			fmt.Fprintf(w, "syscalls: %d\n", len(prog.Syscalls()))
			for _, s := range prog.Syscalls() {
				fmt.Fprintf(w, "\t%s args=%d ret=%d\n", s.Nr, len(s.Args), s.Ret)
			}
			fmt.Fprintf(w, "active fds: %v (files %v, dirs %v)\n",
				prog.ActiveFDs(), prog.ActiveFileFDs(), prog.ActiveDirFDs())
			fmt.Fprintf(w, "mapped bases: %v\n", prog.MappedBases())
			for _, f := range prog.Files() {
				fmt.Fprint(w, f.String())
			}
			if err := prog.Check(); err != nil {
				st.logger.Warn("program violates invariants", zap.Error(err))
				fmt.Fprintf(w, "check: %v\n", err)
				return nil
			}
			fmt.Fprintln(w, "check: ok")
			return nil
		},
	}
}

func newConvertCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "Re-encode a saved program (format chosen by extension)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := fsprog.Load(args[0])
			if err != nil {
				return err
			}
			st.logger.Debug("converting program",
				zap.String("from", string(fsprog.FormatForPath(args[0]))),
				zap.String("to", string(fsprog.FormatForPath(args[1]))))
			return prog.Save(args[1])
		},
	}
}
