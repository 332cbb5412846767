// Root command for the catalog CLI.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/catalog/internal/logger"
	"github.com/mesh-intelligence/catalog/internal/paths"
	"github.com/mesh-intelligence/catalog/pkg/catalog"
	"github.com/mesh-intelligence/catalog/pkg/sqlite"
	"github.com/mesh-intelligence/catalog/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
	output    string
	logLevel  string
	metrics   bool
}

// app is the state shared by one invocation: flags, the open store and the
// catalog over it.
type app struct {
	flags   rootFlags
	stdout  io.Writer
	stderr  io.Writer
	log     zerolog.Logger
	reg     *prometheus.Registry
	store   types.Store
	cat     *catalog.Catalog
	dataDir string
}

// run executes the CLI with args and returns the process exit code.
func run(args []string) int {
	return runWith(args, os.Stdout, os.Stderr)
}

func runWith(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, log: zerolog.Nop()}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if cerr := a.close(); err == nil && cerr != nil {
		err = &exitError{code: exitSysError, err: fmt.Errorf("close catalog: %w", cerr)}
	}
	if err == nil {
		return exitSuccess
	}
	fmt.Fprintln(stderr, "catalog:", err)
	return exitCode(err)
}

// newRootCmd creates the top-level "catalog" command with global flags and
// all subcommands registered.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:     "catalog",
		Short:   "A nested-set catalog of document collections",
		Long:    "Catalog arranges named collections into trees, drills down into them,\nand resolves paths back to the root.",
		Version: catalog.Version,
		// Errors are printed once by runWith.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.open()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.printMetrics()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/"+paths.DefaultDataDirName+")")
	pf.BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format (same as --output json)")
	pf.StringVarP(&a.flags.output, "output", "o", outputText, "output format: text, json or yaml")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")
	pf.BoolVar(&a.flags.metrics, "metrics", false, "print operation counters after the command")

	root.AddCommand(
		newVersionCmd(a),
		newInitCmd(a),
		newCreateCmd(a),
		newRenameCmd(a),
		newDeleteCmd(a),
		newListCmd(a),
		newAttachCmd(a),
		newMoveCmd(a),
		newDetachCmd(a),
		newNodesCmd(a),
		newDrilldownCmd(a),
		newPathCmd(a),
		newSourcesCmd(a),
		newFacetCmd(a),
		newCheckCmd(a),
	)
	return root
}

// open loads configuration and opens the store.
func (a *app) open() error {
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return sysErr(fmt.Errorf("resolve config dir: %w", err))
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return sysErr(err)
	}

	level := a.flags.logLevel
	if level == "" {
		level = v.GetString(cfgKeyLogLevel)
	}
	a.log = logger.New(logger.Config{
		Level:  level,
		Pretty: v.GetBool(cfgKeyLogPretty),
		Output: a.stderr,
	})

	a.dataDir, err = paths.ResolveDataDir(a.flags.dataDir, v.GetString(cfgKeyDataDir))
	if err != nil {
		return sysErr(fmt.Errorf("resolve data dir: %w", err))
	}
	cfg := types.Config{
		Backend:      v.GetString(cfgKeyBackend),
		DataDir:      a.dataDir,
		SyncStrategy: v.GetString(cfgKeySyncStrategy),
	}

	a.reg = prometheus.NewRegistry()
	store := sqlite.NewBackend(sqlite.WithLogger(a.log), sqlite.WithMetrics(a.reg))
	if err := store.Open(cfg); err != nil {
		if errors.Is(err, types.ErrBackendUnknown) || errors.Is(err, types.ErrSyncStrategyUnknown) {
			return userErr(fmt.Errorf("config %s: %w", configDir, err))
		}
		return sysErr(fmt.Errorf("open catalog: %w", err))
	}
	a.store = store
	a.cat = catalog.New(store, catalog.WithLogger(a.log))
	a.log.Debug().Str("config_dir", configDir).Str("data_dir", a.dataDir).Msg("catalog ready")
	return nil
}

// close releases the store. It is safe to call when nothing was opened.
func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}
