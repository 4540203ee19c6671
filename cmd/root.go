package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codevcli/codev/internal/conflict"
	"github.com/codevcli/codev/internal/gitquery"
	"github.com/codevcli/codev/internal/lockdir"
	"github.com/codevcli/codev/internal/output"
	"github.com/codevcli/codev/internal/phase"
	"github.com/codevcli/codev/internal/sessions"
	"github.com/codevcli/codev/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store
	gitClient *gitquery.Client

	verbose     bool
	dryRun      bool
	sessionFlag string
)

var rootCmd = &cobra.Command{
	Use:   "codev",
	Short: "Coordinate parallel development sessions on one repository",
	Long: `codev coordinates several terminals working on the same git repository.
It tracks a session per terminal, moves each session through a phased
lifecycle, and warns early when two sessions or two branches are about
to collide.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "Session id (default: derived from the terminal)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/codev/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "codev")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CODEV")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	viper.SetDefault("state_dir", "")
	viper.SetDefault("base_branch", "main")
	viper.SetDefault("lock.stale_after", "5m")
	viper.SetDefault("lock.poll_interval", "500ms")
	viper.SetDefault("lock.timeout", "10s")
	viper.SetDefault("session.stale_after", "168h")
	viper.SetDefault("history.compress_after", "720h")
	viper.SetDefault("backup.retention", 10)
	viper.SetDefault("gates.command", "")
	viper.SetDefault("hooks.dir", "")
	viper.SetDefault("checklist.file", "")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Store and git are initialized lazily so config/version commands can
	// run outside a repository.
}

// rootRun handles `codev` with no subcommand: show the status dashboard
// when a repository is available, otherwise help.
func rootRun(cmd *cobra.Command) error {
	if _, err := getStore(); err != nil {
		return cmd.Help()
	}
	return statusOverviewRun()
}

// getGit returns the shared repository client, initializing it on first call.
func getGit() (*gitquery.Client, error) {
	if gitClient != nil {
		return gitClient, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root, err := gitquery.DiscoverRoot(context.Background(), cwd)
	if err != nil {
		return nil, err
	}
	c, err := gitquery.New(root)
	if err != nil {
		return nil, err
	}

	gitClient = c
	return gitClient, nil
}

// stateDir resolves the state directory: the configured one, or .codev at
// the repository root.
func stateDir() (string, error) {
	if dir := viper.GetString("state_dir"); dir != "" {
		return dir, nil
	}
	g, err := getGit()
	if err != nil {
		return "", fmt.Errorf("not inside a git repository (set state_dir to use codev elsewhere): %w", err)
	}
	return filepath.Join(g.RepoRoot(), ".codev"), nil
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	root, err := stateDir()
	if err != nil {
		return nil, err
	}
	locker := lockdir.NewDirLocker(store.LocksDir(root), lockdir.Config{
		StaleAfter:   viper.GetDuration("lock.stale_after"),
		PollInterval: viper.GetDuration("lock.poll_interval"),
	})
	s := store.NewFileStore(root, locker, store.Config{
		LockTimeout:   viper.GetDuration("lock.timeout"),
		Retention:     viper.GetInt("backup.retention"),
		CompressAfter: viper.GetDuration("history.compress_after"),
	})
	if err := s.Init(context.Background()); err != nil {
		return nil, fmt.Errorf("initialize state directory: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getLocker returns a locker over the state directory's locks root, for
// user-named resource locks.
func getLocker() (lockdir.Locker, error) {
	root, err := stateDir()
	if err != nil {
		return nil, err
	}
	return lockdir.NewDirLocker(store.LocksDir(root), lockdir.Config{
		StaleAfter:   viper.GetDuration("lock.stale_after"),
		PollInterval: viper.GetDuration("lock.poll_interval"),
	}), nil
}

// getManager returns a session manager over the shared store.
func getManager() (*sessions.Manager, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	return sessions.NewManager(s, sessions.Config{Logger: ui}), nil
}

// getMachine returns the phase machine wired to the configured gate
// command, hook scripts, and checklist.
func getMachine() (*phase.Machine, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	root, err := stateDir()
	if err != nil {
		return nil, err
	}

	repoRoot := filepath.Dir(root)
	if g, err := getGit(); err == nil {
		repoRoot = g.RepoRoot()
	}

	var oracle phase.GateOracle = phase.NoopOracle{}
	if gateCmd := viper.GetString("gates.command"); gateCmd != "" {
		oracle = phase.CommandOracle{Command: gateCmd, Dir: repoRoot}
	}

	hooksDir := viper.GetString("hooks.dir")
	if hooksDir == "" {
		hooksDir = filepath.Join(root, "hooks")
	}

	checklistFile := viper.GetString("checklist.file")
	if checklistFile == "" {
		checklistFile = filepath.Join(root, "checklists.yaml")
	}
	checklist, err := phase.LoadChecklist(checklistFile)
	if err != nil {
		return nil, err
	}

	return phase.NewMachine(s, phase.Config{
		Root:      repoRoot,
		Oracle:    oracle,
		Hooks:     phase.ScriptHooks{Dir: hooksDir},
		Logger:    ui,
		Checklist: checklist,
	}), nil
}

// getEngine returns the conflict engine over the shared git client and store.
func getEngine() (*conflict.Engine, error) {
	g, err := getGit()
	if err != nil {
		return nil, err
	}
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	return conflict.NewEngine(g, s, conflict.Config{Logger: ui}), nil
}

// currentSessionID resolves the terminal identity for this invocation.
func currentSessionID() string {
	return sessions.TerminalID(sessionFlag)
}
