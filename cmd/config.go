package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "codev"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage codev configuration.

Running bare 'codev config' is the same as 'codev config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# codev configuration
# See: codev config show (for effective values and sources)

# State directory (default: .codev at the repository root)
# state_dir: {{ .StateDir }}

# Base branch for conflict analysis (default: main)
base_branch: "{{ .BaseBranch }}"

# Named resource locks
lock:
  # Locks older than this are treated as abandoned by a crashed process
  # and broken on the next acquire (default: 5m)
  stale_after: "{{ .LockStaleAfter }}"

  # How long acquisition sleeps between attempts (default: 500ms)
  poll_interval: "{{ .LockPollInterval }}"

  # Default wait budget for acquiring a lock (default: 10s)
  timeout: "{{ .LockTimeout }}"

# Sessions
session:
  # Inactivity threshold for 'codev session sweep' (default: 168h)
  stale_after: "{{ .SessionStaleAfter }}"

# Phase gates
gates:
  # Command run before each forward transition. It receives the target
  # phase as its argument and the gate passes when it exits 0.
  command: "{{ .GatesCommand }}"

# Lifecycle hooks
hooks:
  # Directory of <phase>-enter / <phase>-exit scripts
  # (default: <state_dir>/hooks)
  # dir: {{ .HooksDir }}
`

type configTemplateData struct {
	StateDir          string
	BaseBranch        string
	LockStaleAfter    string
	LockPollInterval  string
	LockTimeout       string
	SessionStaleAfter string
	GatesCommand      string
	HooksDir          string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:          viper.GetString("state_dir"),
		BaseBranch:        viper.GetString("base_branch"),
		LockStaleAfter:    viper.GetString("lock.stale_after"),
		LockPollInterval:  viper.GetString("lock.poll_interval"),
		LockTimeout:       viper.GetString("lock.timeout"),
		SessionStaleAfter: viper.GetString("session.stale_after"),
		GatesCommand:      viper.GetString("gates.command"),
		HooksDir:          viper.GetString("hooks.dir"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "CODEV_STATE_DIR"},
	{Key: "base_branch", EnvVar: "CODEV_BASE_BRANCH"},
	{Key: "lock.stale_after", EnvVar: "CODEV_LOCK_STALE_AFTER"},
	{Key: "lock.poll_interval", EnvVar: "CODEV_LOCK_POLL_INTERVAL"},
	{Key: "lock.timeout", EnvVar: "CODEV_LOCK_TIMEOUT"},
	{Key: "session.stale_after", EnvVar: "CODEV_SESSION_STALE_AFTER"},
	{Key: "history.compress_after", EnvVar: "CODEV_HISTORY_COMPRESS_AFTER"},
	{Key: "backup.retention", EnvVar: "CODEV_BACKUP_RETENTION"},
	{Key: "gates.command", EnvVar: "CODEV_GATES_COMMAND"},
	{Key: "hooks.dir", EnvVar: "CODEV_HOOKS_DIR"},
	{Key: "checklist.file", EnvVar: "CODEV_CHECKLIST_FILE"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-24s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'codev config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
