package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sitevault/sitevault/internal/config"
	"github.com/sitevault/sitevault/internal/logging"
	"github.com/sitevault/sitevault/internal/master"
	"github.com/sitevault/sitevault/internal/session"
)

// rootOptions holds the global flags and the state PersistentPreRunE
// derives from them. Every command of one tree shares a single instance.
type rootOptions struct {
	cfgFile  string
	vaultDir string
	backend  string
	verbose  bool
	debug    bool

	cfg    *config.Config
	logger *logging.Logger
}

// NewRootCommand builds the sitevault command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "sitevault",
		Short: "A local vault for website credentials",
		Long: `Sitevault keeps website credentials (URL, login and password) in a local
vault directory, one record per site. Passwords are encrypted with the master
passphrase, and changing the master passphrase re-encrypts every record as a
single all-or-nothing operation.

Run without a subcommand to open the interactive menu.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.config/sitevault/config.yaml)")
	flags.StringVar(&opts.vaultDir, "vault-dir", "", "vault directory (overrides vault_dir)")
	flags.StringVar(&opts.backend, "backend", "", "storage backend: file or bolt (overrides backend)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	flags.BoolVar(&opts.debug, "debug", debugFromEnv(), "debug output (or set SITEVAULT_DEBUG)")

	cmd.AddCommand(
		newInitCommand(opts),
		newListCommand(opts),
		newGetCommand(opts),
		newAddCommand(opts),
		newUpdateCommand(opts),
		newDeleteCommand(opts),
		newRotateMasterCommand(opts),
		newShellCommand(opts),
		newAuditLogCommand(opts),
		newStatusCommand(opts),
		newDoctorCommand(opts),
		newConfigCommand(opts),
		newPassgenCommand(opts),
	)

	return cmd
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

func debugFromEnv() bool {
	dbg, _ := strconv.ParseBool(os.Getenv("SITEVAULT_DEBUG"))
	return dbg
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	if o.cfgFile == "" {
		path, err := config.DefaultConfigPath()
		if err != nil {
			return err
		}
		o.cfgFile = path
	}

	cfg, err := config.LoadConfig(o.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if o.vaultDir != "" {
		cfg.VaultDir = o.vaultDir
	}
	if o.backend != "" {
		cfg.Backend = o.backend
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	o.cfg = cfg

	o.logger = &logging.Logger{
		Verbose: o.verbose || o.debug,
		Debug:   o.debug,
		Out:     cmd.ErrOrStderr(),
		Err:     cmd.ErrOrStderr(),
	}
	o.logger.Debugf("config %s, vault %s, backend %s", o.cfgFile, cfg.VaultDir, cfg.Backend)
	return nil
}

// openVault opens a session on an initialized vault without unlocking it.
func (o *rootOptions) openVault() (*session.Session, error) {
	s, err := session.Open(o.cfg, o.logger)
	if err != nil {
		return nil, err
	}
	if !s.Initialized() {
		o.closeVault(s)
		return nil, fmt.Errorf("%w: run 'sitevault init' first", master.ErrNotInitialized)
	}
	return s, nil
}

// openUnlocked opens the vault and prompts for the master passphrase until
// it matches or the attempt budget is spent.
func (o *rootOptions) openUnlocked(p *Prompter) (*session.Session, error) {
	s, err := o.openVault()
	if err != nil {
		return nil, err
	}

	err = s.UnlockWith(func(int) ([]byte, error) {
		return p.Password("Master passphrase: ")
	})
	if err != nil {
		o.closeVault(s)
		if errors.Is(err, session.ErrTooManyAttempts) {
			return nil, fmt.Errorf("%w; giving up", err)
		}
		return nil, err
	}
	return s, nil
}

func (o *rootOptions) closeVault(s *session.Session) {
	if err := s.Close(); err != nil {
		o.logger.Warnf("failed to close vault: %v", err)
	}
}
