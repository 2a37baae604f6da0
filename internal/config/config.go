// Package config loads the coordinator's process configuration from
// flags and an optional config file, the way cmd/lnd/main.go and lncfg
// do for lnd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	flags "github.com/jessevdk/go-flags"
)

// Config is every externally-tunable setting the coordinator needs.
// Field groups follow §6/§9: storage, the three external collaborators,
// and the watcher's own timing knobs.
type Config struct {
	ConfigFile string `long:"configfile" description:"Path to configuration file"`

	LogDir      string `long:"logdir" description:"Directory to log output"`
	DebugLevel  string `long:"debuglevel" description:"subsystem=level,subsystem=level or a single level for all subsystems" default:"info"`
	MaxLogFiles int    `long:"maxlogfiles" default:"3"`
	MaxLogSizeKB int   `long:"maxlogsize" default:"10000"`

	Postgres PostgresConfig `group:"Postgres" namespace:"postgres"`

	Lightning LightningConfig `group:"Lightning" namespace:"lightning"`
	Bitcoin   BitcoinConfig   `group:"Bitcoin" namespace:"bitcoin"`
	Oracle    OracleConfig    `group:"Oracle" namespace:"oracle"`
	Enclave   EnclaveConfig   `group:"Enclave" namespace:"enclave"`
	API       APIConfig       `group:"API" namespace:"api"`

	TickInterval          time.Duration `long:"tickinterval" default:"10s"`
	TicketReservationTTL  time.Duration `long:"ticketreservationttl" default:"10m"`
	FundingConfThreshold  uint32        `long:"fundingconfthreshold" default:"1"`
	DeltaConfThreshold    uint32        `long:"deltaconfthreshold" default:"1"`
	ExternalCallTimeout   time.Duration `long:"externalcalltimeout" default:"10s"`
	TickDeadlinePerComp   time.Duration `long:"tickdeadlinepercompetition" default:"60s"`
	AttestationDeadline   time.Duration `long:"attestationdeadline" default:"24h"`

	// WalletKeyPath names the file holding the coordinator's singleton
	// signing key (internal/wallet), generated on first run and never
	// rotated afterward (§9).
	WalletKeyPath string `long:"walletkeypath" default:"./coordinator-wallet.key"`

	// SealingKeyPath names a file holding the hex-encoded 32-byte key used to
	// seal secrets at rest (internal/crypto.Sealer), analogous to lnd's
	// own macaroon/seed files: an opaque credential read once at
	// startup, never logged or echoed back.
	SealingKeyPath string `long:"sealingkeypath" required:"true"`
}

type PostgresConfig struct {
	DSN string `long:"dsn" description:"Postgres connection string" required:"true"`
}

type LightningConfig struct {
	RPCHost      string `long:"rpchost" required:"true"`
	MacaroonPath string `long:"macaroonpath"`
	TLSCertPath  string `long:"tlscertpath"`
}

type BitcoinConfig struct {
	RPCHost string `long:"rpchost" required:"true"`
	RPCUser string `long:"rpcuser"`
	RPCPass string `long:"rpcpass"`
}

type OracleConfig struct {
	BaseURL string `long:"baseurl" required:"true"`
}

type EnclaveConfig struct {
	BaseURL string `long:"baseurl" required:"true"`
}

type APIConfig struct {
	ListenAddr          string        `long:"listenaddr" default:"0.0.0.0:8080"`
	AdminListenAddr      string       `long:"adminlistenaddr" default:"127.0.0.1:8081"`
	NIP98ClockSkew      time.Duration `long:"nip98clockskew" default:"2m"`
}

// Load parses flags, then any config file they point at, matching
// cmd/lnd/main.go's two-pass flag parse. Returns a wrapped error for the
// §6 exit-code-1 (configuration error) path.
func Load(args []string) (*Config, error) {
	cfg := defaultConfig()

	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if cfg.ConfigFile != "" {
		if err := flags.NewIniParser(parser).ParseFile(cfg.ConfigFile); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		LogDir: filepath.Join(".", "logs"),
	}
}

func (c *Config) validate() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if c.Lightning.RPCHost == "" {
		return fmt.Errorf("lightning.rpchost is required")
	}
	if c.Bitcoin.RPCHost == "" {
		return fmt.Errorf("bitcoin.rpchost is required")
	}
	if c.Oracle.BaseURL == "" {
		return fmt.Errorf("oracle.baseurl is required")
	}
	if c.Enclave.BaseURL == "" {
		return fmt.Errorf("enclave.baseurl is required")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tickinterval must be positive")
	}
	if c.SealingKeyPath == "" {
		return fmt.Errorf("sealingkeypath is required")
	}
	return nil
}
