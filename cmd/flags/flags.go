package flags

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/bucket-provisioning-backend/api"
	"github.com/ruteri/bucket-provisioning-backend/common"
	"github.com/ruteri/bucket-provisioning-backend/interfaces"
	"github.com/ruteri/bucket-provisioning-backend/kms"
	"github.com/ruteri/bucket-provisioning-backend/repository"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *api.HTTPServerConfig {
	listenAddr := cCtx.String("listen-addr")
	metricsAddr := cCtx.String("metrics-addr")
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: api.DefaultGracefulShutdownDuration,
		ReadTimeout:              api.DefaultReadTimeout,
		WriteTimeout:             api.DefaultWriteTimeout,
	}
}

// OpenDatabase connects to the configured database and applies migrations.
func OpenDatabase(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) (*sql.DB, repository.Dialect, error) {
	dialect, err := repository.ParseDialect(cCtx.String(DBDriverFlag.Name))
	if err != nil {
		return nil, "", err
	}

	logger.Info("Opening database", "driver", dialect)
	db, err := repository.Open(ctx, dialect, cCtx.String(DatabaseURLFlag.Name))
	if err != nil {
		return nil, "", err
	}

	if err := repository.Migrate(ctx, db, dialect, logger); err != nil {
		db.Close()
		return nil, "", err
	}
	return db, dialect, nil
}

// KeySource returns the Vault key source when --vault-addr is set and the
// file key source otherwise.
func KeySource(cCtx *cli.Context, logger *slog.Logger) (interfaces.KeySource, error) {
	if addr := cCtx.String(VaultAddrFlag.Name); addr != "" {
		logger.Info("Loading keys from Vault", "address", addr, "path", cCtx.String(VaultSecretPathFlag.Name))
		source, err := kms.NewVaultKeySource(
			addr,
			cCtx.String(VaultTokenFlag.Name),
			cCtx.String(VaultMountFlag.Name),
			cCtx.String(VaultSecretPathFlag.Name),
			logger,
		)
		if err != nil {
			return nil, err
		}
		return source, nil
	}

	return &kms.FileKeySource{
		PrivateKeyFile: cCtx.String(SigningKeyFileFlag.Name),
		PublicKeyFile:  cCtx.String(VerifyKeyFileFlag.Name),
	}, nil
}

var ListenAddrFlagFn = func(defaultAddr string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "listen-addr",
		Value:   defaultAddr,
		Usage:   "address to listen on for API",
		EnvVars: []string{"LISTEN_ADDR"},
	}
}

var LogJsonFlag = &cli.BoolFlag{
	Name:    "log-json",
	Value:   false,
	Usage:   "log in JSON format",
	EnvVars: []string{"LOG_JSON"},
}
var LogDebugFlag = &cli.BoolFlag{
	Name:    "log-debug",
	Value:   false,
	Usage:   "log debug messages",
	EnvVars: []string{"LOG_DEBUG"},
}
var LogUidFlag = &cli.BoolFlag{
	Name:    "log-uid",
	Value:   false,
	Usage:   "generate a uuid and add to all log messages",
	EnvVars: []string{"LOG_UID"},
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "log-service",
		Value:   service,
		Usage:   "add 'service' tag to logs",
		EnvVars: []string{"LOG_SERVICE"},
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:    "pprof",
	Value:   false,
	Usage:   "enable pprof debug endpoint",
	EnvVars: []string{"PPROF"},
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:    "drain-seconds",
	Value:   45,
	Usage:   "seconds to wait for load balancers before shutting down",
	EnvVars: []string{"DRAIN_SECONDS"},
}

var MetricsAddrFlagFn = func(defaultAddr string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "metrics-addr",
		Value:   defaultAddr,
		Usage:   "address to listen on for Prometheus metrics",
		EnvVars: []string{"METRICS_ADDR"},
	}
}

var DBDriverFlag = &cli.StringFlag{
	Name:    "db-driver",
	Value:   "sqlite",
	Usage:   "database driver: 'postgres' or 'sqlite'",
	EnvVars: []string{"DATABASE_DRIVER"},
}
var DatabaseURLFlag = &cli.StringFlag{
	Name:    "database-url",
	Value:   "buckets.db",
	Usage:   "database DSN (postgres URL or sqlite file path)",
	EnvVars: []string{"DATABASE_URL"},
}

var SigningKeyFileFlag = &cli.StringFlag{
	Name:    "signing-key-file",
	Usage:   "PEM file with the RSA private key used to sign provisioning payloads",
	EnvVars: []string{"SIGNING_KEY_FILE"},
}
var SigningKeyPassphraseFlag = &cli.StringFlag{
	Name:    "signing-key-passphrase",
	Usage:   "passphrase of an encrypted signing key",
	EnvVars: []string{"SIGNING_KEY_PASSPHRASE"},
}
var VerifyKeyFileFlag = &cli.StringFlag{
	Name:    "verify-key-file",
	Usage:   "PEM file with the RSA public key used to verify provisioning payloads",
	EnvVars: []string{"VERIFY_KEY_FILE"},
}

var VaultAddrFlag = &cli.StringFlag{
	Name:    "vault-addr",
	Usage:   "read key material from this Vault server instead of local files",
	EnvVars: []string{"VAULT_ADDR"},
}
var VaultTokenFlag = &cli.StringFlag{
	Name:    "vault-token",
	Usage:   "Vault token with read access to the key secret",
	EnvVars: []string{"VAULT_TOKEN"},
}
var VaultMountFlag = &cli.StringFlag{
	Name:    "vault-mount",
	Value:   "secret",
	Usage:   "Vault KV v2 mount",
	EnvVars: []string{"VAULT_MOUNT"},
}
var VaultSecretPathFlag = &cli.StringFlag{
	Name:    "vault-secret-path",
	Value:   "bucket-provisioning/signing",
	Usage:   "path of the key secret within the mount",
	EnvVars: []string{"VAULT_SECRET_PATH"},
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	PprofFlag,
	DrainSecondsFlag,
}

var DatabaseFlags = []cli.Flag{
	DBDriverFlag,
	DatabaseURLFlag,
}

var VaultFlags = []cli.Flag{
	VaultAddrFlag,
	VaultTokenFlag,
	VaultMountFlag,
	VaultSecretPathFlag,
}
