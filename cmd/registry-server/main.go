package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/bucket-provisioning-backend/api/handlers"
	"github.com/ruteri/bucket-provisioning-backend/api/provisioner"
	"github.com/ruteri/bucket-provisioning-backend/cmd/flags"
	"github.com/ruteri/bucket-provisioning-backend/cryptoutils"
	"github.com/ruteri/bucket-provisioning-backend/httpserver"
	"github.com/ruteri/bucket-provisioning-backend/registry"
	"github.com/ruteri/bucket-provisioning-backend/repository"
	"github.com/urfave/cli/v2"
)

var (
	baseDirFlag = &cli.StringFlag{
		Name:     "buckets-base-dir",
		Required: true,
		Usage:    "absolute directory under which bucket root paths are allocated",
		EnvVars:  []string{"BUCKETS_BASE_DIR"},
	}
	intakeURLFlag = &cli.StringFlag{
		Name:     "intake-url",
		Required: true,
		Usage:    "base URL of the intake server",
		EnvVars:  []string{"INTAKE_URL"},
	}
	intakeTimeoutFlag = &cli.DurationFlag{
		Name:    "intake-timeout",
		Value:   provisioner.DefaultTimeout,
		Usage:   "timeout of a single intake request",
		EnvVars: []string{"INTAKE_TIMEOUT"},
	}
)

func allFlags() []cli.Flag {
	fs := []cli.Flag{
		flags.ListenAddrFlagFn("127.0.0.1:8080"),
		flags.MetricsAddrFlagFn("127.0.0.1:8090"),
		flags.LogServiceFlagFn("bucket-registry"),
		baseDirFlag,
		intakeURLFlag,
		intakeTimeoutFlag,
		flags.SigningKeyFileFlag,
		flags.SigningKeyPassphraseFlag,
	}
	fs = append(fs, flags.CommonFlags...)
	fs = append(fs, flags.DatabaseFlags...)
	return append(fs, flags.VaultFlags...)
}

func main() {
	app := &cli.App{
		Name:  "registry-server",
		Usage: "Serve the bucket management API and provision buckets on the intake server",
		Flags: allFlags(),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)
			ctx := cCtx.Context

			db, dialect, err := flags.OpenDatabase(ctx, cCtx, logger)
			if err != nil {
				logger.Error("Failed to open database", "err", err)
				return err
			}
			defer db.Close()

			keys, err := flags.KeySource(cCtx, logger)
			if err != nil {
				logger.Error("Failed to configure key source", "err", err)
				return err
			}
			keyPEM, err := keys.PrivateKeyPEM(ctx)
			if err != nil {
				logger.Error("Failed to load signing key", "err", err)
				return err
			}
			signer, err := cryptoutils.NewJWSSignerFromPEM(keyPEM, []byte(cCtx.String(flags.SigningKeyPassphraseFlag.Name)))
			if err != nil {
				logger.Error("Failed to create signer", "err", err)
				return err
			}

			buckets := repository.NewBucketStore(db, dialect)
			transport := provisioner.NewIntakeClient(cCtx.String(intakeURLFlag.Name), cCtx.Duration(intakeTimeoutFlag.Name))
			provisioningClient, err := provisioner.NewClient(
				provisioner.Config{BaseDir: cCtx.String(baseDirFlag.Name)},
				buckets, signer, transport, logger,
			)
			if err != nil {
				logger.Error("Invalid provisioning configuration", "err", err)
				return err
			}

			reg := registry.NewRegistry(buckets, provisioningClient, logger)
			serverCfg := flags.ConfigureServer(cCtx, logger).WithUpstreamTimeout(transport.Timeout())
			server, err := httpserver.New(serverCfg, handlers.NewHandler(reg, logger))
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server",
				"intakeURL", cCtx.String(intakeURLFlag.Name),
				"baseDir", cCtx.String(baseDirFlag.Name),
				"intakeTimeout", transport.Timeout(),
				"writeTimeout", serverCfg.WriteTimeout,
				"keyBits", signer.PublicKey().N.BitLen())
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
