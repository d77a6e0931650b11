package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/bucket-provisioning-backend/api/intake"
	"github.com/ruteri/bucket-provisioning-backend/cmd/flags"
	"github.com/ruteri/bucket-provisioning-backend/cryptoutils"
	"github.com/ruteri/bucket-provisioning-backend/httpserver"
	"github.com/ruteri/bucket-provisioning-backend/interfaces"
	"github.com/ruteri/bucket-provisioning-backend/repository"
	"github.com/ruteri/bucket-provisioning-backend/storage"
	"github.com/urfave/cli/v2"
)

var materializeFlag = &cli.StringSliceFlag{
	Name:    "materialize",
	Usage:   "storage location to create accepted bucket instances in (file:///path or s3://bucket/prefix?region=...), repeatable",
	EnvVars: []string{"MATERIALIZE"},
}

func allFlags() []cli.Flag {
	fs := []cli.Flag{
		flags.ListenAddrFlagFn("127.0.0.1:8081"),
		flags.MetricsAddrFlagFn("127.0.0.1:8091"),
		flags.LogServiceFlagFn("bucket-intake"),
		flags.VerifyKeyFileFlag,
		materializeFlag,
	}
	fs = append(fs, flags.CommonFlags...)
	fs = append(fs, flags.DatabaseFlags...)
	return append(fs, flags.VaultFlags...)
}

func main() {
	app := &cli.App{
		Name:  "intake-server",
		Usage: "Accept signed bucket provisioning requests and record bucket instances",
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
			pubPEM, err := keys.PublicKeyPEM(ctx)
			if err != nil {
				logger.Error("Failed to load verification key", "err", err)
				return err
			}
			verifier, err := cryptoutils.NewJWSVerifierFromPEM(pubPEM)
			if err != nil {
				logger.Error("Failed to create verifier", "err", err)
				return err
			}

			var materializer interfaces.Materializer
			if locations := cCtx.StringSlice(materializeFlag.Name); len(locations) > 0 {
				m, err := storage.NewMaterializerFactory(logger).CreateMultiMaterializer(locations)
				if err != nil {
					logger.Error("Invalid materialize location", "err", err)
					return err
				}
				if !m.Available(ctx) {
					logger.Warn("Storage backend not available at startup", "backend", m.Name())
				}
				logger.Info("Materializing bucket instances", "backend", m.Name())
				materializer = m
			}

			handler := intake.NewHandler(verifier, repository.NewInstanceStore(db, dialect), materializer, logger)
			server, err := httpserver.New(flags.ConfigureServer(cCtx, logger), handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server", "algorithms", verifier.AllowedAlgorithms())
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
