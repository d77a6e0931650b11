package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/ruteri/bucket-provisioning-backend/api/clients"
	"github.com/ruteri/bucket-provisioning-backend/api/provisioner"
	"github.com/ruteri/bucket-provisioning-backend/cryptoutils"
	"github.com/ruteri/bucket-provisioning-backend/interfaces"
	"github.com/urfave/cli/v2"
)

var flagServer = &cli.StringFlag{
	Name:    "server",
	Value:   "http://127.0.0.1:8080",
	Usage:   "registry server address",
	EnvVars: []string{"BUCKET_REGISTRY_URL"},
}
var flagIntake = &cli.StringFlag{
	Name:    "intake-url",
	Value:   "http://127.0.0.1:8081",
	Usage:   "intake server address",
	EnvVars: []string{"INTAKE_URL"},
}
var flagID = &cli.Int64Flag{
	Name:     "id",
	Required: true,
	Usage:    "bucket ID",
}

// mutableFlags are accepted by both create and update.
var mutableFlags = []cli.Flag{
	&cli.StringFlag{Name: "description"},
	&cli.StringFlag{Name: "read-permissions"},
	&cli.StringFlag{Name: "write-permissions"},
	&cli.StringFlag{Name: "delete-permissions"},
	&cli.StringFlag{Name: "mount-permissions"},
	&cli.StringFlag{Name: "observe-permissions"},
	&cli.BoolFlag{Name: "mount", Usage: "enable mounting"},
	&cli.BoolFlag{Name: "observe", Usage: "enable observing"},
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// printProvisioned prints the bucket even when provisioning failed, so the
// operator sees the recorded reason.
func printProvisioned(b *interfaces.Bucket, err error) error {
	if b != nil {
		if perr := printJSON(b); perr != nil {
			return perr
		}
	}
	return err
}

func optionalString(cCtx *cli.Context, name string) *string {
	if !cCtx.IsSet(name) {
		return nil
	}
	v := cCtx.String(name)
	return &v
}

func optionalBool(cCtx *cli.Context, name string) *bool {
	if !cCtx.IsSet(name) {
		return nil
	}
	v := cCtx.Bool(name)
	return &v
}

func main() {
	app := &cli.App{
		Name:  "bucketctl",
		Usage: "manage buckets on the registry server",
		Flags: []cli.Flag{flagServer, flagIntake},
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "create and provision a bucket",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "type", Value: string(interfaces.BucketTypeStandard), Usage: "STANDARD or EXTERNAL"},
					&cli.StringFlag{Name: "provider", Usage: "external provider, required for EXTERNAL buckets"},
					&cli.StringFlag{Name: "cluster"},
				}, mutableFlags...),
				Action: func(cCtx *cli.Context) error {
					spec := interfaces.BucketSpec{
						Name:             cCtx.String("name"),
						Description:      cCtx.String("description"),
						BucketType:       interfaces.BucketType(cCtx.String("type")),
						ExternalProvider: cCtx.String("provider"),
						Cluster:          cCtx.String("cluster"),
						Permissions: interfaces.Permissions{
							Read:    cCtx.String("read-permissions"),
							Write:   cCtx.String("write-permissions"),
							Delete:  cCtx.String("delete-permissions"),
							Mount:   cCtx.String("mount-permissions"),
							Observe: cCtx.String("observe-permissions"),
						},
						MountEnabled:   cCtx.Bool("mount"),
						ObserveEnabled: cCtx.Bool("observe"),
					}

					client := clients.NewBucketClient(cCtx.String(flagServer.Name))
					return printProvisioned(client.Create(cCtx.Context, spec))
				},
			},
			{
				Name:  "get",
				Usage: "show a bucket by ID or name",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "id"},
					&cli.StringFlag{Name: "name"},
				},
				Action: func(cCtx *cli.Context) error {
					client := clients.NewBucketClient(cCtx.String(flagServer.Name))

					var (
						b   *interfaces.Bucket
						err error
					)
					switch {
					case cCtx.IsSet("id"):
						b, err = client.Get(cCtx.Context, cCtx.Int64("id"))
					case cCtx.IsSet("name"):
						b, err = client.GetByName(cCtx.Context, cCtx.String("name"))
					default:
						return errors.New("one of --id or --name is required")
					}
					if err != nil {
						return err
					}
					return printJSON(b)
				},
			},
			{
				Name:  "list",
				Usage: "list buckets",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "state", Usage: "pending, provisioned or provision_failed"},
				},
				Action: func(cCtx *cli.Context) error {
					client := clients.NewBucketClient(cCtx.String(flagServer.Name))
					buckets, err := client.List(cCtx.Context, interfaces.BucketFilter{
						State: interfaces.BucketState(cCtx.String("state")),
					})
					if err != nil {
						return err
					}
					return printJSON(buckets)
				},
			},
			{
				Name:  "update",
				Usage: "change the description, permissions or flags of a bucket",
				Flags: append([]cli.Flag{flagID}, mutableFlags...),
				Action: func(cCtx *cli.Context) error {
					update := interfaces.BucketUpdate{
						Description:        optionalString(cCtx, "description"),
						ReadPermissions:    optionalString(cCtx, "read-permissions"),
						WritePermissions:   optionalString(cCtx, "write-permissions"),
						DeletePermissions:  optionalString(cCtx, "delete-permissions"),
						MountPermissions:   optionalString(cCtx, "mount-permissions"),
						ObservePermissions: optionalString(cCtx, "observe-permissions"),
						MountEnabled:       optionalBool(cCtx, "mount"),
						ObserveEnabled:     optionalBool(cCtx, "observe"),
					}

					client := clients.NewBucketClient(cCtx.String(flagServer.Name))
					b, err := client.Update(cCtx.Context, cCtx.Int64(flagID.Name), update)
					if err != nil {
						return err
					}
					return printJSON(b)
				},
			},
			{
				Name:  "reprovision",
				Usage: "retry provisioning of a bucket in provision_failed",
				Flags: []cli.Flag{flagID},
				Action: func(cCtx *cli.Context) error {
					client := clients.NewBucketClient(cCtx.String(flagServer.Name))
					return printProvisioned(client.Reprovision(cCtx.Context, cCtx.Int64(flagID.Name)))
				},
			},
			{
				Name:  "instances",
				Usage: "list bucket instances recorded by the intake server",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "id", Usage: "show a single instance"},
				},
				Action: func(cCtx *cli.Context) error {
					client := provisioner.NewIntakeClient(cCtx.String(flagIntake.Name))
					if cCtx.IsSet("id") {
						inst, err := client.GetInstance(cCtx.Context, cCtx.Int64("id"))
						if err != nil {
							return err
						}
						return printJSON(inst)
					}

					instances, err := client.ListInstances(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(instances)
				},
			},
			{
				Name:  "keygen",
				Usage: "generate the RSA key pair shared by the registry and intake servers",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "private-key-file", Value: "signing-key.pem"},
					&cli.StringFlag{Name: "public-key-file", Value: "verify-key.pem"},
					&cli.IntFlag{Name: "bits", Value: 3072},
				},
				Action: func(cCtx *cli.Context) error {
					privPEM, pubPEM, err := cryptoutils.GenerateRSAKeyPEM(cCtx.Int("bits"))
					if err != nil {
						return err
					}

					if err := os.WriteFile(cCtx.String("private-key-file"), privPEM, 0600); err != nil {
						return err
					}
					if err := os.WriteFile(cCtx.String("public-key-file"), pubPEM, 0644); err != nil {
						return err
					}
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
