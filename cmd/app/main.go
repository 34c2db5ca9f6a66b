// Package main provides the entry point for the application with CLI commands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/fieldcrypt/cmd/app/commands"
)

var version = "1.0.0"

func main() {
	cmd := &cli.Command{
		Name:    "fieldcrypt",
		Usage:   "Field level encryption engine",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "Start the operations HTTP server (metrics, health, key lifecycle)",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunServer(ctx, version)
				},
			},
			{
				Name:  "rotate-key",
				Usage: "Create and activate a new key version (creates version 1 on an empty key store)",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunRotateKey(ctx)
				},
			},
			{
				Name:  "revoke-key",
				Usage: "Permanently block decryption with a key version",
				Flags: []cli.Flag{
					&cli.UintFlag{
						Name:     "version",
						Aliases:  []string{"v"},
						Required: true,
						Usage:    "Key version to revoke",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunRevokeKey(ctx, uint(cmd.Uint("version")))
				},
			},
			{
				Name:  "list-keys",
				Usage: "List all key versions with status and algorithm",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunListKeys(ctx, os.Stdout)
				},
			},
			{
				Name:  "create-search-key",
				Usage: "Generate a new search key wrapped with the KMS keeper",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "id",
						Aliases: []string{"i"},
						Value:   "",
						Usage:   "Search key ID (e.g., prod-search-key-2026)",
					},
					&cli.StringFlag{
						Name:    "kms-key-uri",
						Aliases: []string{"k"},
						Value:   "",
						Usage:   "KMS key URI used to wrap the search key",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunCreateSearchKey(ctx, cmd.String("id"), cmd.String("kms-key-uri"))
				},
			},
			{
				Name:  "encrypt-value",
				Usage: "Encrypt a single value and print the payload",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "value",
						Required: true,
						Usage:    "Plaintext value to encrypt",
					},
					&cli.StringFlag{
						Name:     "context",
						Aliases:  []string{"c"},
						Required: true,
						Usage:    "Field context bound into the authentication tag (e.g., users.ssn)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunEncryptValue(ctx, cmd.String("value"), cmd.String("context"))
				},
			},
			{
				Name:  "decrypt-value",
				Usage: "Decrypt a payload and print the plaintext",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "payload",
						Required: true,
						Usage:    "Serialized payload to decrypt",
					},
					&cli.StringFlag{
						Name:     "context",
						Aliases:  []string{"c"},
						Required: true,
						Usage:    "Field context the payload was encrypted with",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunDecryptValue(ctx, cmd.String("payload"), cmd.String("context"))
				},
			},
			{
				Name:  "search-hash",
				Usage: "Print the deterministic search hash for a value",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "value",
						Required: true,
						Usage:    "Value to hash",
					},
					&cli.StringFlag{
						Name:     "salt",
						Aliases:  []string{"s"},
						Required: true,
						Usage:    "Per-field salt (typically the field name)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunSearchHash(ctx, cmd.String("value"), cmd.String("salt"))
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
		logger.Error("command failed", slog.Any("error", err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
