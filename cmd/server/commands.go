package main

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"uchat/internal/crypto"
	"uchat/internal/db"
)

const outFlag = "out"

func newGenKeyCommand() *cobra.Command {
	flags := flagSet{
		outFlag: &cobraflags.StringFlag{
			Name:  outFlag,
			Value: "private_key.base64",
			Usage: "File the base64 encoded private key is written to",
		},
	}
	return withFlags(&cobra.Command{
		Use:   "gen-key",
		Short: "Generate the key used to sign session cookies",
	}, flags, runGenKey)
}

func runGenKey(cmd *cobra.Command, flags flagSet) error {
	keys, err := crypto.GenerateSigningKeys(rand.Reader)
	if err != nil {
		return err
	}
	out := flags[outFlag].GetString()
	if err := os.WriteFile(out, []byte(keys.EncodePrivateKey()), 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Private key written to %s.\nSet API_PRIVATE_KEY to its contents before starting the server.\n", out)
	return nil
}

func newMigrateCommand(run runFunc) *cobra.Command {
	return withFlags(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
	}, newServeFlags(), run)
}

func runMigrate(cmd *cobra.Command, flags flagSet) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	pool, err := db.Open(ctx, db.Options{URL: cfg.Database.URL, MaxConns: cfg.Database.MaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := db.Migrate(ctx, pool)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Applied migrations: %v\n", applied)
	return nil
}
