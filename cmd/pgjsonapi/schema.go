package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	pg "github.com/edgeflare/pgjsonapi/pkg/pgx"
	"github.com/edgeflare/pgjsonapi/pkg/pgx/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the derived resource types as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		pool, err := pg.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		cache := schema.NewCache(pool, cfg.Schema, logger)
		if err := cache.Load(ctx); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if catalog, _ := cmd.Flags().GetBool("catalog"); catalog {
			return enc.Encode(cache.Tables())
		}
		return enc.Encode(cache.Registry().Entities())
	},
}

func init() {
	schemaCmd.Flags().Bool("catalog", false, "print the introspected tables instead of the derived entities")
}
