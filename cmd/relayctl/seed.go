package main

import (
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/ripplesocial/relay/internal/config"
	"github.com/ripplesocial/relay/internal/database"
	"github.com/ripplesocial/relay/internal/models"
	"github.com/spf13/cobra"
)

var seedCount int

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create demo accounts in the relay's user store",
	Long: `Seeds the database with fake users for local development, so minted
tokens resolve to real accounts at the connection gate.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := database.Initialize(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if err := database.Migrate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		for i := 0; i < seedCount; i++ {
			user := models.User{
				Username:    gofakeit.Username(),
				DisplayName: gofakeit.Name(),
				AvatarURL:   gofakeit.URL(),
				IsVerified:  gofakeit.Bool(),
			}
			if err := database.DB.Create(&user).Error; err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			fmt.Printf("created %s (%s)\n", user.Username, user.ID)
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedCount, "count", 10, "Number of demo users to create")
}
