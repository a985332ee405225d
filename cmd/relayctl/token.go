package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ripplesocial/relay/internal/identity"
	"github.com/spf13/cobra"
)

var (
	tokenUserID string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development JWT for a user id",
	Long: `Mints an HMAC-signed JWT accepted by the relay's connection gate.
Requires JWT_SECRET in the environment, matching the relay's secret.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			return fmt.Errorf("JWT_SECRET environment variable not set")
		}
		if tokenUserID == "" {
			return fmt.Errorf("--user is required")
		}

		token, err := identity.MintToken([]byte(secret), tokenUserID, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "User id to embed in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
}
