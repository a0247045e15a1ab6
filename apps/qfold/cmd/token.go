package cmd

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/quatton/qfold/pkg/qapi/config"
	"github.com/quatton/qfold/pkg/qapi/services/iam"
	"github.com/quatton/qfold/pkg/qerr"
	"github.com/spf13/cobra"
)

var (
	tokenTTL  time.Duration
	tokenName string
)

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Mint a bearer token for the report API",
	Long: `Signs an HS256 token with AUTH_SECRET for AUTH_AUDIENCE, the same
environment qfold serve reads.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.ValidateEnv()
		if err != nil {
			return err
		}
		if cfg.AuthSecret == "" {
			return qerr.Newf(qerr.CodeConfigError, "AUTH_SECRET is not set")
		}
		now := time.Now()
		claims := jwt.MapClaims{"iat": now.Unix()}
		if tokenTTL > 0 {
			claims["exp"] = now.Add(tokenTTL).Unix()
		}
		if tokenName != "" {
			claims["name"] = tokenName
		}
		token, err := iam.NewIAMService(cfg.AuthSecret, cfg.AuthAudience).Sign(args[0], claims)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name claim")
}
