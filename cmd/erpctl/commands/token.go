package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"erpinsight/pkg/auth"
	"erpinsight/pkg/errors"
)

var (
	tokenUser    string
	tokenRealm   string
	tokenCompany string
	tokenRefresh string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue or refresh an API bearer token signed with JWT_SECRET",
	Example: `  erpctl token --user u-42 --realm 9130354 --company "Acme Holdings"
  erpctl token --refresh "$ERPINSIGHT_TOKEN"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.Auth.Enabled() {
			return errors.Wrap(errors.ErrInvalidInput, "JWT_SECRET is not set")
		}
		svc := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTDuration)

		var token string
		switch {
		case tokenRefresh != "":
			token, err = svc.RefreshToken(strings.TrimSpace(tokenRefresh))
		case tokenUser != "":
			token, err = svc.GenerateToken(tokenUser, tokenRealm, tokenCompany)
		default:
			return errors.Wrap(errors.ErrInvalidInput, "either --user or --refresh is required")
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "User id")
	tokenCmd.Flags().StringVar(&tokenRealm, "realm", "", "Restrict the token to one QuickBooks realm")
	tokenCmd.Flags().StringVar(&tokenCompany, "company", "", "Company name used in prompts")
	tokenCmd.Flags().StringVar(&tokenRefresh, "refresh", "", "Reissue this token (accepted up to 24h after expiry)")
	tokenCmd.MarkFlagsMutuallyExclusive("user", "refresh")
}
