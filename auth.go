package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/baidupan-go/internal/tokenfile"
	"github.com/tonimelisma/baidupan-go/internal/xpan"
)

var errNoClientID = errors.New("no app key configured: set [app] client_id or BAIDUPAN_GO_CLIENT_ID")

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with Baidu Netdisk",
		Long: `Authenticate with Baidu Netdisk.

By default the device code flow is used: open the printed URL and enter the
code. With --code, an authorization code from the web flow is exchanged
instead; run with --code="" to print the authorization URL.`,
		RunE: runLogin,
	}

	cmd.Flags().String("code", "", "exchange an authorization code from the web flow")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved token",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated account",
		RunE:  runWhoami,
	}
}

func newQuotaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Display storage usage",
		RunE:  runQuota,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := buildLogger()

	app := resolvedCfg.Credentials()
	if app.ClientID == "" || app.ClientSecret == "" {
		return errNoClientID
	}

	client := xpan.NewClient(resolvedCfg.ClientConfig(""), nil, logger)

	var (
		resp *xpan.TokenResponse
		err  error
	)

	if cmd.Flags().Changed("code") {
		code, _ := cmd.Flags().GetString("code")
		if code == "" {
			// Prompts must stay visible even with --quiet.
			fmt.Fprintf(os.Stderr, "Open this URL, authorize, and rerun with --code:\n%s\n",
				client.AuthorizeURL(app, uuid.NewString()))

			return nil
		}

		resp, err = client.CodeToToken(ctx, app, code)
	} else {
		var dc *xpan.DeviceCode

		dc, err = client.DeviceCode(ctx, app)
		if err != nil {
			return fmt.Errorf("requesting device code: %w", err)
		}

		fmt.Fprintf(os.Stderr, "To sign in, visit: %s\n", dc.VerificationURL)
		fmt.Fprintf(os.Stderr, "Enter code: %s\n", dc.UserCode)

		if dc.QRCodeURL != "" {
			fmt.Fprintf(os.Stderr, "Or scan: %s\n", dc.QRCodeURL)
		}

		resp, err = client.PollDeviceToken(ctx, app, dc)
	}

	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	tok := resp.Token()

	user, err := xpan.NewClient(resolvedCfg.ClientConfig(tok.AccessToken), nil, logger).UserInfo(ctx)
	if err != nil {
		return fmt.Errorf("fetching account: %w", err)
	}

	acct := &tokenfile.Account{
		UK:          user.UK,
		BaiduName:   user.BaiduName,
		NetdiskName: user.NetdiskName,
		VIPType:     user.VIPType,
	}

	if err := tokenfile.Save(resolvedCfg.TokenPath, &tokenfile.File{Token: tok, Account: acct}); err != nil {
		return err
	}

	logger.Info("login successful", "uk", user.UK)
	statusf("Logged in as %s.\n", displayName(user))

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	logger := buildLogger()

	if err := tokenfile.Remove(resolvedCfg.TokenPath); err != nil {
		return err
	}

	logger.Info("logout successful", "token_path", resolvedCfg.TokenPath)
	statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	UK          int64  `json:"uk"`
	BaiduName   string `json:"baidu_name"`
	NetdiskName string `json:"netdisk_name"`
	VIPType     int    `json:"vip_type"`
	VIP         string `json:"vip"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := buildLogger()

	s, err := NewSession(ctx, resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	user, err := s.Client.UserInfo(ctx)
	if err != nil {
		return fmt.Errorf("fetching account: %w", err)
	}

	w := cmd.OutOrStdout()

	if flagJSON {
		return printJSON(w, whoamiOutput{
			UK:          user.UK,
			BaiduName:   user.BaiduName,
			NetdiskName: user.NetdiskName,
			VIPType:     user.VIPType,
			VIP:         vipName(user.VIPType),
		})
	}

	fmt.Fprintf(w, "User:    %s\n", displayName(user))
	fmt.Fprintf(w, "UK:      %d\n", user.UK)
	fmt.Fprintf(w, "Account: %s\n", vipName(user.VIPType))

	return nil
}

// quotaOutput is the JSON schema for `quota --json`.
type quotaOutput struct {
	Total  int64 `json:"total"`
	Used   int64 `json:"used"`
	Free   int64 `json:"free"`
	Expire bool  `json:"expire"`
}

func runQuota(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	s, err := NewSession(ctx, resolvedCfg, buildLogger())
	if err != nil {
		return err
	}
	defer s.Close()

	q, err := s.Client.Quota(ctx)
	if err != nil {
		return fmt.Errorf("fetching quota: %w", err)
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), quotaOutput{Total: q.Total, Used: q.Used, Free: q.Free, Expire: q.Expire})
	}

	printQuota(cmd.OutOrStdout(), q)

	return nil
}

func printQuota(w io.Writer, q *xpan.Quota) {
	pct := 0.0
	if q.Total > 0 {
		pct = float64(q.Used) / float64(q.Total) * 100 //nolint:mnd // percent
	}

	fmt.Fprintf(w, "Used:  %s (%.1f%%)\n", formatSize(q.Used), pct)
	fmt.Fprintf(w, "Free:  %s\n", formatSize(q.Free))
	fmt.Fprintf(w, "Total: %s\n", formatSize(q.Total))

	if q.Expire {
		fmt.Fprintln(w, "Some capacity expires within 7 days.")
	}
}

func displayName(u *xpan.UserInfo) string {
	if u.NetdiskName != "" {
		return u.NetdiskName
	}

	return u.BaiduName
}

func vipName(t int) string {
	switch t {
	case 1:
		return "member"
	case 2: //nolint:mnd // provider enum
		return "super member"
	default:
		return "regular"
	}
}
