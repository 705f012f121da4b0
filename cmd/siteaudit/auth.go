package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/kalambet/siteaudit/internal/apiclient"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign in, sign out and inspect the stored token",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	Long: `Sign in with email and password. The access token is stored locally
and sent with every account request.

Examples:
  siteaudit auth login --email me@example.com --password-stdin < pass.txt
  echo "$PASSWORD" | siteaudit auth login --email me@example.com --password-stdin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		fromStdin, _ := cmd.Flags().GetBool("password-stdin")

		if email == "" {
			return errors.New("--email is required")
		}
		if fromStdin {
			p, err := readLine(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}
			password = p
		}
		if password == "" {
			return errors.New("a password is required: use --password-stdin")
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := a.session.Login(cmd.Context(), email, password)
		if err != nil {
			var apiErr *apiclient.APIError
			if errors.As(err, &apiErr) && apiErr.Status == 401 {
				return errors.New("login failed: incorrect email or password")
			}
			return fmt.Errorf("login failed: %w", err)
		}
		printSuccess("Signed in as %s", user.Email)
		return nil
	},
}

var authSetTokenCmd = &cobra.Command{
	Use:   "set-token <token>",
	Short: "Store an access token obtained elsewhere",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := a.session.UseToken(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("token rejected: %w", err)
		}
		printSuccess("Signed in as %s", user.Email)
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.session.Logout(); err != nil {
			return err
		}
		printSuccess("Signed out")
		return nil
	},
}

// tokenInfo is what auth status can tell about the stored token without the
// signing key.
type tokenInfo struct {
	Authenticated bool            `json:"authenticated" yaml:"authenticated"`
	User          *apiclient.User `json:"user,omitempty" yaml:"user,omitempty"`
	Stored        bool            `json:"token_stored" yaml:"token_stored"`
	Subject       string          `json:"subject,omitempty" yaml:"subject,omitempty"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Expired       bool            `json:"expired,omitempty" yaml:"expired,omitempty"`
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the signed-in account and token expiry",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		tok, err := a.store.Token()
		if err != nil {
			return err
		}
		info := inspectToken(tok, time.Now())
		info.Authenticated = a.session.IsAuthenticated()
		if u, ok := a.session.User(); ok && info.Authenticated {
			info.User = &u
		}

		return render(cmd, info, func(w io.Writer) error {
			switch {
			case info.User != nil:
				printSuccess("Signed in as %s", info.User.Email)
			case info.Stored:
				printWarning("A token is stored but the backend did not accept it")
			default:
				printWarning("Signed out")
			}
			if info.Subject != "" {
				printStatus("Subject", "%s", info.Subject)
			}
			if info.ExpiresAt != nil {
				state := "valid"
				if info.Expired {
					state = "expired"
				}
				printStatus("Expires", "%s (%s)", info.ExpiresAt.Local().Format(time.DateTime), state)
			}
			return nil
		})
	},
}

// inspectToken reads the registered claims of a JWT without verifying its
// signature. Opaque tokens yield only Stored.
func inspectToken(tok string, now time.Time) tokenInfo {
	info := tokenInfo{Stored: tok != ""}
	if tok == "" {
		return info
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return info
	}
	info.Subject = claims.Subject
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		info.ExpiresAt = &exp
		info.Expired = !now.Before(exp)
	}
	return info
}

func readLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimRight(sc.Text(), "\r\n"), nil
}

func init() {
	authLoginCmd.Flags().String("email", "", "account email")
	authLoginCmd.Flags().String("password", "", "account password (prefer --password-stdin)")
	authLoginCmd.Flags().Bool("password-stdin", false, "read the password from stdin")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authSetTokenCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
}
