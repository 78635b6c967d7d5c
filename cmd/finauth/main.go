// Command finauth is a terminal client for the finance API. It keeps the
// session in ~/.finauth/tokens.json (or Redis when FINAUTH_REDIS_ADDR is
// set) and renews it transparently.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	finAuth "github.com/MrEthical07/finAuth"
	"github.com/MrEthical07/finAuth/authstate"
	"github.com/MrEthical07/finAuth/gateway"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand(nil).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", describeError(err))
		os.Exit(1)
	}
}

type rootOptions struct {
	apiURL    string
	tokenFile string
	logLevel  string
	lookuper  envconfig.Lookuper
}

func newRootCommand(lookuper envconfig.Lookuper) *cobra.Command {
	opts := &rootOptions{lookuper: lookuper}

	cmd := &cobra.Command{
		Use:           "finauth",
		Short:         "Log in to the finance API and call it with a managed session",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.apiURL, "api", "", "API base URL (env FINAUTH_API_URL)")
	cmd.PersistentFlags().StringVar(&opts.tokenFile, "token-file", "", "token file path (env FINAUTH_TOKEN_FILE)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (env FINAUTH_LOG_LEVEL)")

	cmd.AddCommand(
		newLoginCommand(opts),
		newLogoutCommand(opts),
		newRegisterCommand(opts),
		newWhoamiCommand(opts),
		newStatusCommand(opts),
		newGetCommand(opts),
	)
	return cmd
}

func (o *rootOptions) open(cmd *cobra.Command) (*app, error) {
	env, err := loadEnv(withContext(cmd.Context()), o.lookuper)
	if err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if o.apiURL != "" {
		env.APIURL = o.apiURL
	}
	if o.tokenFile != "" {
		env.TokenFile = o.tokenFile
	}
	if o.logLevel != "" {
		env.LogLevel = o.logLevel
	}
	return newApp(env, cmd.ErrOrStderr())
}

func newLoginCommand(opts *rootOptions) *cobra.Command {
	var (
		username      string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange username and password for a stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if username == "" {
				username = a.env.Username
			}
			if username == "" {
				return errors.New("username is required (--username or FINAUTH_USERNAME)")
			}
			password := a.env.Password
			if passwordStdin {
				password, err = readLine(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
			}
			if password == "" {
				return errors.New("password is required (--password-stdin or FINAUTH_PASSWORD)")
			}

			session, err := a.client.Login(withContext(cmd.Context()), username, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (id %d)\n", session.User.Username, session.User.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newLogoutCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.client.Logout(withContext(cmd.Context())); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newRegisterCommand(opts *rootOptions) *cobra.Command {
	var (
		username      string
		email         string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account (does not log in)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			password := a.env.Password
			if passwordStdin {
				password, err = readLine(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
			}

			user, err := a.client.Register(withContext(cmd.Context()), username, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (id %d); run \"finauth login\" to sign in\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newWhoamiCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			var user struct {
				ID       int64  `json:"id"`
				Username string `json:"username"`
				Email    string `json:"email"`
				IsStaff  bool   `json:"is_staff"`
			}
			path := finAuth.DefaultConfig().Endpoints.CurrentUser
			if err := a.client.Gateway().DoJSON(withContext(cmd.Context()), http.MethodGet, path, nil, &user); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> id=%d staff=%t\n", user.Username, user.Email, user.ID, user.IsStaff)
			return nil
		},
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Resolve the stored session and print the resulting state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctrl := authstate.New(a.client, authstate.WithLogger(a.logger))
			defer ctrl.Close()

			s := ctrl.Bootstrap(withContext(cmd.Context()))
			out := cmd.OutOrStdout()
			switch s.Kind {
			case authstate.Authenticated:
				fmt.Fprintf(out, "authenticated as %s", s.Session.User.Username)
				if !s.Session.AccessExpiresAt.IsZero() {
					fmt.Fprintf(out, " (access until %s)", s.Session.AccessExpiresAt.Format("15:04:05"))
				}
				fmt.Fprintln(out)
			case authstate.Error:
				fmt.Fprintf(out, "unknown: %s (%v)\n", s.Reason, s.Err)
			default:
				if s.Reason != "" {
					fmt.Fprintf(out, "not logged in (%s)\n", s.Reason)
				} else {
					fmt.Fprintln(out, "not logged in")
				}
			}
			return nil
		},
	}
}

func newGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "GET an API path with the stored session and print the JSON body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			path := args[0]
			if !strings.HasPrefix(path, "/") {
				path = "/" + path
			}
			var body json.RawMessage
			err = a.client.Gateway().DoJSON(withContext(cmd.Context()), http.MethodGet, path, nil, &body)
			var se *gateway.StatusError
			if errors.As(err, &se) {
				return fmt.Errorf("%s: %s", se.Error(), strings.TrimSpace(string(se.Body)))
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(body)
		},
	}
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
