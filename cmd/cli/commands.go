package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roxdxebec/jenga-biz/internal/handler"
)

func newAuthCmd(client *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the saved API token",
	}

	var email, password string
	login := &cobra.Command{
		Use:   "login",
		Short: "Log in with the development login endpoint and save the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp handler.LoginResponse
			req := handler.LoginRequest{Email: email, Password: password}
			if err := client.do(cmd.Context(), http.MethodPost, "/api/dev/login", req, &resp); err != nil {
				return err
			}
			if err := saveToken(resp.Token); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (expires %s)\n", resp.UserID, resp.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	login.Flags().StringVar(&email, "email", "", "account email")
	login.Flags().StringVar(&password, "password", "", "account password")
	_ = login.MarkFlagRequired("email")
	_ = login.MarkFlagRequired("password")

	save := &cobra.Command{
		Use:   "token <bearer-token>",
		Short: "Save an externally issued bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := saveToken(strings.TrimSpace(args[0])); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "token saved")
			return nil
		},
	}

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := removeToken(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}

	cmd.AddCommand(login, save, logout)
	return cmd
}

func newInviteCmd(client *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Issue, validate, consume and list invite codes",
	}

	var (
		email       string
		accountType string
		hubID       string
		expiresIn   time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new invite code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := handler.IssueInviteRequest{InvitedEmail: email, AccountType: accountType}
			if hubID != "" {
				req.HubID = &hubID
			}
			if expiresIn > 0 {
				at := time.Now().Add(expiresIn).UTC()
				req.ExpiresAt = &at
			}
			var resp handler.InviteResponse
			if err := client.do(cmd.Context(), http.MethodPost, "/api/invites", req, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	issue.Flags().StringVar(&email, "email", "", "invited email address")
	issue.Flags().StringVar(&accountType, "type", "business", "account type (business or organization)")
	issue.Flags().StringVar(&hubID, "hub", "", "hub to link the invite to")
	issue.Flags().DurationVar(&expiresIn, "expires-in", 0, "validity window (server default when zero)")
	_ = issue.MarkFlagRequired("email")

	validate := &cobra.Command{
		Use:   "validate <code>",
		Short: "Check whether an invite code is usable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp handler.ValidateInviteResponse
			path := "/api/invites/" + url.PathEscape(args[0]) + "/validate"
			if err := client.do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	var userID string
	consume := &cobra.Command{
		Use:   "consume <code>",
		Short: "Redeem an invite code for the caller or another user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp handler.ConsumeInviteResponse
			req := handler.ConsumeInviteRequest{Code: args[0], UserID: userID}
			if err := client.do(cmd.Context(), http.MethodPost, "/api/invites/consume", req, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	consume.Flags().StringVar(&userID, "user", "", "redeem on behalf of this user (admin only)")

	var (
		status string
		limit  int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List invites visible to the caller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if status != "" {
				q.Set("status", status)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			path := "/api/invites"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			var resp handler.ListInvitesResponse
			if err := client.do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "CODE\tEMAIL\tTYPE\tHUB\tSTATUS\tEXPIRES")
			for _, inv := range resp.Invites {
				hub := "-"
				if inv.HubID != nil {
					hub = *inv.HubID
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					inv.Code, inv.InvitedEmail, inv.AccountType, hub, inv.Status, inv.ExpiresAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status (pending, used, expired)")
	list.Flags().IntVar(&limit, "limit", 0, "maximum number of invites")

	cmd.AddCommand(issue, validate, consume, list)
	return cmd
}

func newSignupCmd(client *apiClient) *cobra.Command {
	var req handler.SignupRequest
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account, optionally redeeming an invite code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp handler.SignupResponse
			if err := client.do(cmd.Context(), http.MethodPost, "/api/signup", req, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "account password")
	cmd.Flags().StringVar(&req.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&req.AccountType, "type", "business", "account type (business or organization)")
	cmd.Flags().StringVar(&req.InviteCode, "invite", "", "invite code to redeem")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newImpersonateCmd(client *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "impersonate",
		Short: "Act within a hub as a super admin",
	}

	start := &cobra.Command{
		Use:   "start <hub-id>",
		Short: "Start impersonating a hub",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp handler.StartImpersonationResponse
			req := handler.StartImpersonationRequest{HubID: args[0]}
			if err := client.do(cmd.Context(), http.MethodPost, "/api/impersonation/start", req, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	stop := &cobra.Command{
		Use:   "stop",
		Short: "End the active impersonation session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp handler.StopImpersonationResponse
			if err := client.do(cmd.Context(), http.MethodPost, "/api/impersonation/stop", struct{}{}, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the active impersonation session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp handler.ImpersonationStatusResponse
			if err := client.do(cmd.Context(), http.MethodGet, "/api/impersonation/status", nil, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.AddCommand(start, stop, status)
	return cmd
}

func newMeCmd(client *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the caller's profile, roles and scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp handler.MeResponse
			if err := client.do(cmd.Context(), http.MethodGet, "/api/me", nil, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newScopeCmd(client *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "scope",
		Short: "Show the tenant scope the server resolves for the caller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp map[string]any
			if err := client.do(cmd.Context(), http.MethodGet, "/api/tenant/scope", nil, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newRoleCmd(client *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Grant or revoke role bindings",
	}

	binding := func(use, short, path string) *cobra.Command {
		var hubID string
		c := &cobra.Command{
			Use:   use + " <user-id> <role>",
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				req := handler.RoleBindingRequest{UserID: args[0], Role: args[1]}
				if hubID != "" {
					req.HubID = &hubID
				}
				var resp map[string]any
				if err := client.do(cmd.Context(), http.MethodPost, path, req, &resp); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			},
		}
		c.Flags().StringVar(&hubID, "hub", "", "hub the binding applies to (global when empty)")
		return c
	}

	cmd.AddCommand(
		binding("grant", "Grant a role to a user", "/api/roles/grant"),
		binding("revoke", "Revoke a role from a user", "/api/roles/revoke"),
	)
	return cmd
}

func newUserCmd(client *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Account administration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "deactivate <user-id>",
		Short: "Deactivate an account and drop its role bindings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]any
			path := "/api/users/" + url.PathEscape(args[0]) + "/deactivate"
			if err := client.do(cmd.Context(), http.MethodPost, path, struct{}{}, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	})
	return cmd
}
