package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Git gateway CLI",
	Long:  "A CLI for running git and GitHub operations through the gateway, and for launcher-side administration.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadConfig()
		// Env var overrides are applied in newClient()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json, raw")
	rootCmd.PersistentFlags().StringVar(&outputField, "field", "", "Print only this field (use with -format=raw)")

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(pushCmd())
	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(ghCmd())
	rootCmd.AddCommand(prCmd())
}

// --- login ---

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <token>",
		Short: "Store a gateway credential in the CLI config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loadConfig()
			cfg.Token = args[0]
			if err := saveConfig(); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Token saved to config.")
			return nil
		},
	}
}

// --- session ---

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "session", Short: "Session lifecycle (launcher credential required)"}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an agent session and print its token",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, _ := cmd.Flags().GetString("mode")
			client := newClient()
			result, err := client.post("/v1/session/create", map[string]any{"mode": mode})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
	createCmd.Flags().String("mode", "bot", "Session mode: bot, user, private, public")

	revokeCmd := &cobra.Command{
		Use:   "revoke <token>",
		Short: "Revoke an agent session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			_, err := client.post("/v1/session/revoke", map[string]any{"token": args[0]})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Success! Session revoked.")
			return nil
		},
	}

	cmd.AddCommand(createCmd, revokeCmd)
	return cmd
}

// --- admin ---

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Gateway administration (launcher credential required)"}

	reloadCmd := &cobra.Command{
		Use:   "reload [component ...]",
		Short: "Reload gateway components (policy, visibility, tokens); all when none named",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.post("/v1/admin/reload", map[string]any{"components": args})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}

	cmd.AddCommand(reloadCmd)
	return cmd
}

// --- health ---

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show gateway health and credential status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/health")
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
}

// --- audit ---

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the audit log (launcher credential required)",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := []string{}
			if v, _ := cmd.Flags().GetString("repo"); v != "" {
				params = append(params, "repo="+v)
			}
			if v, _ := cmd.Flags().GetString("operation"); v != "" {
				params = append(params, "operation="+v)
			}
			if v, _ := cmd.Flags().GetBool("denied"); v {
				params = append(params, "denied=true")
			}
			if v, _ := cmd.Flags().GetString("since"); v != "" {
				params = append(params, "since="+v)
			}
			if v, _ := cmd.Flags().GetInt("limit"); v > 0 {
				params = append(params, "limit="+strconv.Itoa(v))
			}
			path := "/v1/audit-log"
			if len(params) > 0 {
				path += "?" + strings.Join(params, "&")
			}
			client := newClient()
			result, err := client.get(path)
			if err != nil {
				printError(err.Error())
				return nil
			}
			if events, ok := result["events"].([]any); ok && outputFormat == "table" {
				for _, e := range events {
					ev, ok := e.(map[string]any)
					if !ok {
						continue
					}
					fmt.Printf("%v  allowed=%v success=%v  %v  %v  %v\n",
						ev["timestamp"], ev["allowed"], ev["success"],
						ev["operation"], ev["repo"], ev["matched_rule"])
				}
				return nil
			}
			printResult(result)
			return nil
		},
	}
	cmd.Flags().String("repo", "", "Filter by owner/name")
	cmd.Flags().String("operation", "", "Filter by operation")
	cmd.Flags().Bool("denied", false, "Only denied operations")
	cmd.Flags().String("since", "", "Only events after this RFC3339 timestamp")
	cmd.Flags().Int("limit", 0, "Maximum events to return")
	return cmd
}

// --- git ---

func pushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push <owner/repo> <refspec>",
		Short: "Push a branch through the gateway",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags, _ := cmd.Flags().GetStringSlice("flag")
			client := newClient()
			result, err := client.post("/v1/git/push", map[string]any{
				"repo":    args[0],
				"refspec": args[1],
				"flags":   flags,
			})
			if err != nil {
				printError(err.Error())
				os.Exit(1)
			}
			relayCommandResult(result)
			return nil
		},
	}
	cmd.Flags().StringSlice("flag", nil, "Extra git flags (repeatable)")
	return cmd
}

func fetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <owner/repo> [refspec]",
		Short: "Fetch from a repository through the gateway",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags, _ := cmd.Flags().GetStringSlice("flag")
			body := map[string]any{"repo": args[0], "flags": flags}
			if len(args) == 2 {
				body["refspec"] = args[1]
			}
			client := newClient()
			result, err := client.post("/v1/git/fetch", body)
			if err != nil {
				printError(err.Error())
				os.Exit(1)
			}
			relayCommandResult(result)
			return nil
		},
	}
	cmd.Flags().StringSlice("flag", nil, "Extra git flags (repeatable)")
	return cmd
}

// --- gh ---

func ghCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gh -- <gh arguments ...>",
		Short: "Run a gh command through the gateway",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _ := cmd.Flags().GetString("repo")
			body := map[string]any{"args": args}
			if repo != "" {
				body["repo"] = repo
			}
			client := newClient()
			result, err := client.post("/v1/gh/execute", body)
			if err != nil {
				printError(err.Error())
				os.Exit(1)
			}
			relayCommandResult(result)
			return nil
		},
	}
	cmd.Flags().String("repo", "", "owner/name hint when the arguments carry no -R flag")
	return cmd
}

// --- pr ---

func prCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "pr", Short: "Pull request convenience commands"}

	createCmd := &cobra.Command{
		Use:   "create <owner/repo>",
		Short: "Open a pull request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title, _ := cmd.Flags().GetString("title")
			body, _ := cmd.Flags().GetString("body")
			head, _ := cmd.Flags().GetString("head")
			base, _ := cmd.Flags().GetString("base")
			draft, _ := cmd.Flags().GetBool("draft")
			client := newClient()
			result, err := client.post("/v1/gh/pr/create", map[string]any{
				"repo":  args[0],
				"title": title,
				"body":  body,
				"head":  head,
				"base":  base,
				"draft": draft,
			})
			if err != nil {
				printError(err.Error())
				os.Exit(1)
			}
			relayCommandResult(result)
			return nil
		},
	}
	createCmd.Flags().String("title", "", "Pull request title")
	createCmd.Flags().String("body", "", "Pull request body")
	createCmd.Flags().String("head", "", "Source branch")
	createCmd.Flags().String("base", "", "Target branch (repository default when empty)")
	createCmd.Flags().Bool("draft", false, "Open as draft")

	commentCmd := &cobra.Command{
		Use:   "comment <owner/repo> <number>",
		Short: "Comment on a pull request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid pull request number %q", args[1])
			}
			body, _ := cmd.Flags().GetString("body")
			client := newClient()
			result, err := client.post("/v1/gh/pr/comment", map[string]any{
				"repo":   args[0],
				"number": number,
				"body":   body,
			})
			if err != nil {
				printError(err.Error())
				os.Exit(1)
			}
			relayCommandResult(result)
			return nil
		},
	}
	commentCmd.Flags().String("body", "", "Comment body")

	closeCmd := &cobra.Command{
		Use:   "close <owner/repo> <number>",
		Short: "Close a pull request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid pull request number %q", args[1])
			}
			comment, _ := cmd.Flags().GetString("comment")
			deleteBranch, _ := cmd.Flags().GetBool("delete-branch")
			client := newClient()
			result, err := client.post("/v1/gh/pr/close", map[string]any{
				"repo":          args[0],
				"number":        number,
				"comment":       comment,
				"delete_branch": deleteBranch,
			})
			if err != nil {
				printError(err.Error())
				os.Exit(1)
			}
			relayCommandResult(result)
			return nil
		},
	}
	closeCmd.Flags().String("comment", "", "Closing comment")
	closeCmd.Flags().Bool("delete-branch", false, "Delete the source branch")

	cmd.AddCommand(createCmd, commentCmd, closeCmd)
	return cmd
}
