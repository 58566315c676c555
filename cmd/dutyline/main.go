package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dutyline/internal/app"
	"dutyline/internal/config"
	"dutyline/internal/db"
	"dutyline/internal/domain"
	"dutyline/internal/engine"
	"dutyline/internal/migrate"
	"dutyline/internal/notify"
	"dutyline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "dutyline",
	Short: "Dutyline CLI",
	Long: `Dutyline tracks recurring client duties.
Clients complete or reopen duties; every change appends an immutable event and
an audit log entry. Managers create, assign, and archive duties. The summary
view (active/archived partitions, totals, timeline, week range) is recomputed
from the store on every read.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DUTYLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("client", "", "client id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("client", rootCmd.PersistentFlags().Lookup("client"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(dutyCmd())
	rootCmd.AddCommand(clientCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(summaryCmd())
}

func dutyCmd() *cobra.Command {
	duty := &cobra.Command{Use: "duty", Short: "Manage duties"}
	duty.AddCommand(dutyListCmd())
	duty.AddCommand(dutyCreateCmd())
	duty.AddCommand(dutyCompleteCmd())
	duty.AddCommand(dutyReopenCmd())
	duty.AddCommand(dutyAssignCmd())
	duty.AddCommand(dutyArchiveCmd())
	return duty
}

func dutyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List duties with client and assignee",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rows, err := e.Repo.ListDutyRows(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Client", "Status", "Lifecycle", "Assignee"})
				for _, row := range rows {
					assignee := ""
					if row.AssignedToName != nil {
						assignee = *row.AssignedToName
					}
					tw.AppendRow(table.Row{row.ID, row.Title, row.ClientName, row.Status, row.Lifecycle, assignee})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func dutyCreateCmd() *cobra.Command {
	var title, description, frequency, dueDate, assignedTo string
	var requiresAttachment, notesRequired bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create duty",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				clientID, err := app.ResolveClient(ctx, viper.GetString("client"), e.Config, e)
				if err != nil {
					return err
				}
				d, err := e.CreateDuty(ctx, engine.DutyCreateOptions{
					ClientID:           clientID,
					Title:              title,
					Description:        description,
					Frequency:          frequency,
					DueDate:            dueDate,
					RequiresAttachment: requiresAttachment,
					NotesRequired:      notesRequired,
					AssignedTo:         assignedTo,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "duty title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&frequency, "frequency", "weekly", "frequency label")
	cmd.Flags().StringVar(&dueDate, "due-date", "", "due date (RFC3339)")
	cmd.Flags().StringVar(&assignedTo, "assigned-to", "", "assignee user id")
	cmd.Flags().BoolVar(&requiresAttachment, "requires-attachment", false, "completion requires an attachment")
	cmd.Flags().BoolVar(&notesRequired, "notes-required", false, "completion requires notes")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func dutyCompleteCmd() *cobra.Command {
	var notes, attachment string
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark a duty completed and archive it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				duty, err := e.Repo.GetDutyByID(ctx, args[0])
				if err != nil {
					return err
				}
				event, updated, err := e.RecordEvent(ctx, engine.RecordEventOptions{
					DutyID:         duty.ID,
					ClientID:       duty.ClientID,
					Status:         domain.StatusCompleted,
					Lifecycle:      domain.LifecycleArchived,
					Notes:          notes,
					AttachmentName: attachment,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"event": event, "duty": updated})
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "completion notes")
	cmd.Flags().StringVar(&attachment, "attachment", "", "attachment file name")
	return cmd
}

func dutyReopenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reopen <id>",
		Short: "Reopen a completed duty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				duty, err := e.Repo.GetDutyByID(ctx, args[0])
				if err != nil {
					return err
				}
				event, updated, err := e.RecordEvent(ctx, engine.RecordEventOptions{
					DutyID:    duty.ID,
					ClientID:  duty.ClientID,
					Status:    domain.StatusPending,
					Lifecycle: domain.LifecycleActive,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"event": event, "duty": updated})
			})
		},
	}
	return cmd
}

func dutyAssignCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Assign or unassign a duty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.AssignDuty(ctx, args[0], userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (empty to unassign)")
	return cmd
}

func dutyArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "Complete and archive a duty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.ArchiveDuty(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func clientCmd() *cobra.Command {
	client := &cobra.Command{Use: "client", Short: "Manage clients"}
	client.AddCommand(clientListCmd())
	client.AddCommand(clientCreateCmd())
	return client
}

func clientListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clients with duty counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rows, err := e.Repo.ListClientRows(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Active", "Total"})
				for _, row := range rows {
					tw.AppendRow(table.Row{row.ID, row.Name, row.ActiveDutyCount, row.TotalDutyCount})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func clientCreateCmd() *cobra.Command {
	var id, name, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateClient(ctx, id, name, description)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "client id")
	cmd.Flags().StringVar(&name, "name", "", "client name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userListCmd())
	return user
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assignable users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.Repo.ListAssignableUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Email"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Role, u.Email})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Duty logs",
		Long:  "The audit trail: one entry per recorded status change, newest first.",
	}
	log.AddCommand(logListCmd())
	log.AddCommand(logExportCmd())
	return log
}

func logListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List logs for the active client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				clientID, err := app.ResolveClient(ctx, viper.GetString("client"), e.Config, e)
				if err != nil {
					return err
				}
				logs, err := e.Repo.ListLogs(ctx, clientID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(logs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Timestamp", "Message", "Status", "Lifecycle"})
				for _, l := range logs {
					tw.AppendRow(table.Row{l.CreatedAt, l.Message, l.Status, l.Lifecycle})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func logExportCmd() *cobra.Command {
	var format, lifecycle, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "json" {
				return fmt.Errorf("--format must be csv or json")
			}
			if lifecycle != "" && !domain.ValidLifecycle(lifecycle) {
				return fmt.Errorf("invalid lifecycle %q", lifecycle)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				clientID, err := app.ResolveClient(ctx, viper.GetString("client"), e.Config, e)
				if err != nil {
					return err
				}
				logs, err := e.Repo.ListLogs(ctx, clientID)
				if err != nil {
					return err
				}
				if lifecycle != "" {
					filtered := logs[:0]
					for _, l := range logs {
						if l.Lifecycle == lifecycle {
							filtered = append(filtered, l)
						}
					}
					logs = filtered
				}
				var data []byte
				if format == "csv" {
					titles, err := e.Repo.DutyTitles(ctx, clientID)
					if err != nil {
						return err
					}
					data = []byte(server.LogsCSV(logs, titles))
				} else {
					data, err = json.MarshalIndent(map[string]any{"logs": logs}, "", "  ")
					if err != nil {
						return err
					}
				}
				if out == "" {
					fmt.Print(string(data))
					return nil
				}
				return os.WriteFile(out, data, 0o644)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "export format (csv or json)")
	cmd.Flags().StringVar(&lifecycle, "lifecycle", "", "lifecycle filter (ACTIVE or ARCHIVED)")
	cmd.Flags().StringVar(&out, "out", "", "output file (stdout when empty)")
	return cmd
}

func summaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the client dashboard summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				clientID, err := app.ResolveClient(ctx, viper.GetString("client"), e.Config, e)
				if err != nil {
					return err
				}
				s, err := e.Summary(ctx, clientID)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the demo client, users, and duties",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				clientID, err := app.Seed(ctx, e)
				if err != nil {
					return err
				}
				fmt.Printf("Seeded client %s\n", clientID)
				return nil
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = config.Default("acme-co")
			}
			e := engine.New(conn, cfg)
			if _, err := app.ResolveClient(cmd.Context(), viper.GetString("client"), cfg, e); err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:    cfg.Auth.JWTSecret,
				AllowAPIKeys: cfg.Auth.AllowAPIKeys,
				Disabled:     cfg.Auth.Disabled,
			}
			if secret := os.Getenv("DUTYLINE_JWT_SECRET"); secret != "" {
				authCfg.JWTSecret = secret
				authCfg.Disabled = false
			}
			if !authCfg.Disabled && authCfg.JWTSecret == "" && !authCfg.AllowAPIKeys {
				return fmt.Errorf("auth enabled but no JWT secret configured; set DUTYLINE_JWT_SECRET or auth.jwt_secret")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			notify.Start(e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Dutyline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = config.Default("acme-co")
	}
	return fn(ctx, engine.New(conn, cfg))
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
