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
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"planline/internal/app"
	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/migrate"
	"planline/internal/repo"
	"planline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pl",
	Short: "Planline CLI",
	Long: `Planline turns a pile of tasks into a concrete calendar.
It orders pending tasks by priority and due date, fits them into your
working hours around holidays and personal events, splits long tasks
into smaller intervals when they do not fit in one piece, and reports
conflicts it cannot solve so you can decide how to resolve them.`,
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
	viper.SetEnvPrefix("PLANLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().StringP("user", "u", "", "user id (defaults to local single user)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(prefsCmd())
	rootCmd.AddCommand(eventCmd())
	rootCmd.AddCommand(holidayCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(conflictCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default planline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks are the units of work the scheduler places. Each has an estimated duration, a priority (urgent, high, medium, low), and optionally a due date. Long tasks can be split into intervals that are placed independently.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskSplitCmd())
	task.AddCommand(taskDoneCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var title, priority, due, teamID string
	var minutes int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, userID string) error {
				opts := engine.TaskCreateOptions{
					UserID:           userID,
					Title:            title,
					EstimatedMinutes: minutes,
					Priority:         priority,
					ActorID:          viper.GetString("actor-id"),
				}
				if due != "" {
					opts.DueDate = &due
				}
				if teamID != "" {
					opts.TeamID = &teamID
				}
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "estimated duration in minutes")
	cmd.Flags().StringVar(&priority, "priority", "medium", "priority (urgent, high, medium, low)")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&teamID, "team", "", "team id")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("minutes")
	return cmd
}

func taskListCmd() *cobra.Command {
	var status, priority string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, userID string) error {
				tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
					UserID:   userID,
					Status:   status,
					Priority: priority,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Minutes", "Priority", "Due", "Status", "Intervals"})
				for _, t := range tasks {
					due := ""
					if t.DueDate != nil {
						due = *t.DueDate
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.EstimatedMinutes, t.Priority, due, t.Status, len(t.Intervals)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (pending, scheduled, completed)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority filter")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with its intervals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, _ string) error {
				t, err := e.Repo.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskSplitCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "split <id>",
		Short: "Split a task into equal intervals",
		Long:  "Divides the task's remaining work into n intervals of near-equal length. Completed intervals are kept as they are; only the unfinished remainder is re-divided.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, _ string) error {
				intervals, err := e.SplitTask(ctx, args[0], n, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(intervals)
			})
		},
	}
	cmd.Flags().IntVar(&n, "intervals", 2, "number of intervals")
	return cmd
}

func taskDoneCmd() *cobra.Command {
	var intervalID string
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark an interval of a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if intervalID == "" {
				return fmt.Errorf("--interval required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, _ string) error {
				t, err := e.CompleteInterval(ctx, args[0], intervalID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&intervalID, "interval", "", "interval id")
	return cmd
}

func prefsCmd() *cobra.Command {
	prefs := &cobra.Command{Use: "prefs", Short: "Working-hours preferences"}
	prefs.AddCommand(prefsSetCmd())
	prefs.AddCommand(prefsShowCmd())
	return prefs
}

func prefsSetCmd() *cobra.Command {
	var dayStart, dayEnd string
	var days []string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set working hours",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, userID string) error {
				p := domain.WorkingHoursPreference{
					UserID:     userID,
					DayStart:   dayStart,
					DayEnd:     dayEnd,
					ActiveDays: days,
				}
				if err := e.SetWorkingHours(ctx, p, viper.GetString("actor-id")); err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&dayStart, "day-start", "09:00", "working day start (HH:MM)")
	cmd.Flags().StringVar(&dayEnd, "day-end", "17:00", "working day end (HH:MM)")
	cmd.Flags().StringSliceVar(&days, "days", []string{"monday", "tuesday", "wednesday", "thursday", "friday"}, "active weekdays")
	return cmd
}

func prefsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show working hours",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, userID string) error {
				p, err := e.Repo.GetWorkingHours(ctx, userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func eventCmd() *cobra.Command {
	ev := &cobra.Command{
		Use:   "event",
		Short: "Personal events",
		Long:  "Fixed commitments (meetings, appointments) the scheduler must plan around.",
	}
	ev.AddCommand(eventAddCmd())
	ev.AddCommand(eventListCmd())
	ev.AddCommand(eventRemoveCmd())
	return ev
}

func eventAddCmd() *cobra.Command {
	var title, starts, ends string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a personal event",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, userID string) error {
				ev, err := e.AddPersonalEvent(ctx, userID, title, starts, ends, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(ev)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "event title")
	cmd.Flags().StringVar(&starts, "from", "", "start (RFC3339)")
	cmd.Flags().StringVar(&ends, "to", "", "end (RFC3339)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func eventListCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List personal events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, userID string) error {
				if from == "" {
					from = "0001-01-01T00:00:00Z"
				}
				if to == "" {
					to = "9999-12-31T00:00:00Z"
				}
				items, err := e.Repo.ListPersonalEvents(ctx, userID, from, to)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "range start (RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "range end (RFC3339)")
	return cmd
}

func eventRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a personal event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, _ string) error {
				return e.Repo.DeletePersonalEvent(ctx, args[0])
			})
		},
	}
	return cmd
}

// holidayFile is the YAML shape accepted by `pl holiday import`.
type holidayFile struct {
	Calendar string `yaml:"calendar"`
	Days     []struct {
		Day  string `yaml:"day"`
		Name string `yaml:"name"`
	} `yaml:"days"`
}

func holidayCmd() *cobra.Command {
	hol := &cobra.Command{Use: "holiday", Short: "Holiday calendars"}
	hol.AddCommand(holidayImportCmd())
	hol.AddCommand(holidayListCmd())
	return hol
}

func holidayImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import holidays from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			var hf holidayFile
			if err := yaml.Unmarshal(data, &hf); err != nil {
				return fmt.Errorf("parse %s: %w", filePath, err)
			}
			if hf.Calendar == "" {
				return fmt.Errorf("%s does not name a calendar", filePath)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, _ string) error {
				days := make([]domain.Holiday, 0, len(hf.Days))
				for _, d := range hf.Days {
					days = append(days, domain.Holiday{Day: d.Day, Name: d.Name})
				}
				n, err := e.ImportHolidays(ctx, hf.Calendar, days, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Printf("Imported %d holidays into calendar %s\n", n, hf.Calendar)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML holiday file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func holidayListCmd() *cobra.Command {
	var calendar, from, to string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List holidays",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, _ string) error {
				if calendar == "" {
					calendar = e.Config.Calendar
				}
				items, err := e.Repo.ListHolidays(ctx, calendar, from, to)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&calendar, "calendar", "", "calendar code (defaults to config)")
	cmd.Flags().StringVar(&from, "from", "0001-01-01", "range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "9999-12-31", "range end (YYYY-MM-DD)")
	return cmd
}

func scheduleCmd() *cobra.Command {
	sched := &cobra.Command{Use: "schedule", Short: "Generate and inspect schedules"}
	sched.AddCommand(scheduleGenerateCmd())
	sched.AddCommand(scheduleShowCmd())
	return sched
}

func scheduleGenerateCmd() *cobra.Command {
	var start, end string
	var noEvents, noPriority, efficient, override bool
	var autoSplit string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the schedule",
		Long:  "Replaces the user's unpinned schedule entries with a fresh placement of all pending work, and reports any conflicts it could not avoid.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, userID string) error {
				opts := e.DefaultOptions()
				opts.ActorID = viper.GetString("actor-id")
				opts.RespectPersonalEvents = !noEvents
				opts.PrioritizeUrgentTasks = !noPriority
				opts.OptimizeForEfficiency = efficient
				opts.AllowManualOverride = override
				switch autoSplit {
				case "on":
					opts.AutoSplit = true
				case "off":
					opts.AutoSplit = false
				}
				if start != "" {
					t, err := time.Parse(time.RFC3339, start)
					if err != nil {
						return fmt.Errorf("malformed --start: %w", err)
					}
					opts.StartDate = t
				}
				if end != "" {
					t, err := time.Parse(time.RFC3339, end)
					if err != nil {
						return fmt.Errorf("malformed --end: %w", err)
					}
					opts.EndDate = t
				}
				res, err := e.Generate(ctx, userID, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				renderEntries(res.Entries)
				if len(res.Conflicts) > 0 {
					fmt.Printf("\n%d conflict(s):\n", len(res.Conflicts))
					for _, c := range res.Conflicts {
						fmt.Printf("  [%s] %s (%s)\n", c.Kind, c.Detail, c.ID)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "horizon start (RFC3339, defaults to now)")
	cmd.Flags().StringVar(&end, "end", "", "horizon end (RFC3339, defaults to config horizon)")
	cmd.Flags().BoolVar(&noEvents, "ignore-events", false, "schedule over personal events")
	cmd.Flags().BoolVar(&noPriority, "no-priority", false, "ignore priority ordering")
	cmd.Flags().BoolVar(&efficient, "efficient", false, "prefer the largest free block over the earliest")
	cmd.Flags().BoolVar(&override, "allow-override", false, "permit manually pinned entries outside working hours")
	cmd.Flags().StringVar(&autoSplit, "auto-split", "", "override config auto_split (on, off)")
	return cmd
}

func scheduleShowCmd() *cobra.Command {
	var from, to, status string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show schedule entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, userID string) error {
				entries, err := e.Repo.ListEntries(ctx, repo.EntryFilters{
					UserID: userID,
					From:   from,
					To:     to,
					Status: status,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				renderEntries(entries)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "range start (RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "range end (RFC3339)")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func renderEntries(entries []domain.ScheduleEntry) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Start", "End", "Task", "Priority", "Status", "Pinned"})
	for _, e := range entries {
		tw.AppendRow(table.Row{e.StartsAt, e.EndsAt, e.TaskID, e.Priority, e.Status, e.Pinned})
	}
	tw.Render()
}

func conflictCmd() *cobra.Command {
	con := &cobra.Command{
		Use:   "conflict",
		Short: "Inspect and resolve conflicts",
		Long:  "Conflicts are placements the scheduler could not make: overlapping pinned entries, tasks that cannot finish before their due date, or invalid input. Each is resolved with an explicit action.",
	}
	con.AddCommand(conflictListCmd())
	con.AddCommand(conflictResolveCmd())
	return con
}

func conflictListCmd() *cobra.Command {
	var kind string
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, userID string) error {
				items, err := e.Repo.ListConflicts(ctx, repo.ConflictFilters{
					UserID:   userID,
					Kind:     kind,
					OpenOnly: !all,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "kind filter (overlap, due-date-infeasible, validation)")
	cmd.Flags().BoolVar(&all, "all", false, "include resolved conflicts")
	return cmd
}

func conflictResolveCmd() *cobra.Command {
	var action string
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve a conflict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if action == "" {
				return fmt.Errorf("--action required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, _ string) error {
				c, err := e.ResolveConflict(ctx, args[0], action, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "resolution action (reschedule-to-next-slot, override-and-keep, cancel-entry, split-and-retry)")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: task changes, schedule runs, conflict resolutions.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, userID string) error {
				events, err := e.Repo.LatestEvents(ctx, n, userID, evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath, regenSpec string
	var rateLimit float64
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
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
			log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
			e := engine.New(conn, cfg)
			e.Log = log

			var sched *cron.Cron
			if regenSpec != "" {
				sched = cron.New()
				actorID := viper.GetString("actor-id")
				_, err := sched.AddFunc(regenSpec, func() {
					n, err := e.GenerateAll(context.Background(), actorID)
					if err != nil {
						log.Error().Err(err).Msg("scheduled regeneration failed")
						return
					}
					log.Info().Int("users", n).Msg("scheduled regeneration finished")
				})
				if err != nil {
					return fmt.Errorf("invalid --regen-cron %q: %w", regenSpec, err)
				}
				sched.Start()
				defer sched.Stop()
			}

			handler, err := server.New(server.Config{
				Engine:    e,
				BasePath:  basePath,
				Log:       log,
				RateLimit: rateLimit,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Planline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().StringVar(&regenSpec, "regen-cron", "", "cron spec for periodic regeneration (e.g. '0 6 * * *')")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", 0, "requests per second per client (0 disables)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine, string) error) error {
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
	r := repo.Repo{DB: conn}
	userID, _, err := app.ResolveUserPreferences(ctx, viper.GetString("user"), cfg, r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e, userID)
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
