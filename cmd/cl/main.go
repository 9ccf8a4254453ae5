package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"contentline/internal/app"
	"contentline/internal/config"
	"contentline/internal/db"
	"contentline/internal/domain"
	"contentline/internal/engine"
	"contentline/internal/metrics"
	"contentline/internal/pkg/logger"
	"contentline/internal/repo"
	"contentline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cl",
	Short: "Contentline CLI",
	Long: `Contentline moves marketing deliverables through a staged pipeline.
- Stages: ordered board columns, each with an optional WIP limit.
- Deliverables: requested content pieces; assignees move them between stages.
- Approvals: an assignee asks for sign-off; the approver approves or requests changes.
- Notifications: per-user inbox, filled by assignments, approvals and the overdue sweep.
- Activity: every change is appended to the deliverable's history ('cl log').`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CONTENTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "", "acting profile id")
	flags.String("log-mode", "prod", "log mode (dev|prod)")
	flags.String("jwt-secret", "", "HS256 secret for API bearer tokens")
	for _, name := range []string{"workspace", "json", "actor-id", "log-mode", "jwt-secret"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(deliverableCmd())
	rootCmd.AddCommand(approvalCmd())
	rootCmd.AddCommand(stageCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(notificationsCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- deliverables ---

func deliverableCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "deliverable", Aliases: []string{"d"}, Short: "Manage deliverables"}
	cmd.AddCommand(deliverableCreateCmd())
	cmd.AddCommand(deliverableListCmd())
	cmd.AddCommand(deliverableShowCmd())
	cmd.AddCommand(deliverableMoveCmd())
	cmd.AddCommand(deliverableUpdateCmd())
	cmd.AddCommand(deliverableBlockCmd())
	cmd.AddCommand(deliverableCommentCmd())
	cmd.AddCommand(deliverableVersionCmd())
	return cmd
}

func deliverableCreateCmd() *cobra.Command {
	var in engine.DeliverableInput
	var revisionLimit int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a deliverable",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("revision-limit") {
				in.RevisionLimit = &revisionLimit
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				d, err := e.CreateDeliverable(ctx, in, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Title, "title", "", "title")
	f.StringVar(&in.Platform, "platform", "", "instagram|tiktok|facebook|linkedin|youtube|x|email|blog|other")
	f.StringVar(&in.Format, "format", "", "static_post|carousel|story|reel|short|long_video|ad|email|landing_page|other")
	f.StringVar(&in.Goal, "goal", "", "engagement|lead_gen|retention|announcement|education|conversion|other")
	f.StringVar(&in.DueAt, "due", "", "due date (RFC3339)")
	f.StringVar(&in.Priority, "priority", "p2", "p0|p1|p2|p3")
	f.StringVar(&in.Complexity, "complexity", "m", "s|m|l")
	f.StringVar(&in.AssigneeID, "assignee", "", "assignee profile id")
	f.StringVar(&in.CampaignName, "campaign", "", "campaign name")
	f.StringVar(&in.Audience, "audience", "", "target audience")
	f.StringVar(&in.CTA, "cta", "", "call to action")
	f.StringVar(&in.CopyDirection, "copy-direction", "", "copy direction")
	f.StringSliceVar(&in.ComplianceFlags, "compliance", nil, "compliance flags")
	f.BoolVar(&in.RequiredDisclaimer, "disclaimer-required", false, "a disclaimer must be shown")
	f.StringVar(&in.DisclaimerText, "disclaimer", "", "disclaimer text")
	f.StringVar(&in.Hashtags, "hashtags", "", "hashtags")
	f.StringVar(&in.Notes, "notes", "", "notes")
	f.IntVar(&revisionLimit, "revision-limit", 0, "revision rounds before the requester is alerted")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("due")
	return cmd
}

func deliverableListCmd() *cobra.Command {
	var status, assignee, requester, dueBefore string
	var blocked bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deliverables",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := repo.DeliverableFilters{Status: status, AssigneeID: assignee, RequesterID: requester, Limit: limit}
			if cmd.Flags().Changed("blocked") {
				f.Blocked = &blocked
			}
			if dueBefore != "" {
				t, err := domain.ParseTime(dueBefore)
				if err != nil {
					return fmt.Errorf("--due-before: %w", err)
				}
				f.DueBefore = domain.FormatTime(t)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				e.SweepQuietly(ctx)
				items, err := e.ListDeliverables(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Assignee", "Due", "Blocked"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.ID, d.Title, d.Status, deref(d.AssigneeID), d.DueAt, d.Blocked})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "stage filter")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee filter")
	cmd.Flags().StringVar(&requester, "requester", "", "requester filter")
	cmd.Flags().StringVar(&dueBefore, "due-before", "", "only items due before this time")
	cmd.Flags().BoolVar(&blocked, "blocked", false, "blocked filter")
	cmd.Flags().IntVar(&limit, "limit", 100, "max rows")
	return cmd
}

func deliverableShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a deliverable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.GetDeliverable(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
}

func deliverableMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <stage>",
		Short: "Move a deliverable to another stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				d, err := e.ChangeStatus(ctx, args[0], args[1], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
}

func deliverableUpdateCmd() *cobra.Command {
	var title, platform, format, goal, due, priority, complexity, assignee, notes, hashtags, cta string
	var revisionLimit int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit deliverable fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p engine.DeliverablePatch
			set := func(name string, v *string) *string {
				if cmd.Flags().Changed(name) {
					return v
				}
				return nil
			}
			p.Title = set("title", &title)
			p.Platform = set("platform", &platform)
			p.Format = set("format", &format)
			p.Goal = set("goal", &goal)
			p.DueAt = set("due", &due)
			p.Priority = set("priority", &priority)
			p.Complexity = set("complexity", &complexity)
			p.AssigneeID = set("assignee", &assignee)
			p.Notes = set("notes", &notes)
			p.Hashtags = set("hashtags", &hashtags)
			p.CTA = set("cta", &cta)
			if cmd.Flags().Changed("revision-limit") {
				p.RevisionLimit = &revisionLimit
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				d, err := e.UpdateFields(ctx, args[0], p, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&title, "title", "", "title")
	f.StringVar(&platform, "platform", "", "platform")
	f.StringVar(&format, "format", "", "format")
	f.StringVar(&goal, "goal", "", "goal")
	f.StringVar(&due, "due", "", "due date (RFC3339)")
	f.StringVar(&priority, "priority", "", "priority")
	f.StringVar(&complexity, "complexity", "", "complexity")
	f.StringVar(&assignee, "assignee", "", "assignee profile id (empty unassigns)")
	f.StringVar(&notes, "notes", "", "notes")
	f.StringVar(&hashtags, "hashtags", "", "hashtags")
	f.StringVar(&cta, "cta", "", "call to action")
	f.IntVar(&revisionLimit, "revision-limit", 0, "revision limit")
	return cmd
}

func deliverableBlockCmd() *cobra.Command {
	var reason string
	var unblock bool
	cmd := &cobra.Command{
		Use:   "block <id>",
		Short: "Block (or --unblock) a deliverable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				d, err := e.SetBlocked(ctx, args[0], !unblock, reason, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the deliverable is blocked")
	cmd.Flags().BoolVar(&unblock, "unblock", false, "clear the block")
	return cmd
}

func deliverableCommentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "comment <id> <text>",
		Short: "Comment on a deliverable",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				c, err := e.AddComment(ctx, args[0], args[1], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func deliverableVersionCmd() *cobra.Command {
	var in engine.VersionInput
	cmd := &cobra.Command{
		Use:   "version <id>",
		Short: "Record a new asset version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				v, err := e.AddVersion(ctx, args[0], in, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	cmd.Flags().StringVar(&in.Type, "type", "copy", "copy|design|video|other")
	cmd.Flags().StringVar(&in.StoragePath, "path", "", "storage path")
	cmd.Flags().StringVar(&in.ExternalURL, "url", "", "external URL")
	cmd.Flags().StringVar(&in.SummaryNotes, "notes", "", "summary of the change")
	return cmd
}

// --- approvals ---

func approvalCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "approval", Short: "Request and decide approvals"}
	cmd.AddCommand(&cobra.Command{
		Use:   "request <deliverable-id>",
		Short: "Ask the approver to sign off",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				a, err := e.RequestApproval(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	})
	cmd.AddCommand(approvalDecideCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "queue",
		Short: "Pending approvals assigned to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				items, err := e.PendingApprovals(ctx, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "history <deliverable-id>",
		Short: "Approval history of a deliverable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Approvals(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	return cmd
}

func approvalDecideCmd() *cobra.Command {
	var notes string
	var changes bool
	cmd := &cobra.Command{
		Use:   "decide <approval-id>",
		Short: "Approve, or request changes with --changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decision := domain.ApprovalApproved
			if changes {
				decision = domain.ApprovalChangesRequested
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				a, err := e.DecideApproval(ctx, args[0], decision, notes, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "decision notes")
	cmd.Flags().BoolVar(&changes, "changes", false, "request changes instead of approving")
	return cmd
}

// --- stages ---

func stageCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "stage", Short: "Manage pipeline stages"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stages in board order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stages, err := e.ListStages(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stages)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "Stage", "WIP limit"})
				for _, s := range stages {
					tw.AppendRow(table.Row{s.OrderIndex, s.Name, wipLabel(s.WIPLimit)})
				}
				tw.Render()
				return nil
			})
		},
	})
	cmd.AddCommand(stageCreateCmd())
	cmd.AddCommand(stageSetWIPCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "reorder <name> <position>",
		Short: "Move a stage to another board position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pos int
			if _, err := fmt.Sscanf(args[1], "%d", &pos); err != nil {
				return fmt.Errorf("position must be a number: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				s, err := e.SetStageOrder(ctx, actor, args[0], pos)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an unused stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				return e.DeleteStage(ctx, actor, args[0])
			})
		},
	})
	return cmd
}

func stageCreateCmd() *cobra.Command {
	var position, wip int
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Add a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := engine.StageInput{Name: args[0]}
			if cmd.Flags().Changed("position") {
				in.OrderIndex = &position
			}
			if cmd.Flags().Changed("wip") {
				in.WIPLimit = &wip
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				s, err := e.CreateStage(ctx, actor, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().IntVar(&position, "position", 0, "board position (default: last)")
	cmd.Flags().IntVar(&wip, "wip", 0, "WIP limit")
	return cmd
}

func stageSetWIPCmd() *cobra.Command {
	var clearLimit bool
	cmd := &cobra.Command{
		Use:   "set-wip <name> [limit]",
		Short: "Set or clear (--clear) a stage's WIP limit",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var limit *int
			if !clearLimit {
				if len(args) != 2 {
					return errors.New("limit required unless --clear is given")
				}
				var n int
				if _, err := fmt.Sscanf(args[1], "%d", &n); err != nil {
					return fmt.Errorf("limit must be a number: %w", err)
				}
				limit = &n
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				s, err := e.SetWIPLimit(ctx, actor, args[0], limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().BoolVar(&clearLimit, "clear", false, "remove the limit")
	return cmd
}

// --- profiles ---

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "profile", Short: "Manage people and roles"}
	cmd.AddCommand(profileAddCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "set-role <id> <role>",
		Short: "Change a profile's role (admin only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				p, err := e.SetRole(ctx, actor, args[0], domain.Role(args[1]))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	})
	var role string
	list := &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProfiles(ctx, domain.Role(role))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	list.Flags().StringVar(&role, "role", "", "role filter")
	cmd.AddCommand(list)
	return cmd
}

func profileAddCmd() *cobra.Command {
	var p domain.Profile
	var role string
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Create or refresh a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p.ID = args[0]
			p.Role = domain.Role(role)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				saved, err := e.UpsertProfile(ctx, p)
				if err != nil {
					return err
				}
				return printJSONOrTable(saved)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", string(domain.RoleRequester), "requester|assignee|approver|admin")
	cmd.Flags().StringVar(&p.Email, "email", "", "email")
	cmd.Flags().StringVar(&p.FullName, "name", "", "full name")
	return cmd
}

// --- notifications ---

func notificationsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "notifications", Aliases: []string{"inbox"}, Short: "Your notifications"}
	var unread bool
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				e.SweepQuietly(ctx)
				items, err := e.Notifications(ctx, actor, unread, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Title", "Read", "Created"})
				for _, n := range items {
					tw.AppendRow(table.Row{n.ID, n.Type, n.Title, n.ReadAt != nil, n.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().BoolVar(&unread, "unread", false, "only unread")
	list.Flags().IntVar(&limit, "limit", 50, "max rows")
	cmd.AddCommand(list)
	cmd.AddCommand(&cobra.Command{
		Use:   "read <id>",
		Short: "Mark one notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				n, err := e.MarkRead(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(n)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification read",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				n, err := e.MarkAllRead(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int64{"updated": n})
			})
		},
	})
	return cmd
}

// --- board, log, sweep ---

func boardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Show the pipeline board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				e.SweepQuietly(ctx)
				cols, err := e.Board(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cols)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Stage", "Count", "WIP", "Items"})
				for _, c := range cols {
					titles := make([]string, 0, len(c.Items))
					for _, d := range c.Items {
						title := d.Title
						if d.Blocked {
							title += " (blocked)"
						}
						titles = append(titles, title)
					}
					wip := wipLabel(c.Stage.WIPLimit)
					if c.AtCap {
						wip += " FULL"
					}
					tw.AppendRow(table.Row{c.Stage.Name, c.Count, wip, strings.Join(titles, "\n")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log <deliverable-id>",
		Short: "Activity history of a deliverable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.ActivityLog(ctx, args[0], limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(entries)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "n", 200, "number of entries")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Notify owners of overdue deliverables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.SweepOverdue(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int{"notified": n})
			})
		},
	}
}

// --- config ---

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in contentline.yml in the workspace: pipeline stages seeded on first open, workflow statuses, overdue rules and the optional Redis feed.",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate contentline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default contentline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfg.AddCommand(initCmd)
	return cfg
}

// --- auth & server ---

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <profile-id>",
		Short: "Mint an API bearer token for a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := server.SignToken(viper.GetString("jwt-secret"), args[0], ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath, bootstrapAdmin string
	var legacyHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Sync()
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") && cfg.Server.Addr != "" {
				addr = cfg.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && cfg.Server.BasePath != "" {
				basePath = cfg.Server.BasePath
			}
			authCfg := server.AuthConfig{JWTSecret: viper.GetString("jwt-secret"), AllowLegacyActorHeader: legacyHeader}
			if authCfg.JWTSecret == "" && !legacyHeader {
				return errors.New("CONTENTLINE_JWT_SECRET is required for bearer auth")
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			a, err := app.Open(cmd.Context(), app.Options{
				Workspace:        workspace,
				Config:           cfg,
				Logger:           log,
				Metrics:          metrics.New(reg),
				BootstrapAdminID: bootstrapAdmin,
			})
			if err != nil {
				return err
			}
			defer a.Close()

			handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg, Logger: log, Gatherer: reg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info("serving contentline API", "addr", addr, "base_path", basePath, "docs", "/docs")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().StringVar(&bootstrapAdmin, "bootstrap-admin", "", "profile id made admin when the workspace has none")
	cmd.Flags().BoolVar(&legacyHeader, "allow-actor-header", false, "accept the unauthenticated X-Actor-Id header")
	return cmd
}

// --- helpers ---

func newLogger() (*logger.Logger, error) {
	return logger.New(viper.GetString("log-mode"))
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()
	a, err := app.Open(ctx, app.Options{Workspace: viper.GetString("workspace"), Logger: log})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

// currentActor resolves --actor-id to its profile; the role is never taken
// from the command line.
func currentActor(ctx context.Context, e engine.Engine) (domain.Actor, error) {
	id := strings.TrimSpace(viper.GetString("actor-id"))
	if id == "" {
		return domain.Actor{}, errors.New("--actor-id (or CONTENTLINE_ACTOR_ID) is required")
	}
	p, err := e.GetProfile(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Actor{}, fmt.Errorf("no profile %q; create one with 'cl profile add'", id)
	}
	if err != nil {
		return domain.Actor{}, err
	}
	return domain.Actor{ID: p.ID, Role: p.Role}, nil
}

func wipLabel(limit *int) string {
	if limit == nil || *limit <= 0 {
		return "-"
	}
	return fmt.Sprint(*limit)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
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
