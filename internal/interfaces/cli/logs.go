package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/erp/shopsync/internal/domain/integration"
)

// recordFilter holds the filter flags shared by jobs list and logs
type recordFilter struct {
	instance  string
	entity    string
	direction string
	status    string
	limit     int
}

func (f *recordFilter) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.instance, "instance", "", "Only show this instance")
	flags.StringVar(&f.entity, "entity", "", "Only show this entity type")
	flags.StringVar(&f.direction, "direction", "", "Only show import or export")
	flags.StringVar(&f.status, "status", "", "Only show this status")
	flags.IntVar(&f.limit, "limit", 50, "Maximum number of rows")
}

func (f *recordFilter) parse() (instanceID *uuid.UUID, entity *integration.EntityType, direction *integration.Direction, err error) {
	if f.limit <= 0 {
		return nil, nil, nil, NewExitError(ExitCommandError, "--limit must be positive")
	}
	if f.instance != "" {
		id, err := parseID(f.instance, "instance")
		if err != nil {
			return nil, nil, nil, err
		}
		instanceID = &id
	}
	if f.entity != "" {
		e, err := integration.ParseEntityType(f.entity)
		if err != nil {
			return nil, nil, nil, WrapExitError(ExitCommandError, "invalid entity", err)
		}
		entity = &e
	}
	if f.direction != "" {
		d, err := integration.ParseDirection(f.direction)
		if err != nil {
			return nil, nil, nil, WrapExitError(ExitCommandError, "invalid direction", err)
		}
		direction = &d
	}
	return instanceID, entity, direction, nil
}

type logEntryView struct {
	ID            uuid.UUID `json:"id"`
	JobID         uuid.UUID `json:"job_id"`
	InstanceID    uuid.UUID `json:"instance_id"`
	Entity        string    `json:"entity"`
	Direction     string    `json:"direction"`
	LocalID       string    `json:"local_id,omitempty"`
	RemoteID      string    `json:"remote_id,omitempty"`
	NaturalKey    string    `json:"natural_key,omitempty"`
	Action        string    `json:"action"`
	Status        string    `json:"status"`
	ErrorCode     string    `json:"error_code,omitempty"`
	Message       string    `json:"message,omitempty"`
	ChangedFields []string  `json:"changed_fields,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func newLogEntryView(e *integration.SyncLogEntry) logEntryView {
	return logEntryView{
		ID:            e.ID,
		JobID:         e.JobID,
		InstanceID:    e.InstanceID,
		Entity:        string(e.Entity),
		Direction:     string(e.Direction),
		LocalID:       e.LocalID,
		RemoteID:      e.RemoteID,
		NaturalKey:    e.NaturalKey,
		Action:        string(e.Action),
		Status:        string(e.Status),
		ErrorCode:     e.ErrorCode,
		Message:       e.Message,
		ChangedFields: e.ChangedFields,
		CreatedAt:     e.CreatedAt,
	}
}

// NewLogsCommand creates the command that reads the sync log, newest first
func NewLogsCommand(opts *RootOptions) *cobra.Command {
	var f recordFilter
	var job string
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Read the sync log",
		Long: `Read the sync log, newest entries first.

Errored and skipped entries can be retried with 'shopsync sync retry <id>'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			instanceID, entity, direction, err := f.parse()
			if err != nil {
				return err
			}
			filter := integration.SyncLogFilter{
				InstanceID: instanceID,
				Entity:     entity,
				Direction:  direction,
				Page:       1,
				PageSize:   f.limit,
			}
			if job != "" {
				id, err := parseID(job, "job")
				if err != nil {
					return err
				}
				filter.JobID = &id
			}
			if f.status != "" {
				status := integration.LogStatus(f.status)
				if !status.IsValid() {
					return NewExitError(ExitCommandError, fmt.Sprintf("invalid status %q", f.status))
				}
				filter.Status = &status
			}
			if since > 0 {
				from := time.Now().Add(-since)
				filter.From = &from
			}

			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				entries, total, err := s.Repos.Log.List(ctx, filter)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read sync log", err)
				}
				views := make([]logEntryView, 0, len(entries))
				rows := make([][]string, 0, len(entries))
				for i := range entries {
					v := newLogEntryView(&entries[i])
					views = append(views, v)
					detail := v.Message
					if len(v.ChangedFields) > 0 {
						detail = strings.Join(v.ChangedFields, ",")
					}
					rows = append(rows, []string{
						v.CreatedAt.Format(time.RFC3339), v.ID.String(), v.Entity, v.Direction,
						v.Action, v.Status, v.NaturalKey, detail,
					})
				}
				return s.out.Render(map[string]any{"entries": views, "total": total}, func(w io.Writer) {
					table(w, []string{"TIME", "ENTRY", "ENTITY", "DIRECTION", "ACTION", "STATUS", "KEY", "DETAIL"}, rows)
					if total > int64(len(views)) {
						writeLine(w, "(%d of %d entries)", len(views), total)
					}
				})
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&job, "job", "", "Only show entries of this job")
	cmd.Flags().DurationVar(&since, "since", 0, "Only show entries newer than this, e.g. 24h")
	return cmd
}

// NewJobsCommand creates the jobs command group
func NewJobsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"job"},
		Short:   "Inspect sync jobs",
	}

	var f recordFilter
	list := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			instanceID, entity, direction, err := f.parse()
			if err != nil {
				return err
			}
			filter := integration.JobFilter{
				InstanceID: instanceID,
				Entity:     entity,
				Direction:  direction,
				Page:       1,
				PageSize:   f.limit,
			}
			if f.status != "" {
				status := integration.JobStatus(f.status)
				if !status.IsValid() {
					return NewExitError(ExitCommandError, fmt.Sprintf("invalid status %q", f.status))
				}
				filter.Status = &status
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				jobs, total, err := s.Repos.Jobs.FindAll(ctx, filter)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list jobs", err)
				}
				views := make([]jobView, 0, len(jobs))
				rows := make([][]string, 0, len(jobs))
				for i := range jobs {
					v := newJobView(&jobs[i])
					views = append(views, v)
					rows = append(rows, v.row())
				}
				return s.out.Render(map[string]any{"jobs": views, "total": total}, func(w io.Writer) {
					table(w, jobHeader, rows)
				})
			})
		},
	}
	f.bind(list)

	show := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "job")
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				job, err := s.Repos.Jobs.FindByID(ctx, id)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to get job", err)
				}
				v := newJobView(job)
				return s.out.Render(v, func(w io.Writer) { writeJob(w, v) })
			})
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}
