package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/erp/shopsync/internal/domain/integration"
)

type jobView struct {
	ID         uuid.UUID  `json:"id"`
	InstanceID uuid.UUID  `json:"instance_id"`
	Entity     string     `json:"entity"`
	Direction  string     `json:"direction"`
	Kind       string     `json:"kind"`
	Trigger    string     `json:"trigger"`
	Status     string     `json:"status"`
	Created    int        `json:"created"`
	Updated    int        `json:"updated"`
	Unchanged  int        `json:"unchanged"`
	Skipped    int        `json:"skipped"`
	Errored    int        `json:"errored"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMS int64      `json:"duration_ms"`
}

func newJobView(j *integration.SyncJob) jobView {
	return jobView{
		ID:         j.ID,
		InstanceID: j.InstanceID,
		Entity:     string(j.Entity),
		Direction:  string(j.Direction),
		Kind:       string(j.Kind),
		Trigger:    string(j.Trigger),
		Status:     string(j.Status),
		Created:    j.Created,
		Updated:    j.Updated,
		Unchanged:  j.Unchanged,
		Skipped:    j.Skipped,
		Errored:    j.Errored,
		Error:      j.ErrorMessage,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
		DurationMS: j.Duration().Milliseconds(),
	}
}

func (v jobView) row() []string {
	return []string{
		v.ID.String(), v.Entity, v.Direction, v.Status,
		strconv.Itoa(v.Created), strconv.Itoa(v.Updated), strconv.Itoa(v.Unchanged),
		strconv.Itoa(v.Skipped), strconv.Itoa(v.Errored),
	}
}

var jobHeader = []string{"JOB", "ENTITY", "DIRECTION", "STATUS", "CREATED", "UPDATED", "UNCHANGED", "SKIPPED", "ERRORED"}

func writeJob(w io.Writer, v jobView) {
	writeLine(w, "Job %s: %s %s %s", v.ID, v.Entity, v.Direction, v.Status)
	writeLine(w, "  created=%d updated=%d unchanged=%d skipped=%d errored=%d (%s)",
		v.Created, v.Updated, v.Unchanged, v.Skipped, v.Errored, time.Duration(v.DurationMS)*time.Millisecond)
	if v.Error != "" {
		writeLine(w, "  error: %s", v.Error)
	}
}

// jobOutcome maps a finished job to the command result. A failed job exits
// with ExitFailure; partial jobs succeed and point at the sync log.
func jobOutcome(job *integration.SyncJob, err error) error {
	if err != nil {
		if job == nil {
			return WrapExitError(ExitFailure, "sync did not start", err)
		}
		return WrapExitError(ExitFailure, fmt.Sprintf("job %s failed", job.ID), err)
	}
	if job.Status == integration.JobStatusFailed {
		return NewExitError(ExitFailure, fmt.Sprintf("job %s failed: %s", job.ID, job.ErrorMessage))
	}
	return nil
}

// NewSyncCommand creates the sync command group. Passes run in this process
// and hold the same per-entity lock as passes started by the server, so they
// serialize with it when the lock backend is shared.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run synchronization passes",
	}
	cmd.AddCommand(
		newSyncPassCommand(opts, integration.DirectionImport),
		newSyncPassCommand(opts, integration.DirectionExport),
		newSyncPipelineCommand(opts),
		newSyncRetryCommand(opts),
		newSyncCancelCommand(opts),
	)
	return cmd
}

func newSyncPassCommand(opts *RootOptions, direction integration.Direction) *cobra.Command {
	return &cobra.Command{
		Use:   string(direction) + " <instance-id> <entity>",
		Short: fmt.Sprintf("Run a full %s pass for one entity type", direction),
		Long: fmt.Sprintf(`Run a full %s pass for one entity type and print the job summary.

Entity types: product, collection, customer, order, inventory, price_rule.
Price rules are import only.`, direction),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "instance")
			if err != nil {
				return err
			}
			entity, err := integration.ParseEntityType(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid entity", err)
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				s.out.VerboseLog("Running %s %s for instance %s", entity, direction, id)
				job, err := s.Engine.Run(ctx, integration.SyncRequest{
					InstanceID: id,
					Entity:     entity,
					Direction:  direction,
					Trigger:    integration.TriggerManual,
				})
				if job != nil {
					v := newJobView(job)
					if renderErr := s.out.Render(v, func(w io.Writer) { writeJob(w, v) }); renderErr != nil {
						return renderErr
					}
				}
				return jobOutcome(job, err)
			})
		},
	}
}

func newSyncPipelineCommand(opts *RootOptions) *cobra.Command {
	var directionFlag string
	cmd := &cobra.Command{
		Use:   "all <instance-id>",
		Short: "Run every entity type in dependency order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "instance")
			if err != nil {
				return err
			}
			direction, err := integration.ParseDirection(directionFlag)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid direction", err)
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				plan, err := s.Engine.Plan(ctx, id, direction)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to plan pipeline", err)
				}
				views := make([]jobView, 0, len(plan))
				var failure error
				for _, req := range plan {
					req.Trigger = integration.TriggerManual
					job, err := s.Engine.Run(ctx, req)
					if job != nil {
						views = append(views, newJobView(job))
					}
					if failure = jobOutcome(job, err); failure != nil {
						// later entity types depend on this one
						break
					}
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, v.row())
				}
				if err := s.out.Render(views, func(w io.Writer) {
					if len(plan) == 0 {
						writeLine(w, "Nothing to run: export is disabled for this instance")
						return
					}
					table(w, jobHeader, rows)
				}); err != nil {
					return err
				}
				return failure
			})
		},
	}
	cmd.Flags().StringVar(&directionFlag, "direction", string(integration.DirectionImport), "import or export")
	return cmd
}

func newSyncRetryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <log-entry-id>",
		Short: "Re-sync the record of an errored or skipped log entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "log entry")
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				job, err := s.Engine.RetryEntry(ctx, id)
				if errors.Is(err, integration.ErrLogEntryNotRetryable) {
					return WrapExitError(ExitCommandError, "entry cannot be retried", err)
				}
				if job != nil {
					v := newJobView(job)
					if renderErr := s.out.Render(v, func(w io.Writer) { writeJob(w, v) }); renderErr != nil {
						return renderErr
					}
				}
				return jobOutcome(job, err)
			})
		},
	}
}

func newSyncCancelCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Ask a pending or running job to stop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "job")
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				job, err := s.Engine.Cancel(ctx, id)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to cancel job", err)
				}
				v := newJobView(job)
				return s.out.Render(v, func(w io.Writer) {
					writeLine(w, "Job %s is %s", v.ID, v.Status)
				})
			})
		},
	}
}
