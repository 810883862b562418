package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"priorityforge/backend"
	"priorityforge/internal/utils"
	"priorityforge/internal/views"
)

// listEntry is one task in structured list output.
type listEntry struct {
	backend.Task `yaml:",inline"`
	Pending      bool   `json:"pending,omitempty" yaml:"pending,omitempty"`
	DueLabel     string `json:"due_label,omitempty" yaml:"due_label,omitempty"`
}

func parseTaskID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, utils.WrapWithSuggestion(
			fmt.Errorf("invalid task id %q", arg),
			"Task ids are the numbers shown after # in 'priorityforge list'",
		)
	}
	return id, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newListCmd(c *cli) *cobra.Command {
	var (
		history bool
		sortKey string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Long: `List open tasks, or completed ones with --history.

Sort keys: difficulty (default), urgency, due_date, none (manual order).

Examples:
  priorityforge list
  priorityforge list --history
  priorityforge list --sort urgency -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := utils.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			e, err := c.open(cmd.Context())
			if err != nil {
				return err
			}

			store := e.Store()
			if history {
				store.SetView(backend.ViewHistory)
			} else {
				store.SetView(backend.ViewActive)
			}
			if sortKey != "" {
				k, err := backend.ParseSortKey(sortKey)
				if err != nil {
					return err
				}
				store.SetSortKey(k)
			}

			items := e.Projector().Items()
			out := cmd.OutOrStdout()
			if format != utils.FormatText {
				entries := make([]listEntry, len(items))
				for i, item := range items {
					entries[i] = listEntry{Task: item.Task, Pending: item.Pending, DueLabel: item.DueLabel}
				}
				return utils.WriteStructured(out, format, entries)
			}

			r := views.Renderer{Colorize: isTerminal(out), Width: utils.TerminalWidth(0)}
			return r.RenderList(out, items)
		},
	}

	cmd.Flags().BoolVar(&history, "history", false, "Show completed tasks")
	cmd.Flags().StringVar(&sortKey, "sort", "", "Sort key: difficulty, urgency, due_date, none")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json, yaml")

	return cmd
}

// taskFlags are the field flags shared by add and edit.
type taskFlags struct {
	description string
	urgency     int
	difficulty  int
	due         string
	in          int
}

func (f *taskFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.description, "description", "", "Task description")
	cmd.Flags().IntVarP(&f.urgency, "urgency", "u", 3, "Urgency from 1 to 5")
	cmd.Flags().IntVarP(&f.difficulty, "difficulty", "d", 3, "Difficulty from 1 to 5")
	cmd.Flags().StringVar(&f.due, "due", "", "Due date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.in, "in", 0, "Due in this many days (overrides --due)")
	cmd.MarkFlagsMutuallyExclusive("due", "in")
}

func newAddCmd(c *cli) *cobra.Command {
	var flags taskFlags

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Long: `Create a task. Its priority is computed from urgency, difficulty and the
due date.

Examples:
  priorityforge add "Renew passport" -u 5 -d 2 --due 2026-04-01
  priorityforge add "Clean garage" --in 7 --description "before the move"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			draft := backend.TaskDraft{
				Title:       strings.Join(args, " "),
				Description: flags.description,
				Urgency:     flags.urgency,
				Difficulty:  flags.difficulty,
			}
			due, err := utils.ParseDateFlag(flags.due)
			if err != nil {
				return err
			}
			draft.DueDate = due
			if cmd.Flags().Changed("in") {
				days := flags.in
				draft.DaysUntilDue = &days
			}

			e, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			task, err := e.Coordinator().Create(cmd.Context(), draft)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task #%d %q (priority %.1f, %s)\n",
				task.ID, task.Title, task.Priority, e.Store().Source())
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newEditCmd(c *cli) *cobra.Command {
	var (
		flags    taskFlags
		title    string
		clearDue bool
	)

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a task",
		Long: `Change the given fields of a task. Only flags that are set are applied;
changing urgency, difficulty or the due date recomputes the priority.

Examples:
  priorityforge edit 1742 --title "Renew passport and ID"
  priorityforge edit 1742 -u 2 --clear-due`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}

			var patch backend.TaskPatch
			fs := cmd.Flags()
			if fs.Changed("title") {
				patch.Title = &title
			}
			if fs.Changed("description") {
				patch.Description = &flags.description
			}
			if fs.Changed("urgency") {
				patch.Urgency = &flags.urgency
			}
			if fs.Changed("difficulty") {
				patch.Difficulty = &flags.difficulty
			}
			if fs.Changed("due") {
				due, err := utils.ParseDateFlag(flags.due)
				if err != nil {
					return err
				}
				if due == nil {
					patch.ClearDueDate = true
				} else {
					patch.DueDate = due
				}
			}
			if fs.Changed("in") {
				patch.DaysUntilDue = &flags.in
			}
			if clearDue {
				patch.ClearDueDate = true
			}
			if !fs.Changed("title") && !fs.Changed("description") && !patch.TouchesPriority() {
				return utils.WrapWithSuggestion(errors.New("nothing to change"),
					"Pass at least one of --title, --description, -u, -d, --due, --in, --clear-due")
			}

			e, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			task, err := e.Coordinator().Update(cmd.Context(), id, patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated task #%d %q (priority %.1f)\n", task.ID, task.Title, task.Priority)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "Remove the due date")
	cmd.MarkFlagsMutuallyExclusive("clear-due", "due")
	cmd.MarkFlagsMutuallyExclusive("clear-due", "in")
	return cmd
}

func newDoneCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Toggle a task's completion",
		Long: `Toggle a task between done and not done. The change is committed after a
short delay; press Ctrl+C before then to undo it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e, err := c.open(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			res, err := e.Toggle(id)
			if err != nil {
				return err
			}
			state := "done"
			if !res.Intended {
				state = "not done"
			}
			fmt.Fprintf(out, "Marking #%d %s in %v. Press Ctrl+C to undo.\n", id, state, e.Scheduler().Delay())

			if err := e.WaitSettled(ctx, id); err != nil {
				if errors.Is(err, context.Canceled) && e.Scheduler().Cancel(id) {
					fmt.Fprintln(out, "Undone.")
					return nil
				}
				return err
			}

			task, ok := e.Store().Task(id)
			if !ok || task.Completed != res.Intended {
				if msg := e.Store().LastError(); msg != "" {
					return errors.New(msg)
				}
				return fmt.Errorf("task #%d was not updated", id)
			}
			fmt.Fprintf(out, "Task #%d marked %s.\n", id, state)
			return nil
		},
	}
	return cmd
}

func newDeleteCmd(c *cli) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			e, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			task, ok := e.Store().Task(id)
			if !ok {
				return utils.ErrTaskNotFound(id)
			}

			// Confirm deletion unless --force
			if !force && !utils.PromptYesNo(fmt.Sprintf("Delete task #%d %q?", id, task.Title)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Deletion cancelled.")
				return nil
			}

			if err := e.Coordinator().Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task #%d deleted.\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")
	return cmd
}

func newReprioritizeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reprioritize",
		Short: "Recompute every task's priority for today",
		Long: `Recompute priorities against today's date and store the ones that changed.
The interactive list does this automatically at midnight.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			n, err := e.Coordinator().Reprioritize(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %d task(s).\n", n)
			return err
		},
	}
}
