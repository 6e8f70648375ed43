package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"taskflow/client"
	"taskflow/dashboard"
	"taskflow/domain"
)

const (
	dueDateLayout = "2006-01-02"
	paramRemote   = "remote"
)

// errNotified marks failures the board already reported as a notification.
var errNotified = errors.New("operation failed")

func newRemote(ctx *cli.Context) (*client.Client, error) {
	token := ctx.String(paramToken)
	if token == "" {
		return nil, errors.New("no token: pass --token or set TASKFLOW_TOKEN")
	}
	session, err := client.NewTokenSession(token)
	if err != nil {
		return nil, errors.Wrap(err, "invalid token")
	}
	remote := client.New(ctx.String(paramServer), session)
	log.Debugf("using %s as %s", remote.BaseURL, session.UserID())
	return remote, nil
}

func newBoard(ctx *cli.Context) (*dashboard.Board, error) {
	remote, err := newRemote(ctx)
	if err != nil {
		return nil, err
	}
	return dashboard.New(remote, remote.Session, dashboard.LogNotifier{Logger: log.StandardLogger()}), nil
}

func fetchedBoard(ctx *cli.Context) (*dashboard.Board, error) {
	board, err := newBoard(ctx)
	if err != nil {
		return nil, err
	}
	if err := board.Fetch(ctx.Context); err != nil {
		return nil, errNotified
	}
	return board, nil
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "list tasks, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "search", Aliases: []string{"q"}, Usage: "match title or description"},
			&cli.StringFlag{Name: "status", Value: domain.FilterAll, Usage: "pending, in_progress, completed or all"},
			&cli.StringFlag{Name: "priority", Value: domain.FilterAll, Usage: "low, medium, high or all"},
		},
		Action: func(ctx *cli.Context) error {
			filter := domain.Filter{
				Search:   ctx.String("search"),
				Status:   ctx.String("status"),
				Priority: ctx.String("priority"),
			}
			if err := filter.Validate(); err != nil {
				return err
			}
			board, err := fetchedBoard(ctx)
			if err != nil {
				return err
			}
			return printTasks(ctx.App.Writer, board.View(filter))
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "show task counts per status",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: paramRemote, Usage: "let the server count instead of counting the fetched list"},
		},
		Action: func(ctx *cli.Context) error {
			var s domain.Stats
			if ctx.Bool(paramRemote) {
				remote, err := newRemote(ctx)
				if err != nil {
					return err
				}
				if s, err = remote.Stats(ctx.Context); err != nil {
					return errors.Wrap(err, "fetch stats")
				}
			} else {
				board, err := fetchedBoard(ctx)
				if err != nil {
					return err
				}
				s = board.Stats()
			}
			_, err := fmt.Fprintf(ctx.App.Writer, "total: %d\npending: %d\nin progress: %d\ncompleted: %d\n",
				s.Total, s.Pending, s.InProgress, s.Completed)
			return err
		},
	}
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "create a task",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Required: true},
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}},
			&cli.StringFlag{Name: "priority", Aliases: []string{"p"}, Value: string(domain.PriorityMedium)},
			&cli.StringFlag{Name: "status", Value: string(domain.StatusPending)},
			&cli.StringFlag{Name: "due", Usage: "due date as YYYY-MM-DD"},
		},
		Action: func(ctx *cli.Context) error {
			draft := domain.TaskDraft{
				Title:    ctx.String("title"),
				Status:   domain.Status(ctx.String("status")),
				Priority: domain.Priority(ctx.String("priority")),
			}
			if ctx.IsSet("description") {
				d := ctx.String("description")
				draft.Description = &d
			}
			due, err := parseDue(ctx.String("due"))
			if err != nil {
				return err
			}
			draft.DueDate = due
			if err := draft.Normalize().Validate(); err != nil {
				return err
			}

			board, err := newBoard(ctx)
			if err != nil {
				return err
			}
			task, err := board.Create(ctx.Context, draft)
			if err != nil {
				return errNotified
			}
			return printTasks(ctx.App.Writer, []domain.Task{task})
		},
	}
}

func editCommand() *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "change fields of a task",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}},
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}},
			&cli.StringFlag{Name: "priority", Aliases: []string{"p"}},
			&cli.StringFlag{Name: "status"},
			&cli.StringFlag{Name: "due", Usage: "due date as YYYY-MM-DD"},
			&cli.BoolFlag{Name: "clear-description"},
			&cli.BoolFlag{Name: "clear-due"},
		},
		Action: func(ctx *cli.Context) error {
			id, err := taskID(ctx)
			if err != nil {
				return err
			}
			patch, err := patchFromFlags(ctx)
			if err != nil {
				return err
			}
			if err := patch.Validate(); err != nil {
				return err
			}

			board, err := newBoard(ctx)
			if err != nil {
				return err
			}
			task, err := board.Update(ctx.Context, id, patch)
			if err != nil {
				return errNotified
			}
			return printTasks(ctx.App.Writer, []domain.Task{task})
		},
	}
}

func patchFromFlags(ctx *cli.Context) (domain.TaskPatch, error) {
	var patch domain.TaskPatch
	if ctx.IsSet("title") {
		v := ctx.String("title")
		patch.Title = &v
	}
	if ctx.IsSet("description") {
		v := ctx.String("description")
		patch.Description = &v
	}
	if ctx.IsSet("priority") {
		v := domain.Priority(ctx.String("priority"))
		patch.Priority = &v
	}
	if ctx.IsSet("status") {
		v := domain.Status(ctx.String("status"))
		patch.Status = &v
	}
	if ctx.IsSet("due") {
		due, err := parseDue(ctx.String("due"))
		if err != nil {
			return patch, err
		}
		patch.DueDate = due
	}
	patch.ClearDescription = ctx.Bool("clear-description")
	patch.ClearDueDate = ctx.Bool("clear-due")
	return patch, nil
}

func advanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "advance",
		Usage:     "move a task to its next status (pending, in progress, completed, pending)",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: paramRemote, Usage: "advance from the stored status without fetching the list first"},
		},
		Action: func(ctx *cli.Context) error {
			id, err := taskID(ctx)
			if err != nil {
				return err
			}
			var task domain.Task
			if ctx.Bool(paramRemote) {
				board, berr := newBoard(ctx)
				if berr != nil {
					return berr
				}
				task, err = board.AdvanceOnServer(ctx.Context, id)
			} else {
				board, berr := fetchedBoard(ctx)
				if berr != nil {
					return berr
				}
				task, err = board.Advance(ctx.Context, id)
			}
			if err != nil {
				return errNotified
			}
			return printTasks(ctx.App.Writer, []domain.Task{task})
		},
	}
}

func removeCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Aliases:   []string{"delete"},
		Usage:     "delete a task permanently",
		ArgsUsage: "<id>",
		Action: func(ctx *cli.Context) error {
			id, err := taskID(ctx)
			if err != nil {
				return err
			}
			board, err := newBoard(ctx)
			if err != nil {
				return err
			}
			if err := board.Delete(ctx.Context, id); err != nil {
				return errNotified
			}
			return nil
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "sign a development token for a server running in test mode",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "secret", EnvVars: []string{"TASKFLOW_AUTH_TEST_SECRET"}, Required: true},
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Required: true},
			&cli.DurationFlag{Name: "ttl", Value: time.Hour},
		},
		Action: func(ctx *cli.Context) error {
			token, err := client.SignTestToken(ctx.String("secret"), ctx.String("user"), ctx.Duration("ttl"))
			if err != nil {
				return errors.WithStack(err)
			}
			_, err = fmt.Fprintln(ctx.App.Writer, token)
			return err
		},
	}
}

func taskID(ctx *cli.Context) (string, error) {
	id := strings.TrimSpace(ctx.Args().First())
	if id == "" || ctx.NArg() != 1 {
		return "", errors.New("expected exactly one task id")
	}
	return id, nil
}

func parseDue(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dueDateLayout, raw)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid due date %q", raw)
	}
	return &t, nil
}

func printTasks(w io.Writer, tasks []domain.Task) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tPRIORITY\tDUE")
	for _, t := range tasks {
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Format(dueDateLayout)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Title, t.Status, t.Priority, due)
	}
	return tw.Flush()
}
