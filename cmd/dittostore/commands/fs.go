package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/marmos91/dittostore/pkg/store"
	"github.com/spf13/cobra"
)

func newLsCmd(a *app) *cobra.Command {
	var listArgs store.OpList
	var long bool

	cmd := &cobra.Command{
		Use:   "ls [dir]",
		Short: "List a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := a.operator(cmd)
			if err != nil {
				return err
			}

			dir := "/"
			if len(args) == 1 {
				dir = asDir(args[0])
			}

			ctx := cmd.Context()
			l, err := op.Lister(ctx, dir, listArgs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for {
				entry, err := l.Next(ctx)
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				if long {
					fmt.Fprintf(out, "%-4s %12d %s\n", entry.Metadata.Mode, entry.Metadata.ContentLength, entry.Path)
				} else {
					fmt.Fprintln(out, entry.Path)
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&listArgs.Recursive, "recursive", "r", false, "list every file below the directory")
	cmd.Flags().IntVar(&listArgs.Limit, "limit", 0, "page size hint for the backend")
	cmd.Flags().StringVar(&listArgs.StartAfter, "start-after", "", "only list paths sorting after this one")
	cmd.Flags().BoolVarP(&long, "long", "l", false, "print mode and size")

	return cmd
}

// asDir appends the trailing slash that marks a directory path.
func asDir(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

func newRmCmd(a *app) *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "rm <path>...",
		Short: "Delete files, or whole directories with -r",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := a.operator(cmd)
			if err != nil {
				return err
			}

			for _, p := range args {
				if recursive {
					err = op.RemoveAll(cmd.Context(), p)
				} else {
					err = op.Delete(cmd.Context(), p)
				}
				if err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "delete the path and everything below it")

	return cmd
}

func newCpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cp <from> <to>",
		Short: "Copy a file within the service",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := a.operator(cmd)
			if err != nil {
				return err
			}
			return op.Copy(cmd.Context(), args[0], args[1])
		},
	}
}

func newMvCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mv <from> <to>",
		Short: "Rename a file within the service",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := a.operator(cmd)
			if err != nil {
				return err
			}
			return op.Rename(cmd.Context(), args[0], args[1])
		},
	}
}

func newMkdirCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <dir>...",
		Short: "Create directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := a.operator(cmd)
			if err != nil {
				return err
			}
			for _, p := range args {
				if err := op.CreateDir(cmd.Context(), asDir(p)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
