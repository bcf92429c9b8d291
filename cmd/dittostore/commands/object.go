package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/marmos91/dittostore/pkg/executor"
	"github.com/marmos91/dittostore/pkg/store"
	"github.com/spf13/cobra"
)

func newStatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>...",
		Short: "Print the metadata of one or more paths",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := a.operator(cmd)
			if err != nil {
				return err
			}

			// Every path is looked up concurrently on the executor.
			blocking := op.Blocking().WithContext(cmd.Context())
			tasks := make([]*executor.Task[store.Metadata], len(args))
			for i, p := range args {
				tasks[i] = blocking.StatStart(p)
			}

			var errs []error
			for i, task := range tasks {
				meta, err := task.Await()
				if err != nil {
					errs = append(errs, err)
					continue
				}
				printMetadata(cmd.OutOrStdout(), args[i], meta)
			}
			return errors.Join(errs...)
		},
	}
}

func printMetadata(w io.Writer, path string, meta store.Metadata) {
	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "mode: %s\n", meta.Mode)
	if meta.IsFile() {
		fmt.Fprintf(w, "content_length: %d\n", meta.ContentLength)
	}
	if meta.HasLastModified() {
		fmt.Fprintf(w, "last_modified: %s\n", meta.LastModified.UTC().Format(time.RFC3339))
	}
	if meta.ETag != "" {
		fmt.Fprintf(w, "etag: %s\n", meta.ETag)
	}
	if meta.Version != "" {
		fmt.Fprintf(w, "version: %s\n", meta.Version)
	}
	if meta.ContentType != "" {
		fmt.Fprintf(w, "content_type: %s\n", meta.ContentType)
	}
}

func newCatCmd(a *app) *cobra.Command {
	var (
		offset  uint64
		length  int64
		version string
	)

	cmd := &cobra.Command{
		Use:   "cat <path>",
		Short: "Write the content of a file to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := a.operator(cmd)
			if err != nil {
				return err
			}

			r, err := op.Reader(cmd.Context(), args[0], store.OpRead{
				Range:   store.NewRange(offset, length),
				Version: version,
			})
			if err != nil {
				return err
			}
			defer r.Close()

			_, err = io.Copy(cmd.OutOrStdout(), r)
			return err
		},
	}

	cmd.Flags().Uint64Var(&offset, "offset", 0, "first byte to read")
	cmd.Flags().Int64Var(&length, "length", -1, "number of bytes to read (-1 reads to the end)")
	cmd.Flags().StringVar(&version, "version", "", "object version to read")

	return cmd
}

func newPutCmd(a *app) *cobra.Command {
	var (
		args      store.OpWrite
		chunkSize int
	)

	cmd := &cobra.Command{
		Use:   "put <path> [file]",
		Short: "Upload a local file (or stdin) to a path",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			op, err := a.operator(cmd)
			if err != nil {
				return err
			}

			src := cmd.InOrStdin()
			if len(posArgs) == 2 && posArgs[1] != "-" {
				f, err := os.Open(posArgs[1])
				if err != nil {
					return err
				}
				defer f.Close()
				src = f
			}

			ctx := cmd.Context()
			w, err := op.Writer(ctx, posArgs[0], args)
			if err != nil {
				return err
			}

			buf := make([]byte, chunkSize)
			for {
				n, rerr := io.ReadFull(src, buf)
				if n > 0 {
					if err := w.Write(ctx, buf[:n]); err != nil {
						_ = w.Abort(ctx)
						return err
					}
				}
				if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
					break
				}
				if rerr != nil {
					_ = w.Abort(ctx)
					return rerr
				}
			}

			meta, err := w.Close(ctx)
			if err != nil {
				return err
			}
			printMetadata(cmd.OutOrStdout(), posArgs[0], meta)
			return nil
		},
	}

	cmd.Flags().BoolVar(&args.Append, "append", false, "append to the file instead of replacing it")
	cmd.Flags().IntVar(&args.Chunk, "chunk", 0, "multipart part size in bytes (0 writes in one shot)")
	cmd.Flags().IntVar(&args.Concurrent, "concurrent", 0, "parts uploaded in parallel")
	cmd.Flags().StringVar(&args.ContentType, "content-type", "", "content type to store")
	cmd.Flags().BoolVar(&args.IfNotExists, "if-not-exists", false, "fail if the path already exists")
	cmd.Flags().IntVar(&chunkSize, "buffer", 1<<20, "bytes read from the source per write call")

	return cmd
}
