package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/debemdeboas/scratchpad/internal/model"
	"github.com/debemdeboas/scratchpad/internal/repository"
)

func newImportCmd(a *app) *cobra.Command {
	var path string
	var mode string

	cmd := &cobra.Command{
		Use:   "import --path <dir>",
		Short: "Load every .md file of a directory into the configured store",
		Long: `Load every .md file of a directory into the configured store. The document id is
the file name without its extension; files whose name is not a valid id get a random one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			writeMode, err := model.ParseWriteMode(mode)
			if err != nil {
				return err
			}

			files, err := os.ReadDir(path)
			if err != nil {
				return fmt.Errorf("error reading directory %s: %w", path, err)
			}

			ctx := cmd.Context()
			store, err := repository.Open(ctx, a.cfg.Storage)
			if err != nil {
				return fmt.Errorf("error opening %s store: %w", a.cfg.Storage.Backend, err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			imported := 0
			for _, file := range files {
				if file.IsDir() || !strings.HasSuffix(file.Name(), ".md") {
					continue
				}

				content, err := os.ReadFile(filepath.Join(path, file.Name()))
				if err != nil {
					a.logger.Error().Err(err).Str("file", file.Name()).Msg("Error reading file")
					continue
				}

				id := model.DocumentID(strings.TrimSuffix(file.Name(), ".md"))
				if id.Validate() != nil {
					id = model.DocumentID(uuid.NewString())
				}

				doc, err := store.Put(ctx, id, content, writeMode)
				if err != nil {
					a.logger.Error().Err(err).Str("file", file.Name()).Msg("Error importing file")
					continue
				}
				imported++
				fmt.Fprintf(out, "%s -> %s (version %d)\n", file.Name(), doc.ID, doc.Version)
			}

			fmt.Fprintln(out, statusStyle.Render(fmt.Sprintf("Imported %d documents", imported)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "directory containing .md files")
	cmd.Flags().StringVar(&mode, "mode", string(model.WriteReplace), "write mode: replace or append")
	cmd.MarkFlagRequired("path")
	return cmd
}
