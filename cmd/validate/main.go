package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/fateweaver/pkg/content"
)

// fileReport is the result for one content file
type fileReport struct {
	Path           string                `json:"path"`
	Error          string                `json:"error,omitempty"`
	MissingScenes  []content.MissingLink `json:"missing_scenes,omitempty"`
	MissingEndings []content.MissingLink `json:"missing_endings,omitempty"`
}

func (r fileReport) ok() bool {
	return r.Error == "" && len(r.MissingScenes) == 0 && len(r.MissingEndings) == 0
}

func main() {
	var asJSON bool

	rootCmd := &cobra.Command{
		Use:   "validate [files...]",
		Short: "Check story content files for broken scene and ending links",
		Long: `Loads each story content file (JSON or YAML) and lists every choice
target, successor scene and ending that the file references but never defines.

Exits with status 1 when any file fails to load or has missing links.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			reports := validateFiles(args)

			var err error
			if asJSON {
				err = writeJSON(cmd.OutOrStdout(), reports)
			} else {
				writeText(cmd.OutOrStdout(), reports)
			}
			if err != nil {
				return err
			}

			for _, r := range reports {
				if !r.ok() {
					os.Exit(1)
				}
			}
			return nil
		},
	}
	rootCmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func validateFiles(paths []string) []fileReport {
	reports := make([]fileReport, 0, len(paths))
	for _, path := range paths {
		r := fileReport{Path: path}
		t, err := content.Load(path)
		if err != nil {
			r.Error = err.Error()
		} else {
			r.MissingScenes = content.Validate(t)
			r.MissingEndings = content.MissingEndings(t)
		}
		reports = append(reports, r)
	}
	return reports
}

func writeText(w io.Writer, reports []fileReport) {
	for _, r := range reports {
		_, _ = fmt.Fprintf(w, "Validating %s...\n", r.Path)
		if r.Error != "" {
			_, _ = fmt.Fprintf(w, "  Error: %s\n", r.Error)
			continue
		}

		if len(r.MissingScenes) == 0 {
			_, _ = fmt.Fprintln(w, "  No missing scenes found.")
		} else {
			_, _ = fmt.Fprintf(w, "  Missing scenes (%d):\n", len(r.MissingScenes))
			for _, m := range r.MissingScenes {
				_, _ = fmt.Fprintf(w, "    %s\n", m)
			}
		}
		if len(r.MissingEndings) > 0 {
			_, _ = fmt.Fprintf(w, "  Missing endings (%d):\n", len(r.MissingEndings))
			for _, m := range r.MissingEndings {
				_, _ = fmt.Fprintf(w, "    %s\n", m)
			}
		}
	}
}

func writeJSON(w io.Writer, reports []fileReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(reports)
}
