package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"governance-api/domain"
	"governance-api/workspace"
)

var errNotSyncReady = errors.New("workspace is not ready to sync")

// fixture is an import dry-run: rows as ingestion would return them, plus
// optional decision overrides.
type fixture struct {
	EventID string       `yaml:"eventId"`
	Rows    []fixtureRow `yaml:"rows"`
}

type fixtureRow struct {
	domain.CandidateRow `yaml:",inline"`
	Decision            string `yaml:"decision,omitempty"`
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <rows.yaml>",
		Short: "Evaluate import rows and report whether they could be synced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return runCheck(f, cmd.OutOrStdout())
		},
	}
}

func loadFixture(r io.Reader) (*workspace.Workspace, error) {
	var fx fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}

	rows := make([]domain.CandidateRow, len(fx.Rows))
	for i, r := range fx.Rows {
		rows[i] = r.CandidateRow
	}
	ws := workspace.New(fx.EventID, "govctl", rows)
	for i, r := range fx.Rows {
		if r.Decision == "" {
			continue
		}
		d, err := domain.ParseDecision(r.Decision)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if err := ws.SetDecision(i, d); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return ws, nil
}

// runCheck prints one line per row and the summary. It returns
// errNotSyncReady when the rows could not be committed as they are.
func runCheck(r io.Reader, w io.Writer) error {
	ws, err := loadFixture(r)
	if err != nil {
		return err
	}
	ev := ws.Evaluate()
	rows := ws.Rows()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tTITLE\tDECISION\tSTATUS")
	for i, st := range ev.Rows {
		title := rows[i].Title
		if title == "" {
			title = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", st.Position, title, st.Decision, st.Label)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := ev.Summary
	fmt.Fprintf(w, "\ntotal=%d append=%d update=%d skip=%d\n", s.Total, s.Append, s.Update, s.Skip)
	if workspace.NeedsConfirmation(workspace.BuildBatch(ws)) {
		fmt.Fprintln(w, "updates overwrite existing tasks and need confirmation")
	}
	if !ev.SyncReady {
		fmt.Fprintln(w, "sync ready: no")
		return errNotSyncReady
	}
	fmt.Fprintln(w, "sync ready: yes")
	return nil
}
