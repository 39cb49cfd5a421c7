package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"vfs-go/internal/cms"
)

const timeFormat = "2006-01-02 15:04:05"

// PrintPublishResult writes a short summary of a publish run.
func PrintPublishResult(w io.Writer, r *cms.PublishResult) {
	fmt.Fprintf(w, "version %d: %d new, %d changed, %d deleted",
		r.VersionID, len(r.New), len(r.Changed), len(r.Deleted))
	if len(r.Failed) > 0 {
		fmt.Fprintf(w, ", %s", Error(fmt.Sprintf("%d failed", len(r.Failed))))
	}
	fmt.Fprintf(w, " [%s]\n", r.Status())
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  %s %s (%s): %v\n", Error("!"), f.Path, f.State, f.Err)
	}
}

// PrintPending lists what a dry-run publish would promote.
func PrintPending(w io.Writer, d *cms.DirectPublishResult) {
	if len(d.Pending) == 0 {
		fmt.Fprintln(w, "nothing to publish")
	}
	for _, r := range d.Pending {
		fmt.Fprintf(w, "%s %s\n", StateMarker(r.State), r.Name)
	}
	PrintBrokenLinks(w, d.BrokenLinks)
}

// PrintBrokenLinks lists links that would dangle online.
func PrintBrokenLinks(w io.Writer, links []cms.BrokenLink) {
	for _, l := range links {
		fmt.Fprintf(w, "%s %s -> %s\n", Error("broken link:"), l.Source, l.Target)
	}
}

// PrintPublishHistory writes one row per publish run, newest first.
func PrintPublishHistory(w io.Writer, records []*cms.PublishRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tPROJECT\tSTARTED\tNEW\tCHANGED\tDELETED\tFAILED\tSTATUS")
	for _, rec := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			rec.VersionID, rec.ProjectName, formatTime(rec.StartedAt),
			rec.NewCount, rec.ChangedCount, rec.DeletedCount, rec.FailedCount, rec.Status)
	}
	return tw.Flush()
}

// PrintVersions writes the backup versions of one resource.
func PrintVersions(w io.Writer, versions []*cms.BackupResource) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tPUBLISHED\tSTATE\tSIZE\tMODIFIED BY")
	for _, b := range versions {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n",
			b.VersionID, formatTime(b.PublishedAt), b.State, b.Size, b.LastModifiedByName)
	}
	return tw.Flush()
}

// PrintProjects writes one row per project.
func PrintProjects(w io.Writer, projects []*cms.Project, current int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, " \tID\tNAME\tTYPE\tFLAGS\tRESOURCES")
	for _, p := range projects {
		mark := " "
		if p.ID == current {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", mark, p.ID, p.Name, p.Type, p.Flags, strings.Join(p.Resources, ","))
	}
	return tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeFormat)
}
