package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"monitor/collector"
	"monitor/query"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

type OutputFormat string

const (
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
	OutputYAML  OutputFormat = "yaml"
)

type OutputOptions struct {
	Format OutputFormat
	Writer io.Writer
}

func NewOutputOptions() *OutputOptions {
	return &OutputOptions{
		Format: OutputTable,
		Writer: os.Stdout,
	}
}

// PrintOutput renders data in the selected format.
func PrintOutput(data any, opts *OutputOptions) error {
	out, err := FormatOutput(data, opts.Format)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(opts.Writer, strings.TrimRight(out, "\n"))
	return err
}

func FormatOutput(data any, format OutputFormat) (string, error) {
	switch format {
	case OutputJSON:
		b, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal JSON: %w", err)
		}
		return string(b), nil
	case OutputYAML:
		b, err := yaml.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("marshal YAML: %w", err)
		}
		return string(b), nil
	case OutputTable, "":
		return formatTable(data), nil
	default:
		return "", fmt.Errorf("unknown output format %q", format)
	}
}

func formatTable(data any) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	switch v := data.(type) {
	case []collector.Snapshot:
		if len(v) == 0 {
			return "No items"
		}
		fmt.Fprintln(w, "ID\tTIMESTAMP\tCPU%\tMEM%\tDISKS\tNET SENT\tNET RECV")
		for _, s := range v {
			fmt.Fprintf(w, "%d\t%s\t%.2f\t%.2f\t%d\t%d\t%d\n",
				s.ID, s.Timestamp.Local().Format(time.DateTime), s.CPUPercent, s.MemoryPercent,
				len(s.DiskUsage), s.NetworkSent, s.NetworkRecv)
		}
	case *collector.Snapshot:
		writeSnapshot(w, v)
	case *query.Summary:
		fmt.Fprintf(w, "time range\t%dh\n", v.TimeRangeHours)
		fmt.Fprintf(w, "samples\t%d\n", v.TotalSamples)
		fmt.Fprintln(w, "\tAVG\tMAX\tMIN")
		fmt.Fprintf(w, "cpu %%\t%.2f\t%.2f\t%.2f\n", v.CPU.Average, v.CPU.Maximum, v.CPU.Minimum)
		fmt.Fprintf(w, "memory %%\t%.2f\t%.2f\t%.2f\n", v.Memory.Average, v.Memory.Maximum, v.Memory.Minimum)
	case *collector.SystemInfo:
		fmt.Fprintf(w, "platform\t%s\n", v.Platform)
		fmt.Fprintf(w, "release\t%s\n", v.PlatformRelease)
		fmt.Fprintf(w, "version\t%s\n", v.PlatformVersion)
		fmt.Fprintf(w, "architecture\t%s\n", v.Architecture)
		fmt.Fprintf(w, "processor\t%s\n", v.Processor)
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%s\n", k, v[k])
		}
	default:
		fmt.Fprintf(w, "%v\n", v)
	}

	w.Flush()
	return sb.String()
}

func writeSnapshot(w io.Writer, s *collector.Snapshot) {
	fmt.Fprintf(w, "id\t%d\n", s.ID)
	fmt.Fprintf(w, "timestamp\t%s\n", s.Timestamp.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "cpu\t%.2f%%\n", s.CPUPercent)
	fmt.Fprintf(w, "memory\t%.2f%% (%s used, %s available, %s total)\n", s.MemoryPercent,
		humanize.IBytes(s.MemoryUsed), humanize.IBytes(s.MemoryAvailable), humanize.IBytes(s.MemoryTotal))
	fmt.Fprintf(w, "network\t%s sent, %s received\n", humanize.IBytes(s.NetworkSent), humanize.IBytes(s.NetworkRecv))

	devices := make([]string, 0, len(s.DiskUsage))
	for dev := range s.DiskUsage {
		devices = append(devices, dev)
	}
	sort.Strings(devices)
	for _, dev := range devices {
		d := s.DiskUsage[dev]
		fmt.Fprintf(w, "disk %s\t%s %s %.2f%% (%s / %s)\n", dev, d.Mountpoint, d.FSType, d.Percent,
			humanize.IBytes(d.Used), humanize.IBytes(d.Total))
	}
}
