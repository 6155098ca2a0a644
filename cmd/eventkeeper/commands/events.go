/*
Copyright (c) 2025 Mike Lane

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package commands

import (
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/mikelane/eventkeeper/internal/event"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect tracked events",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked events and their deletion deadlines",
	Long: `List the records in the configured state store without connecting to Discord.

Examples:
  eventkeeper events list
  eventkeeper events list --store-path /var/lib/eventkeeper/events.json`,
	Args: cobra.NoArgs,
	RunE: runEventsList,
}

func init() {
	eventsCmd.AddCommand(eventsListCmd)
}

func runEventsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	policy, err := newPolicy(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, closeStore, err := newStore(ctx, cfg, policy)
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := st.Load(ctx)
	if err != nil {
		return err
	}

	printRecords(cmd.OutOrStdout(), records, policy.Format, policy.Now())
	return nil
}

// printRecords writes records as a table sorted by id. The state column
// shows whether the next sweep deletes the record.
func printRecords(w io.Writer, records map[string]event.Record, format func(time.Time) string, now time.Time) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Guild", "Channel", "Start", "Delete After", "End", "State"})

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, id := range sets.List(sets.KeySet(records)) {
		rec := records[id]
		channel := rec.ChannelID.String()
		if channel == "" {
			channel = "-"
		}
		table.Append([]string{
			id,
			rec.GuildID.String(),
			channel,
			formatTimestamp(rec.StartTime, format),
			formatTimestamp(rec.DeleteAfter, format),
			formatTimestamp(rec.EndTime, format),
			recordState(rec, now),
		})
	}

	table.Render()
}

func formatTimestamp(ts event.Timestamp, format func(time.Time) string) string {
	if ts.IsZero() {
		return "-"
	}
	if t, ok := ts.Time(); ok {
		return format(t)
	}
	return ts.Raw()
}

func recordState(rec event.Record, now time.Time) string {
	for _, ts := range []event.Timestamp{rec.StartTime, rec.DeleteAfter, rec.EndTime} {
		if !ts.IsZero() && !ts.Valid() {
			return "malformed"
		}
	}
	if deleteAfter, ok := rec.DeleteAfter.Time(); ok && !deleteAfter.After(now) {
		return "due"
	}
	return "pending"
}
