package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"wedding-rsvp/internal/backup"
	"wedding-rsvp/internal/export"
	"wedding-rsvp/internal/importer"
	"wedding-rsvp/internal/logging"
	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/whatsapp"
)

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import guests from a CSV, XLSX or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			sheet, err := importer.ParseUpload(data, filepath.Base(args[0]))
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := importer.NewReconciler(a.store, logging.Component(a.log, "import")).ImportSheet(cmd.Context(), sheet)
			if err != nil {
				return err
			}
			printImport(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func printImport(out io.Writer, res *importer.Result) {
	fmt.Fprintf(out, "%s %d imported\n", color.GreenString("✔"), res.Counts.Imported)
	fmt.Fprintf(out, "%s %d duplicates\n", color.YellowString("•"), res.Counts.Duplicates)
	for _, e := range res.Duplicates {
		fmt.Fprintf(out, "    line %d %s: %s\n", e.Line, e.Name, e.Reason)
	}
	fmt.Fprintf(out, "%s %d errors\n", color.RedString("✘"), res.Counts.Errors)
	for _, e := range res.Errors {
		fmt.Fprintf(out, "    line %d: %s\n", e.Line, e.Reason)
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export guests and their responses as CSV (\"-\" for stdout)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := export.Filename(time.Now())
			if len(args) == 1 {
				name = args[0]
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var buf bytes.Buffer
			n, err := export.Guests(cmd.Context(), a.store, &buf)
			if err != nil {
				return err
			}
			if name == "-" {
				_, err = buf.WriteTo(cmd.OutOrStdout())
				return err
			}
			if err := os.WriteFile(name, buf.Bytes(), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d guests written to %s (%s)\n",
				color.GreenString("✔"), n, name, humanize.Bytes(uint64(buf.Len())))
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print response statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func printStats(out io.Writer, st *models.Stats) {
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(out, "%s %s\n", bold("Guests:"), humanize.Comma(int64(st.TotalGuests)))
	fmt.Fprintf(out, "%s %d emails, %d SMS, %d WhatsApp\n", bold("Sent:"), st.EmailsSent, st.SMSSent, st.WhatsAppSent)
	fmt.Fprintf(out, "%s %d (%d messages, %d public forms)\n", bold("Responses:"),
		st.ResponsesReceived, st.MessagesReceived, st.PublicResponses)
	if st.LastResponseAt != nil {
		fmt.Fprintf(out, "%s %s\n", bold("Last response:"), humanize.Time(*st.LastResponseAt))
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%-24s %8s %10s %9s %7s\n", "EVENT", "INVITED", "ATTENDING", "DECLINED", "PEOPLE")
	for _, e := range models.Events {
		es := st.Events[e.Key()]
		fmt.Fprintf(out, "%-24s %8d %10s %9s %7d\n", e.Label(), es.Invited,
			color.GreenString("%10d", es.Attending), color.RedString("%9d", es.Declined), es.Headcount)
	}
}

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Upload a database snapshot to S3 and prune old ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			client, err := backup.NewClient(cmd.Context(), a.cfg.Backup)
			if err != nil {
				return err
			}
			res, err := backup.NewRunner(a.store, client, a.cfg.Backup, logging.Component(a.log, "backup")).Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s uploaded %s (%s), %d old snapshots deleted\n",
				color.GreenString("✔"), res.Key, humanize.Bytes(uint64(res.Size)), len(res.Deleted))
			return nil
		},
	}
}

func whatsappLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whatsapp-login",
		Short: "Pair the WhatsApp account by scanning a QR code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := whatsapp.NewService(cmd.Context(),
				whatsapp.Config{DataDir: a.cfg.WhatsAppDataDir, CountryCode: a.cfg.PhoneCountryCode},
				logging.Component(a.log, "WhatsApp"))
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.Login(cmd.Context(), cmd.OutOrStdout()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("✔ WhatsApp paired, restart serve with WHATSAPP_ENABLED=true"))
			return nil
		},
	}
}
