package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/portal-api/internal/backend"
	"github.com/jwalitptl/portal-api/internal/config"
	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/internal/service/appointment"
	"github.com/jwalitptl/portal-api/pkg/logger"
)

type cliFlags struct {
	doctorID   string
	token      string
	backendURL string
	bucket     string
}

func appointmentsCmd(configPath *string) *cobra.Command {
	flags := &cliFlags{}

	cmd := &cobra.Command{
		Use:   "appointments",
		Short: "Inspect and update a doctor's appointments from the terminal",
	}
	cmd.PersistentFlags().StringVar(&flags.doctorID, "doctor", "", "Doctor id")
	cmd.PersistentFlags().StringVar(&flags.token, "token", "", "Bearer token (defaults to $PORTAL_TOKEN)")
	cmd.PersistentFlags().StringVar(&flags.backendURL, "backend-url", "", "Backend base URL (overrides config)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Load the appointments once and print them by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			vm, err := loadView(cmd.Context(), *configPath, flags)
			if err != nil {
				return err
			}
			return printBuckets(cmd.OutOrStdout(), vm.Buckets(), flags.bucket)
		},
	}
	listCmd.Flags().StringVar(&flags.bucket, "bucket", model.BucketAll, "Bucket to print: pending, approved, rejected, completed, other or all")
	cmd.AddCommand(listCmd)

	var patient string
	setCmd := &cobra.Command{
		Use:   "set-status <appointment-id> <STATUS>",
		Short: "Approve, reject or complete one appointment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid appointment id %q", args[0])
			}

			vm, err := loadView(cmd.Context(), *configPath, flags)
			if err != nil {
				return err
			}
			defer vm.Close()

			n, err := vm.RequestTransition(cmd.Context(), id, args[1], patient)
			printNotification(cmd.OutOrStdout(), n)
			return err
		},
	}
	setCmd.Flags().StringVar(&patient, "patient", "", "Patient name used in the notification")
	cmd.AddCommand(setCmd)

	return cmd
}

func loadView(ctx context.Context, configPath string, flags *cliFlags) (*appointment.ViewModel, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	baseURL := cfg.Backend.BaseURL
	if flags.backendURL != "" {
		baseURL = flags.backendURL
	}
	token := flags.token
	if token == "" {
		token = os.Getenv("PORTAL_TOKEN")
	}

	l := logger.NewLogger(&logger.Config{Level: logger.ParseLevel(cfg.Log.Level), Output: os.Stderr})
	client, err := backend.NewClient(baseURL, backend.WithTimeout(cfg.Backend.Timeout), backend.WithLogger(l))
	if err != nil {
		return nil, err
	}

	f, err := appointment.NewFormatter(cfg.Appointments.Locale, cfg.Appointments.Timezone)
	if err != nil {
		return nil, err
	}
	mode, err := appointment.ParseUnknownStatusMode(cfg.Appointments.UnknownStatus)
	if err != nil {
		return nil, err
	}

	vm := appointment.NewViewModel(model.Session{
		ID:       "cli",
		DoctorID: flags.doctorID,
		Token:    token,
	}, client,
		appointment.WithFormatter(f),
		appointment.WithUnknownStatusMode(mode),
		appointment.WithViewLogger(l),
	)
	if err := vm.Load(ctx); err != nil {
		return nil, err
	}
	return vm, nil
}

func bucketRows(b model.Buckets, name string) ([]model.AppointmentRow, error) {
	switch strings.ToLower(name) {
	case model.BucketPending:
		return b.Pending, nil
	case model.BucketApproved:
		return b.Approved, nil
	case model.BucketRejected:
		return b.Rejected, nil
	case model.BucketCompleted:
		return b.Completed, nil
	case model.BucketOther:
		if b.Other == nil {
			return nil, errors.New("the other bucket is only kept when appointments.unknown_status is other")
		}
		return b.Other, nil
	case "", model.BucketAll:
		return b.All, nil
	}
	return nil, fmt.Errorf("unknown bucket %q", name)
}

func printBuckets(out io.Writer, b model.Buckets, bucket string) error {
	rows, err := bucketRows(b, bucket)
	if err != nil {
		return err
	}

	labels := make([]string, 0, 6)
	for _, tab := range b.Tabs() {
		labels = append(labels, tab.Label)
	}
	fmt.Fprintln(out, strings.Join(labels, "  "))
	fmt.Fprintln(out)

	if len(rows) == 0 {
		if bucket == "" {
			bucket = model.BucketAll
		}
		fmt.Fprintln(out, model.EmptyCaption(strings.ToLower(bucket)))
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPATIENT\tAGE\tGENDER\tDATE\tTIME\tREASON\tSTATUS\tACTIONS")
	for _, r := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Patient, r.Age, r.Gender, r.Date, r.Time, r.Reason, r.Status, actionList(r.Actions))
	}
	return w.Flush()
}

func actionList(a model.RowActions) string {
	var names []string
	if a.Approve {
		names = append(names, "approve")
	}
	if a.Reject {
		names = append(names, "reject")
	}
	if a.Complete {
		names = append(names, "complete")
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}

func printNotification(out io.Writer, n model.Notification) {
	if n.Title == "" {
		return
	}
	fmt.Fprintf(out, "[%s] %s: %s\n", n.Variant, n.Title, n.Description)
}
