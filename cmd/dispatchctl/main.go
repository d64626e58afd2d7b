package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shivam13669/CRMManagementt-sub003/internal/api/middleware"
	"github.com/shivam13669/CRMManagementt-sub003/internal/application/services"
	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
	"github.com/shivam13669/CRMManagementt-sub003/internal/infrastructure/clients/dispatchapi"
)

type globalFlags struct {
	api     string
	token   string
	timeout time.Duration
}

func main() {
	_ = godotenv.Load()

	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "dispatchctl",
		Short:         "Inspect and forward ambulance requests",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.api, "api", envOr("DISPATCH_API_URL", "http://localhost:3000/api"), "Dispatch backend base URL")
	rootCmd.PersistentFlags().StringVar(&flags.token, "token", os.Getenv("DISPATCH_TOKEN"), "Session token of the acting operator")
	rootCmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", 15*time.Second, "Per call timeout")

	rootCmd.AddCommand(viewCmd(flags))
	rootCmd.AddCommand(forwardCmd(flags))

	if err := rootCmd.Execute(); err != nil {
		logger().Error().Err(err).Msg("dispatchctl failed")
		os.Exit(1)
	}
}

func viewCmd(flags *globalFlags) *cobra.Command {
	var criteria services.Criteria
	var page int

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Print one page of the dispatch list",
		RunE: func(cmd *cobra.Command, args []string) error {
			coordinator, err := newSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			if err := coordinator.SetCriteria(criteria); err != nil {
				return err
			}
			if err := coordinator.SetPage(page); err != nil {
				return err
			}

			view := coordinator.View(cmd.Context())
			if view.Banner != "" {
				fmt.Fprintln(os.Stderr, view.Banner)
			}
			printView(view)
			return nil
		},
	}
	cmd.Flags().StringVar((*string)(&criteria.Tab), "tab", string(services.TabAll), "all or unread")
	cmd.Flags().StringVar(&criteria.Status, "status", services.FilterAll, "Status filter")
	cmd.Flags().StringVar(&criteria.Priority, "priority", services.FilterAll, "Priority filter")
	cmd.Flags().StringVar(&criteria.Search, "search", "", "Match patient name, emergency type, id or pickup")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	return cmd
}

func forwardCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "forward <request-id> <hospital-id>",
		Short: "Forward a pending request to a hospital",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			requestID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid request id %q", args[0])
			}
			hospitalID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid hospital id %q", args[1])
			}

			coordinator, err := newSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			if _, err := coordinator.Select(cmd.Context(), requestID); err != nil {
				return err
			}
			req, err := coordinator.Forward(cmd.Context(), hospitalID)
			if err != nil {
				return err
			}

			logger().Info().
				Int64("request_id", req.ID).
				Int64("hospital_id", hospitalID).
				Str("status", string(req.Status)).
				Msg("request forwarded")
			return nil
		},
	}
}

// newSession builds a one-shot coordinator for the token's actor and loads the list
func newSession(ctx context.Context, flags *globalFlags) (*services.DispatchCoordinator, error) {
	if flags.token == "" {
		return nil, fmt.Errorf("--token or DISPATCH_TOKEN is required")
	}
	// The backend checks the signature; the CLI only needs the claims.
	actor, err := middleware.ActorFromToken(middleware.AuthOptions{AllowUnverified: true}, flags.token)
	if err != nil {
		return nil, fmt.Errorf("read session token: %w", err)
	}

	client := dispatchapi.NewClient(flags.api, flags.timeout, nil)
	coordinator := services.NewDispatchCoordinator(actor, client, client, nil, services.CoordinatorOptions{
		ForwardTimeout: flags.timeout,
	})
	if err := coordinator.Refresh(ctx); err != nil {
		return nil, err
	}
	return coordinator, nil
}

func printView(view services.ViewModel) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tTYPE\tPATIENT\tPICKUP\tREAD\tCREATED")
	for _, req := range view.Items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			req.ID,
			req.Status,
			req.Priority,
			req.EmergencyType,
			req.Patient.Name,
			view.Addresses[req.ID].Display,
			readMark(req),
			req.CreatedAt.Local().Format("02 Jan 15:04"),
		)
	}
	w.Flush()
	fmt.Printf("page %d of %d (%d requests)\n", view.Page, view.TotalPages, view.Total)
}

func readMark(req entities.DispatchRequest) string {
	if req.IsRead {
		return "yes"
	}
	return "no"
}

func logger() *zerolog.Logger {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	return &l
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
