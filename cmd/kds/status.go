package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/appetiteclub/appetite-client/internal/api"
	"github.com/appetiteclub/appetite-client/internal/order"
	"github.com/appetiteclub/appetite-client/pkg/enums/orderstatus"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var motive string

	cmd := &cobra.Command{
		Use:   "status <id> <estado>",
		Short: "Change the status of one order",
		Long:  "Moves an order to a new status. The transition is checked against your role before anything is sent; cancelling needs a motive of at least 10 characters.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, args[0], args[1], motive)
		},
	}

	cmd.Flags().StringVar(&motive, "motivo", "", "cancellation motive")
	return cmd
}

func parseStatusArgs(rawID, rawStatus string) (order.ID, orderstatus.Status, error) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", fmt.Errorf("%w: invalid order id %q", api.ErrInvalidInput, rawID)
	}
	target, ok := orderstatus.ByName(rawStatus)
	if !ok {
		return 0, "", fmt.Errorf("%w: unknown status %q", api.ErrInvalidInput, rawStatus)
	}
	return id, target, nil
}

func runStatus(cmd *cobra.Command, rawID, rawStatus, motive string) error {
	id, target, err := parseStatusArgs(rawID, rawStatus)
	if err != nil {
		return err
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	current, err := a.client.FindOrder(ctx, id, a.cfg.Queue.RecentHours)
	if err != nil {
		return err
	}
	if err := order.Check(a.cfg.Auth.Role, current.Status, target); err != nil {
		return err
	}
	if err := order.ValidateMotive(target, motive); err != nil {
		return err
	}

	updated, err := a.client.ChangeStatus(ctx, id, target, motive)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "order #%d: %s -> %s\n", updated.ID, current.Status.Label(), updated.Status.Label())
	return nil
}

func newListCmd() *cobra.Command {
	var p api.ListParams
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders, including closed ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				s, ok := orderstatus.ByName(status)
				if !ok {
					return fmt.Errorf("%w: unknown status %q", api.ErrInvalidInput, status)
				}
				p.Status = s
			}
			return runList(cmd, p)
		},
	}

	cmd.Flags().StringVar(&status, "estado", "", "only orders in this status")
	cmd.Flags().Int64Var(&p.Table, "mesa", 0, "only orders of this table")
	cmd.Flags().StringVar(&p.Search, "buscar", "", "free text search")
	cmd.Flags().StringVar(&p.Ordering, "ordering", "-fecha_creacion", "sort field, prefix with - for descending")
	cmd.Flags().IntVar(&p.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&p.PageSize, "page-size", 20, "orders per page")
	return cmd
}

func runList(cmd *cobra.Command, p api.ListParams) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	page, err := a.client.ListOrders(ctx, p)
	if err != nil {
		return err
	}
	renderPage(cmd, page)
	return nil
}

func renderPage(cmd *cobra.Command, page *api.Page) {
	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tTABLE\tSTATUS\tCREATED\tTOTAL")
	for _, o := range page.Results {
		fmt.Fprintf(tw, "#%d\t%d\t%s\t%s\t%s\n",
			o.ID, o.Table, o.Status.Label(), o.CreatedAt.Local().Format("02/01 15:04"), o.Total.StringFixed(2))
	}
	tw.Flush()

	fmt.Fprintf(out, "%d of %d orders", len(page.Results), page.Count)
	if page.HasNext() {
		fmt.Fprint(out, " (more with --page)")
	}
	fmt.Fprintln(out)
}
