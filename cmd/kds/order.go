package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/appetiteclub/appetite-client/internal/api"
	"github.com/appetiteclub/appetite-client/internal/intake"
	"github.com/appetiteclub/appetite-client/internal/order"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// cartFile is the YAML layout accepted by kds order.
//
//	table: 4
//	reservation: 17
//	notes: cumpleaños
//	items:
//	  - dish: 12
//	    name: Lomo saltado
//	    price: "12.50"
//	    quantity: 2
//	    notes: sin cebolla
type cartFile struct {
	Table       int64      `yaml:"table"`
	Reservation int64      `yaml:"reservation"`
	Notes       string     `yaml:"notes"`
	Items       []cartItem `yaml:"items"`
}

type cartItem struct {
	Dish     int64  `yaml:"dish"`
	Name     string `yaml:"name"`
	Price    string `yaml:"price"`
	Quantity int    `yaml:"quantity"`
	Notes    string `yaml:"notes"`
}

func newOrderCmd() *cobra.Command {
	var (
		file   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "order",
		Short: "Submit a new order from a cart file",
		Long:  "Reads a YAML cart (table, optional reservation, notes and items) and creates the order. Use - to read from stdin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrder(cmd, file, dryRun)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "cart file, - for stdin")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the cart and subtotal without submitting")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readCart(cmd *cobra.Command, path string) (*cartFile, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open cart: %w", err)
		}
		defer f.Close()
		r = f
	}

	var cart cartFile
	if err := yaml.NewDecoder(r).Decode(&cart); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: cart file is empty", api.ErrInvalidInput)
		}
		return nil, fmt.Errorf("%w: parse cart: %v", api.ErrInvalidInput, err)
	}
	return &cart, nil
}

// fill copies the cart into w. Prices are only used for the subtotal preview.
func (c *cartFile) fill(w *intake.Workflow) error {
	w.SelectTable(c.Table)
	w.LinkReservation(c.Reservation)
	w.SetNotes(c.Notes)

	cart := w.Cart()
	for i, it := range c.Items {
		if it.Dish <= 0 {
			return fmt.Errorf("%w: item %d has no dish id", api.ErrInvalidInput, i+1)
		}
		price := decimal.Zero
		if it.Price != "" {
			p, err := decimal.NewFromString(it.Price)
			if err != nil {
				return fmt.Errorf("%w: item %d price %q", api.ErrInvalidInput, i+1, it.Price)
			}
			price = p
		}

		cart.Add(intake.Dish{ID: it.Dish, Name: it.Name, Price: price})
		qty := it.Quantity
		if qty == 0 {
			qty = 1
		}
		cart.SetQuantity(it.Dish, cart.Quantity(it.Dish)-1+qty)
		if it.Notes != "" {
			cart.SetNotes(it.Dish, it.Notes)
		}
	}
	return nil
}

func runOrder(cmd *cobra.Command, path string, dryRun bool) error {
	cart, err := readCart(cmd, path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if dryRun {
		w, err := intake.NewWorkflow(intake.WorkflowOptions{Creator: noCreator{}})
		if err != nil {
			return err
		}
		if err := cart.fill(w); err != nil {
			return err
		}
		if _, err := w.Request(); err != nil {
			return err
		}
		printCart(out, w)
		return nil
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	w, err := intake.NewWorkflow(intake.WorkflowOptions{
		Creator: a.client,
		Logger:  a.logger,
		OnCreated: func(o order.Order) {
			fmt.Fprintf(out, "order #%d created for table %d (%s)\n", o.ID, o.Table, o.Status.Label())
		},
	})
	if err != nil {
		return err
	}
	if err := cart.fill(w); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	_, err = w.Submit(ctx)
	return err
}

func printCart(out io.Writer, w *intake.Workflow) {
	fmt.Fprintf(out, "table %d\n", w.Table())
	for _, l := range w.Cart().Lines() {
		fmt.Fprintf(out, "  %dx %s  %s", l.Quantity, l.Dish.Name, l.Total().StringFixed(2))
		if l.Notes != "" {
			fmt.Fprintf(out, "  (%s)", l.Notes)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "subtotal %s\n", w.Cart().Subtotal().StringFixed(2))
}

// noCreator backs dry runs, which never submit.
type noCreator struct{}

func (noCreator) CreateOrder(context.Context, api.CreateOrderRequest) (*order.Order, error) {
	return nil, errors.New("dry run")
}
