package main

import (
	"errors"
	"fmt"

	"shelfdesk/internal/domain"
	"shelfdesk/internal/middleware"
	"shelfdesk/internal/service"
	"shelfdesk/internal/transport"
	"shelfdesk/internal/view"

	"github.com/spf13/cobra"
)

func (c *cli) listCmd() *cobra.Command {
	var query view.Query
	var sortKey string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products, optionally filtered and sorted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := view.ParseSortKey(sortKey)
			if err != nil {
				return err
			}
			query.Sort = key
			return c.print(view.Compose(c.app.Catalog.Products(), query))
		},
	}
	cmd.Flags().StringVarP(&query.Search, "search", "s", "", "Match title, brand or description")
	cmd.Flags().StringVarP(&query.Category, "category", "c", "", "Exact category")
	cmd.Flags().StringVar(&sortKey, "sort", "", "price-asc, price-desc, name-asc, name-desc, rating or stock")
	return cmd
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			product, ok := c.app.Catalog.GetProductByID(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", service.ErrProductNotFound, args[0])
			}
			return c.print(product)
		},
	}
}

func (c *cli) searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search title, brand, category and description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.print(c.app.Catalog.SearchProducts(args[0]))
		},
	}
}

func (c *cli) categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories [category]",
		Short: "List categories, or the products of one category",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return c.print(c.app.Catalog.FilterByCategory(args[0]))
			}
			return c.print(c.app.Catalog.Categories())
		},
	}
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show inventory totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.print(c.app.Catalog.Stats())
		},
	}
}

func (c *cli) stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show product count and last fetch time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.print(newStateView(c.app.Catalog.State()))
		},
	}
}

func (c *cli) fetchCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Load the remote catalog when the local one is empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Catalog.FetchProducts(cmd.Context(), force); err != nil {
				return err
			}
			return c.print(newStateView(c.app.Catalog.State()))
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Reload even when products are stored")
	return cmd
}

func (c *cli) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Replace the local catalog with the remote one, discarding local edits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Catalog.ResetToAPI(cmd.Context()); err != nil {
				return err
			}
			return c.print(newStateView(c.app.Catalog.State()))
		},
	}
}

// productFlags binds the product form to flags; only flags that were set count on edit
type productFlags struct {
	title, description, price, stock, brand, category, thumbnail string
}

func (f *productFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "Title (at least 3 characters)")
	cmd.Flags().StringVar(&f.description, "description", "", "Description (at least 10 characters)")
	cmd.Flags().StringVar(&f.price, "price", "", "Price")
	cmd.Flags().StringVar(&f.stock, "stock", "", "Units in stock")
	cmd.Flags().StringVar(&f.brand, "brand", "", "Brand")
	cmd.Flags().StringVar(&f.category, "category", "", "Category")
	cmd.Flags().StringVar(&f.thumbnail, "thumbnail", "", "Thumbnail URL")
}

func (c *cli) addCmd() *cobra.Command {
	var f productFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a local product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := transport.ProductRequest{
				Title:       f.title,
				Description: f.description,
				Price:       domain.NumberOf(f.price),
				Stock:       domain.NumberOf(f.stock),
				Brand:       f.brand,
				Category:    f.category,
				Thumbnail:   f.thumbnail,
			}
			if err := validate(req); err != nil {
				return err
			}
			product, err := c.app.Catalog.AddProduct(cmd.Context(), req.Fields())
			if err != nil {
				return err
			}
			return c.print(product)
		},
	}
	f.bind(cmd)
	return cmd
}

func (c *cli) editCmd() *cobra.Command {
	var f productFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit the given fields of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := func(name string, value *string) *string {
				if cmd.Flags().Changed(name) {
					return value
				}
				return nil
			}
			req := transport.ProductPatchRequest{
				Title:       changed("title", &f.title),
				Description: changed("description", &f.description),
				Brand:       changed("brand", &f.brand),
				Category:    changed("category", &f.category),
				Thumbnail:   changed("thumbnail", &f.thumbnail),
			}
			if cmd.Flags().Changed("price") {
				req.Price = domain.NumberOf(f.price)
			}
			if cmd.Flags().Changed("stock") {
				req.Stock = domain.NumberOf(f.stock)
			}
			if err := validate(req); err != nil {
				return err
			}

			product, err := c.app.Catalog.UpdateProduct(cmd.Context(), args[0], req.Fields())
			if err != nil {
				if errors.Is(err, service.ErrProductNotFound) {
					return fmt.Errorf("%w: %s", err, args[0])
				}
				return err
			}
			return c.print(product)
		},
	}
	f.bind(cmd)
	return cmd
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Catalog.DeleteProduct(cmd.Context(), args[0])
		},
	}
}

func (c *cli) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every local product and the stored snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Catalog.Clear(cmd.Context())
		},
	}
}

// validate applies the same form rules as the HTTP API
func validate(req any) error {
	err := middleware.ValidateRequest(req)
	if err == nil {
		return nil
	}
	fieldErrs := middleware.FormatValidationErrors(err)
	if len(fieldErrs) == 0 {
		return err
	}
	msg := "invalid product:"
	for _, fe := range fieldErrs {
		msg += fmt.Sprintf(" %s: %s;", fe.Field, fe.Message)
	}
	return errors.New(msg[:len(msg)-1])
}
