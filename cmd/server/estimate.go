package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/u4rad/campcost/internal/campapi"
	"github.com/u4rad/campcost/internal/pricing"
)

func estimateCommand() *cli.Command {
	return &cli.Command{
		Name:  "estimate",
		Usage: "Price services with the volume-tiered rules against a running API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api",
				Usage:   "Base URL of the camp API",
				EnvVars: []string{"API_BASE_URL"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Bearer token",
				EnvVars: []string{"CAMPCOST_TOKEN"},
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Usage:   "Per-request timeout",
				EnvVars: []string{"CATALOG_TIMEOUT"},
			},
			&cli.StringSliceFlag{
				Name:    "service",
				Aliases: []string{"s"},
				Usage:   "Service to price (repeatable)",
			},
			&cli.StringFlag{
				Name:  "company-id",
				Usage: "Also price the packages stored as this company's service selection",
			},
			&cli.IntFlag{
				Name:  "days",
				Value: 1,
				Usage: "Number of camp days",
			},
			&cli.IntFlag{
				Name:  "cases-per-day",
				Value: 1,
				Usage: "Cases per day for every service",
			},
			&cli.StringFlag{
				Name:  "report-type",
				Value: string(pricing.ReportDigital),
				Usage: `Report delivery ("digital" or "hard copy")`,
			},
			&cli.StringFlag{
				Name:  "margin",
				Value: "0",
				Usage: "Partner margin percentage",
			},
			&cli.StringFlag{
				Name:  "coupon",
				Usage: "Coupon code",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "table",
				Usage:   "Output format (table, json)",
			},
		},
		Action: runEstimate,
	}
}

func runEstimate(c *cli.Context) error {
	cfg := loadConfig(c)
	logger := newLogger(cfg.LogLevel)

	baseURL := cfg.APIBaseURL
	if c.IsSet("api") {
		baseURL = c.String("api")
	}
	timeout := cfg.CatalogTimeout
	if c.IsSet("timeout") {
		timeout = c.Duration("timeout")
	}

	rt, err := pricing.ParseReportType(c.String("report-type"))
	if err != nil {
		return err
	}
	margin, err := decimal.NewFromString(c.String("margin"))
	if err != nil || margin.IsNegative() {
		return fmt.Errorf("margin must be a non-negative number")
	}

	client := campapi.New(baseURL,
		campapi.WithTimeout(timeout),
		campapi.WithToken(c.String("token")),
		campapi.WithLogger(logger),
	)

	catalog, tiers, err := client.Catalog(c.Context)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	discount := decimal.Zero
	if code := c.String("coupon"); code != "" {
		discount, err = pricing.ResolveDiscount(c.Context, client, code)
		switch {
		case errors.Is(err, pricing.ErrInvalidCoupon):
			fmt.Fprintf(os.Stderr, "coupon %q is not valid, no discount applied\n", code)
		case err != nil:
			return fmt.Errorf("failed to validate coupon: %w", err)
		}
	}

	in := pricing.CaseInput{NumberOfDays: c.Int("days"), CasePerDay: c.Int("cases-per-day"), ReportType: rt}
	lines, err := estimateLines(c.Context, client, c.String("company-id"), c.StringSlice("service"), in, catalog)
	if err != nil {
		return err
	}

	q := pricing.SimpleQuote(lines, catalog, tiers, margin, discount)
	if misses := q.TierMisses(); len(misses) > 0 {
		logger.Warn("case volume outside every price range", "services", misses)
	}

	if c.String("format") == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(toQuoteView(q))
	}
	return writeQuoteTable(os.Stdout, q)
}

// estimateLines turns the --service names and, when companyID is set, the
// packages of the company's stored selection into quote lines at volume in.
func estimateLines(ctx context.Context, client *campapi.Client, companyID string, services []string, in pricing.CaseInput, catalog pricing.Catalog) ([]pricing.ServiceCases, error) {
	selections := make([]pricing.Selection, 0, len(services))
	for _, svc := range services {
		selections = append(selections, pricing.Plain(svc))
	}
	if companyID != "" {
		stored, err := client.ServiceSelections(ctx, companyID)
		if err != nil {
			return nil, fmt.Errorf("failed to load service selection: %w", err)
		}
		for _, sel := range stored {
			for _, p := range sel.Packages {
				selections = append(selections, pricing.Bundle(p.PackageName, p.Services...))
			}
		}
	}

	pkgs, err := pricing.ResolveSelections(selections)
	if err != nil {
		return nil, fmt.Errorf("nothing to price: pass --service or --company-id: %w", err)
	}
	lines := make([]pricing.ServiceCases, 0)
	for _, p := range pkgs {
		lines = append(lines, pricing.PackageLines(p, in, catalog)...)
	}
	return lines, nil
}

func writeQuoteTable(out io.Writer, q pricing.Quote) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tCASES\tMODE\tPER CASE\tREPORT\tPRICE")
	for _, l := range q.Lines {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			l.Service, l.TotalCase, l.Mode, l.PricePerCase.StringFixed(2), l.ReportTypeCost.StringFixed(2), l.Price.StringFixed(2))
	}
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "Subtotal\t\t\t\t\t%s\n", q.Subtotal.StringFixed(2))
	fmt.Fprintf(tw, "Partner margin (%%)\t\t\t\t\t%s\n", q.PartnerMargin.String())
	fmt.Fprintf(tw, "Discount (%%)\t\t\t\t\t%s\n", q.Discount.String())
	fmt.Fprintf(tw, "Grand total\t\t\t\t\t%s\n", q.GrandTotal.StringFixed(0))
	fmt.Fprintf(tw, "Per case\t\t\t\t\t%s\n", q.PerCasePrice.StringFixed(0))
	return tw.Flush()
}
