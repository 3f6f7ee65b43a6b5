package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/u4rad/campcost/internal/pricing"
)

// ServiceCosts returns the full cost catalog ordered by name.
func (s *Store) ServiceCosts(ctx context.Context) ([]pricing.ServiceCost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT test_type_name, salary, incentive, misc, equipment, consumables, reporting
		FROM service_costs
		ORDER BY test_type_name
	`)
	if err != nil {
		return nil, fmt.Errorf("query service costs: %w", err)
	}
	defer rows.Close()

	costs := make([]pricing.ServiceCost, 0)
	for rows.Next() {
		var c pricing.ServiceCost
		if err := rows.Scan(&c.Name, &c.Salary, &c.Incentive, &c.Misc, &c.Equipment, &c.Consumables, &c.Reporting); err != nil {
			return nil, fmt.Errorf("scan service cost: %w", err)
		}
		costs = append(costs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate service costs: %w", err)
	}
	return costs, nil
}

// UpsertServiceCost inserts or replaces the catalog entry with the same name.
func (s *Store) UpsertServiceCost(ctx context.Context, c pricing.ServiceCost) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO service_costs (test_type_name, salary, incentive, misc, equipment, consumables, reporting)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(test_type_name) DO UPDATE SET
			salary = excluded.salary,
			incentive = excluded.incentive,
			misc = excluded.misc,
			equipment = excluded.equipment,
			consumables = excluded.consumables,
			reporting = excluded.reporting
	`, c.Name, c.Salary, c.Incentive, c.Misc, c.Equipment, c.Consumables, c.Reporting)
	if err != nil {
		return fmt.Errorf("upsert service cost %q: %w", c.Name, err)
	}
	return nil
}

// PricedService is a service with its volume tiers.
type PricedService struct {
	Name   string
	Ranges []pricing.PriceRange
}

// PriceTable returns every priced service with its ranges ascending by max cases.
func (s *Store) PriceTable(ctx context.Context) ([]PricedService, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ps.name, pr.max_cases, pr.price
		FROM price_services ps
		LEFT JOIN price_ranges pr ON pr.service_id = ps.id
		ORDER BY ps.name, pr.max_cases
	`)
	if err != nil {
		return nil, fmt.Errorf("query price table: %w", err)
	}
	defer rows.Close()

	services := make([]PricedService, 0)
	for rows.Next() {
		var (
			name     string
			maxCases sql.NullInt64
			price    decimal.NullDecimal
		)
		if err := rows.Scan(&name, &maxCases, &price); err != nil {
			return nil, fmt.Errorf("scan price range: %w", err)
		}
		if len(services) == 0 || services[len(services)-1].Name != name {
			services = append(services, PricedService{Name: name, Ranges: []pricing.PriceRange{}})
		}
		if maxCases.Valid && price.Valid {
			last := &services[len(services)-1]
			last.Ranges = append(last.Ranges, pricing.PriceRange{MaxCases: int(maxCases.Int64), PricePerCase: price.Decimal})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price table: %w", err)
	}
	return services, nil
}

// TierTable loads the price table in the shape the pricing engine uses.
func (s *Store) TierTable(ctx context.Context) (pricing.TierTable, error) {
	services, err := s.PriceTable(ctx)
	if err != nil {
		return nil, err
	}
	ranges := make(map[string][]pricing.PriceRange, len(services))
	for _, svc := range services {
		ranges[svc.Name] = svc.Ranges
	}
	return pricing.NewTierTable(ranges), nil
}

// ReplacePriceRanges creates the service if needed and replaces its ranges.
func (s *Store) ReplacePriceRanges(ctx context.Context, name string, ranges []pricing.PriceRange) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO price_services (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
			return fmt.Errorf("insert price service %q: %w", name, err)
		}

		var id int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM price_services WHERE name = ?`, name).Scan(&id); err != nil {
			return fmt.Errorf("lookup price service %q: %w", name, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM price_ranges WHERE service_id = ?`, id); err != nil {
			return fmt.Errorf("clear price ranges for %q: %w", name, err)
		}

		for _, r := range ranges {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO price_ranges (service_id, max_cases, price) VALUES (?, ?, ?)
			`, id, r.MaxCases, r.PricePerCase); err != nil {
				return fmt.Errorf("insert price range for %q: %w", name, err)
			}
		}
		return nil
	})
}

// ValidateCoupon returns the discount percentage of code, or
// pricing.ErrInvalidCoupon when the code is unknown.
func (s *Store) ValidateCoupon(ctx context.Context, code string) (decimal.Decimal, error) {
	var pct decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT discount_percentage FROM discount_coupons WHERE code = ?
	`, strings.TrimSpace(code)).Scan(&pct)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, pricing.ErrInvalidCoupon
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("query coupon: %w", err)
	}
	return pct, nil
}

// UpsertCoupon creates or updates a discount coupon.
func (s *Store) UpsertCoupon(ctx context.Context, code string, pct decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discount_coupons (code, discount_percentage) VALUES (?, ?)
		ON CONFLICT(code) DO UPDATE SET discount_percentage = excluded.discount_percentage
	`, code, pct)
	if err != nil {
		return fmt.Errorf("upsert coupon %q: %w", code, err)
	}
	return nil
}

// CopyPrice is the hard copy price of a report kind.
type CopyPrice struct {
	ID            int64
	Name          string
	HardCopyPrice decimal.Decimal
}

// CopyPrices lists hard copy prices.
func (s *Store) CopyPrices(ctx context.Context) ([]CopyPrice, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, hard_copy_price FROM copy_prices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query copy prices: %w", err)
	}
	defer rows.Close()

	prices := make([]CopyPrice, 0)
	for rows.Next() {
		var p CopyPrice
		if err := rows.Scan(&p.ID, &p.Name, &p.HardCopyPrice); err != nil {
			return nil, fmt.Errorf("scan copy price: %w", err)
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate copy prices: %w", err)
	}
	return prices, nil
}

// UpsertCopyPrice creates or updates the hard copy price for name.
func (s *Store) UpsertCopyPrice(ctx context.Context, name string, price decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO copy_prices (name, hard_copy_price) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET hard_copy_price = excluded.hard_copy_price
	`, name, price)
	if err != nil {
		return fmt.Errorf("upsert copy price %q: %w", name, err)
	}
	return nil
}
