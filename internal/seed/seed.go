package seed

import (
	"database/sql"
	"fmt"

	"github.com/u4rad/campcost/internal/auth"
)

const (
	hardCopyName  = "Hard Copy Report"
	hardCopyPrice = "25"
)

// Config contains the values required by startup seed.
type Config struct {
	CoordinatorUsername string
	CoordinatorPassword string
	CoordinatorCompany  string
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
	Updates int
}

type serviceCost struct {
	name                                                       string
	salary, incentive, misc, equipment, consumables, reporting string
}

// defaultServiceCosts is the starting catalog. Pathology sub-tests are
// priced flat in the customer flow; the rest use the price ranges below.
var defaultServiceCosts = []serviceCost{
	{"CBC", "40", "5", "5", "10", "30", "10"},
	{"Complete Hemogram", "45", "5", "5", "10", "35", "10"},
	{"Hemoglobin", "15", "2", "2", "5", "10", "5"},
	{"Urine Routine", "20", "3", "2", "5", "15", "5"},
	{"Stool Examination", "20", "3", "2", "5", "15", "5"},
	{"Lipid Profile", "60", "8", "5", "20", "80", "10"},
	{"Kidney Profile", "55", "8", "5", "20", "70", "10"},
	{"LFT", "55", "8", "5", "20", "70", "10"},
	{"KFT", "50", "8", "5", "20", "60", "10"},
	{"Random Blood Glucose", "10", "2", "2", "5", "8", "3"},
	{"Blood Grouping", "15", "2", "2", "5", "10", "3"},
	{"Pathology", "30", "5", "5", "10", "20", "5"},
	{"X-Ray", "120", "20", "10", "80", "40", "50"},
	{"ECG", "60", "10", "5", "30", "10", "25"},
	{"Audiometry", "50", "10", "5", "30", "5", "20"},
	{"Vision", "30", "5", "5", "10", "5", "10"},
	{"Spirometry", "50", "10", "5", "30", "15", "20"},
	{"Dental", "40", "10", "5", "15", "10", "10"},
}

type priceRange struct {
	maxCases int
	price    string
}

// defaultPriceRanges are the volume tiers of the customer flow.
var defaultPriceRanges = map[string][]priceRange{
	"X-Ray":      {{50, "450"}, {200, "380"}, {1000, "320"}},
	"ECG":        {{50, "220"}, {200, "180"}, {1000, "150"}},
	"Audiometry": {{50, "200"}, {200, "170"}, {1000, "140"}},
	"Vision":     {{50, "100"}, {200, "80"}, {1000, "60"}},
	"Spirometry": {{50, "220"}, {200, "190"}, {1000, "160"}},
	"Dental":     {{50, "150"}, {200, "120"}, {1000, "100"}},
	"Pathology":  {{50, "180"}, {200, "150"}, {1000, "120"}},
}

// Run executes the startup seed in an idempotent way.
func Run(db *sql.DB, cfg Config) (Stats, error) {
	tx, err := db.Begin()
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}

	if err := seedCoordinator(tx, cfg, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if err := ensureServiceCosts(tx, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if err := ensurePriceRanges(tx, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if err := ensureCopyPrice(tx, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

func seedCoordinator(tx *sql.Tx, cfg Config, stats *Stats) error {
	if cfg.CoordinatorUsername == "" || cfg.CoordinatorPassword == "" {
		return nil
	}

	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE username = ? LIMIT 1)`, cfg.CoordinatorUsername).Scan(&exists); err != nil {
		return fmt.Errorf("check coordinator existence: %w", err)
	}
	if exists {
		return nil
	}

	hash, err := auth.HashPassword(cfg.CoordinatorPassword)
	if err != nil {
		return fmt.Errorf("hash coordinator password: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO users (username, password_hash, company_name, role) VALUES (?, ?, ?, ?)
	`, cfg.CoordinatorUsername, hash, cfg.CoordinatorCompany, string(auth.RoleCoordinator)); err != nil {
		return fmt.Errorf("insert coordinator: %w", err)
	}
	stats.Inserts++
	return nil
}

func ensureServiceCosts(tx *sql.Tx, stats *Stats) error {
	for _, c := range defaultServiceCosts {
		res, err := tx.Exec(`
			INSERT INTO service_costs (test_type_name, salary, incentive, misc, equipment, consumables, reporting)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(test_type_name) DO NOTHING
		`, c.name, c.salary, c.incentive, c.misc, c.equipment, c.consumables, c.reporting)
		if err != nil {
			return fmt.Errorf("insert service cost %q: %w", c.name, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			stats.Inserts++
		}
	}
	return nil
}

func ensurePriceRanges(tx *sql.Tx, stats *Stats) error {
	for name, ranges := range defaultPriceRanges {
		var exists bool
		if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM price_services WHERE name = ? LIMIT 1)`, name).Scan(&exists); err != nil {
			return fmt.Errorf("check price service %q existence: %w", name, err)
		}
		if exists {
			continue
		}

		res, err := tx.Exec(`INSERT INTO price_services (name) VALUES (?)`, name)
		if err != nil {
			return fmt.Errorf("insert price service %q: %w", name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("price service %q id: %w", name, err)
		}
		for _, r := range ranges {
			if _, err := tx.Exec(`
				INSERT INTO price_ranges (service_id, max_cases, price) VALUES (?, ?, ?)
			`, id, r.maxCases, r.price); err != nil {
				return fmt.Errorf("insert price range for %q: %w", name, err)
			}
		}
		stats.Inserts++
	}
	return nil
}

func ensureCopyPrice(tx *sql.Tx, stats *Stats) error {
	res, err := tx.Exec(`
		INSERT INTO copy_prices (name, hard_copy_price) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, hardCopyName, hardCopyPrice)
	if err != nil {
		return fmt.Errorf("insert copy price: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		stats.Inserts++
	}
	return nil
}
