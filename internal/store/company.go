package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/u4rad/campcost/internal/pricing"
)

// Company is the client organisation a camp estimate is for.
type Company struct {
	ID       int64
	Name     string
	District string
	State    string
	PinCode  string
	Landmark string
}

// Camp is one camp location and date range of a company.
type Camp struct {
	ID        int64
	CompanyID int64
	Location  string
	District  string
	State     string
	PinCode   string
	Landmark  string
	StartDate time.Time
	EndDate   time.Time
}

// CreateCompany inserts c and returns it with its id.
func (s *Store) CreateCompany(ctx context.Context, c Company) (Company, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (name, district, state, pin_code, landmark)
		VALUES (?, ?, ?, ?, ?)
	`, c.Name, c.District, c.State, c.PinCode, c.Landmark)
	if err != nil {
		return Company{}, fmt.Errorf("insert company: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return Company{}, fmt.Errorf("company id: %w", err)
	}
	return c, nil
}

// GetCompany loads a company by id.
func (s *Store) GetCompany(ctx context.Context, id int64) (Company, error) {
	var c Company
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, district, state, pin_code, landmark FROM companies WHERE id = ?
	`, id).Scan(&c.ID, &c.Name, &c.District, &c.State, &c.PinCode, &c.Landmark)
	if errors.Is(err, sql.ErrNoRows) {
		return Company{}, fmt.Errorf("company %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Company{}, fmt.Errorf("query company: %w", err)
	}
	return c, nil
}

// CreateCamp inserts a camp for an existing company.
func (s *Store) CreateCamp(ctx context.Context, c Camp) (Camp, error) {
	if _, err := s.GetCompany(ctx, c.CompanyID); err != nil {
		return Camp{}, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO camps (company_id, location, district, state, pin_code, landmark, start_date, end_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.CompanyID, c.Location, c.District, c.State, c.PinCode, c.Landmark,
		c.StartDate.Format(dateLayout), c.EndDate.Format(dateLayout))
	if err != nil {
		return Camp{}, fmt.Errorf("insert camp: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return Camp{}, fmt.Errorf("camp id: %w", err)
	}
	return c, nil
}

// Camps lists the camps of a company in insertion order.
func (s *Store) Camps(ctx context.Context, companyID int64) ([]Camp, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, location, district, state, pin_code, landmark, start_date, end_date
		FROM camps WHERE company_id = ? ORDER BY id
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("query camps: %w", err)
	}
	defer rows.Close()

	camps := make([]Camp, 0)
	for rows.Next() {
		var (
			c          Camp
			start, end string
		)
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Location, &c.District, &c.State, &c.PinCode, &c.Landmark, &start, &end); err != nil {
			return nil, fmt.Errorf("scan camp: %w", err)
		}
		c.StartDate, _ = time.Parse(dateLayout, start)
		c.EndDate, _ = time.Parse(dateLayout, end)
		camps = append(camps, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate camps: %w", err)
	}
	return camps, nil
}

// SelectedPackage is the stored shape of one selected package.
type SelectedPackage struct {
	PackageName      string   `json:"package_name"`
	Services         []string `json:"services"`
	PathologyOptions []string `json:"pathology_options,omitempty"`
}

// ServiceSelection is a company's current package selection.
type ServiceSelection struct {
	ID        int64
	CompanyID string
	Packages  []SelectedPackage
	CreatedAt time.Time
}

// SelectedPackages converts resolved packages to their stored shape.
func SelectedPackages(pkgs []pricing.Package) []SelectedPackage {
	out := make([]SelectedPackage, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, SelectedPackage{PackageName: p.Name, Services: p.Services, PathologyOptions: p.PathologyOptions})
	}
	return out
}

// ReplaceServiceSelection drops any earlier selection of the company and stores packages.
func (s *Store) ReplaceServiceSelection(ctx context.Context, companyID string, packages []SelectedPackage) (ServiceSelection, error) {
	raw, err := json.Marshal(packages)
	if err != nil {
		return ServiceSelection{}, fmt.Errorf("encode packages: %w", err)
	}

	sel := ServiceSelection{CompanyID: companyID, Packages: packages}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM service_selections WHERE company_id = ?`, companyID); err != nil {
			return fmt.Errorf("delete previous selection: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO service_selections (company_id, packages_json) VALUES (?, ?)
		`, companyID, string(raw))
		if err != nil {
			return fmt.Errorf("insert selection: %w", err)
		}
		sel.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return ServiceSelection{}, err
	}
	sel.CreatedAt = time.Now().UTC()
	return sel, nil
}

// ServiceSelections lists selections, optionally filtered by company.
func (s *Store) ServiceSelections(ctx context.Context, companyID string) ([]ServiceSelection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, packages_json, created_at
		FROM service_selections
		WHERE (? = '' OR company_id = ?)
		ORDER BY id DESC
	`, companyID, companyID)
	if err != nil {
		return nil, fmt.Errorf("query service selections: %w", err)
	}
	defer rows.Close()

	selections := make([]ServiceSelection, 0)
	for rows.Next() {
		var (
			sel              ServiceSelection
			raw, createdAtDB string
		)
		if err := rows.Scan(&sel.ID, &sel.CompanyID, &raw, &createdAtDB); err != nil {
			return nil, fmt.Errorf("scan service selection: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &sel.Packages); err != nil {
			return nil, fmt.Errorf("decode packages of selection %d: %w", sel.ID, err)
		}
		sel.CreatedAt = parseTimestamp(createdAtDB)
		selections = append(selections, sel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate service selections: %w", err)
	}
	return selections, nil
}

// TestData is one persisted per-service case row.
type TestData struct {
	ID             int64
	CompanyID      int64
	PackageName    string
	ServiceName    string
	CasePerDay     int
	NumberOfDays   int
	TotalCase      int
	ReportType     pricing.ReportType
	ReportTypeCost decimal.Decimal
	CreatedAt      time.Time
}

// SaveTestData stores rows in one transaction. Total case and report cost
// are always derived from the inputs; values set by the caller are ignored.
func (s *Store) SaveTestData(ctx context.Context, rows []TestData) ([]TestData, error) {
	saved := make([]TestData, 0, len(rows))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rows {
			in := pricing.CaseInput{NumberOfDays: r.NumberOfDays, CasePerDay: r.CasePerDay, ReportType: r.ReportType}
			if in.ReportType == "" {
				in.ReportType = pricing.ReportDigital
			}
			r.ReportType = in.ReportType
			r.TotalCase = in.TotalCase()
			r.ReportTypeCost = in.ReportTypeCost()

			res, err := tx.ExecContext(ctx, `
				INSERT INTO test_data (company_id, package_name, service_name, case_per_day, number_of_days, total_case, report_type, report_type_cost)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, r.CompanyID, r.PackageName, r.ServiceName, r.CasePerDay, r.NumberOfDays, r.TotalCase, string(r.ReportType), r.ReportTypeCost)
			if err != nil {
				return fmt.Errorf("insert test data for %q: %w", r.ServiceName, err)
			}
			if r.ID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("test data id: %w", err)
			}
			r.CreatedAt = time.Now().UTC()
			saved = append(saved, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// TestDataFilter narrows ListTestData. Zero values match everything.
type TestDataFilter struct {
	CompanyID   int64
	PackageName string
}

// ListTestData returns rows newest first.
func (s *Store) ListTestData(ctx context.Context, f TestDataFilter) ([]TestData, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, package_name, service_name, case_per_day, number_of_days, total_case, report_type, report_type_cost, created_at
		FROM test_data
		WHERE (? = 0 OR company_id = ?) AND (? = '' OR package_name = ?)
		ORDER BY id DESC
	`, f.CompanyID, f.CompanyID, f.PackageName, f.PackageName)
	if err != nil {
		return nil, fmt.Errorf("query test data: %w", err)
	}
	defer rows.Close()

	out := make([]TestData, 0)
	for rows.Next() {
		var (
			r          TestData
			reportType string
			createdAt  string
		)
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.PackageName, &r.ServiceName, &r.CasePerDay, &r.NumberOfDays, &r.TotalCase, &reportType, &r.ReportTypeCost, &createdAt); err != nil {
			return nil, fmt.Errorf("scan test data: %w", err)
		}
		r.ReportType = pricing.ReportType(reportType)
		r.CreatedAt = parseTimestamp(createdAt)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate test data: %w", err)
	}
	return out, nil
}

// CostDetail is the stored travel/stay/food and total of a package, one row per service.
type CostDetail struct {
	CompanyID   int64
	PackageName string
	ServiceName string
	Travel      decimal.Decimal
	Stay        decimal.Decimal
	Food        decimal.Decimal
	TotalCost   decimal.Decimal
}

// PackageCostDetail is the submitted cost of one package.
type PackageCostDetail struct {
	PackageName string
	Services    []string
	Travel      decimal.Decimal
	Stay        decimal.Decimal
	Food        decimal.Decimal
	TotalCost   decimal.Decimal
}

// SaveCostDetails upserts one row per (company, service) for every package.
func (s *Store) SaveCostDetails(ctx context.Context, companyID int64, packages []PackageCostDetail) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range packages {
			for _, svc := range p.Services {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO cost_details (company_id, package_name, service_name, travel, stay, food, total_cost)
					VALUES (?, ?, ?, ?, ?, ?, ?)
					ON CONFLICT(company_id, service_name) DO UPDATE SET
						package_name = excluded.package_name,
						travel = excluded.travel,
						stay = excluded.stay,
						food = excluded.food,
						total_cost = excluded.total_cost
				`, companyID, p.PackageName, svc, p.Travel, p.Stay, p.Food, p.TotalCost)
				if err != nil {
					return fmt.Errorf("upsert cost detail %q: %w", svc, err)
				}
			}
		}
		return nil
	})
}

// CostDetails lists stored cost details, optionally for one company.
func (s *Store) CostDetails(ctx context.Context, companyID int64) ([]CostDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT company_id, package_name, service_name, travel, stay, food, total_cost
		FROM cost_details
		WHERE (? = 0 OR company_id = ?)
		ORDER BY id
	`, companyID, companyID)
	if err != nil {
		return nil, fmt.Errorf("query cost details: %w", err)
	}
	defer rows.Close()

	out := make([]CostDetail, 0)
	for rows.Next() {
		var d CostDetail
		if err := rows.Scan(&d.CompanyID, &d.PackageName, &d.ServiceName, &d.Travel, &d.Stay, &d.Food, &d.TotalCost); err != nil {
			return nil, fmt.Errorf("scan cost detail: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cost details: %w", err)
	}
	return out, nil
}
