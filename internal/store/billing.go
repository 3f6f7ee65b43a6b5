package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// CampSnapshot is a camp as recorded on a billing record.
type CampSnapshot struct {
	Location  string `json:"campLocation"`
	District  string `json:"campDistrict"`
	State     string `json:"campState"`
	PinCode   string `json:"campPinCode"`
	Landmark  string `json:"campLandmark"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// PackageLine is a priced package as recorded on a billing record.
type PackageLine struct {
	PackageName      string          `json:"package_name"`
	Services         []string        `json:"services"`
	TotalCase        int             `json:"totalCase"`
	TPrice           decimal.Decimal `json:"tPrice"`
	Markup           decimal.Decimal `json:"markup"`
	RevisedUnitPrice decimal.Decimal `json:"revisedUnitPrice"`
	TotalPrice       decimal.Decimal `json:"totalPrice"`
}

// BillingRecord is a saved coordinator cost summary.
type BillingRecord struct {
	ID              int64
	CompanyID       string
	BillingNumber   string
	CompanyName     string
	CompanyState    string
	CompanyDistrict string
	CompanyPincode  string
	CompanyLandmark string
	CompanyAddress  string
	Camps           []CampSnapshot
	Packages        []PackageLine
	GrandTotal      decimal.Decimal
	CreatedAt       time.Time
}

// Next implements pricing.CounterStore over the billing_counter row.
func (s *Store) Next(ctx context.Context) (int, error) {
	return nextCounter(ctx, s.db)
}

func nextCounter(ctx context.Context, q execQuerier) (int, error) {
	var v int
	err := q.QueryRowContext(ctx, `
		UPDATE billing_counter SET value = value + 1 WHERE id = 1 RETURNING value - 1
	`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("advance billing counter: %w", err)
	}
	return v, nil
}

// CreateCostSummary stores a billing record and returns it with its id.
func (s *Store) CreateCostSummary(ctx context.Context, r BillingRecord) (BillingRecord, error) {
	id, err := insertCostSummary(ctx, s.db, r)
	if err != nil {
		return BillingRecord{}, err
	}
	return s.GetCostSummary(ctx, id)
}

// CreateNumberedCostSummary advances the billing counter and stores r under
// the number format gives for the counter value. Both happen in one
// transaction, so a failed insert does not consume a number.
func (s *Store) CreateNumberedCostSummary(ctx context.Context, r BillingRecord, format func(n int) string) (BillingRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return BillingRecord{}, fmt.Errorf("begin cost summary tx: %w", err)
	}
	defer tx.Rollback()

	n, err := nextCounter(ctx, tx)
	if err != nil {
		return BillingRecord{}, err
	}
	r.BillingNumber = format(n)
	id, err := insertCostSummary(ctx, tx, r)
	if err != nil {
		return BillingRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return BillingRecord{}, fmt.Errorf("commit cost summary: %w", err)
	}
	return s.GetCostSummary(ctx, id)
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertCostSummary(ctx context.Context, q execQuerier, r BillingRecord) (int64, error) {
	camps, err := json.Marshal(r.Camps)
	if err != nil {
		return 0, fmt.Errorf("encode camp details: %w", err)
	}
	packages, err := json.Marshal(r.Packages)
	if err != nil {
		return 0, fmt.Errorf("encode package details: %w", err)
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO cost_summaries (
			company_id, billing_number, company_name, company_state, company_district,
			company_pincode, company_landmark, company_address,
			camp_details_json, package_details_json, grand_total
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.CompanyID, r.BillingNumber, r.CompanyName, r.CompanyState, r.CompanyDistrict,
		r.CompanyPincode, r.CompanyLandmark, r.CompanyAddress,
		string(camps), string(packages), r.GrandTotal)
	if err != nil {
		return 0, fmt.Errorf("insert cost summary: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("cost summary id: %w", err)
	}
	return id, nil
}

const costSummaryColumns = `
	id, company_id, billing_number, company_name, company_state, company_district,
	company_pincode, company_landmark, company_address,
	camp_details_json, package_details_json, grand_total, created_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCostSummary(row rowScanner) (BillingRecord, error) {
	var (
		r                      BillingRecord
		camps, pkgs, createdAt string
	)
	if err := row.Scan(&r.ID, &r.CompanyID, &r.BillingNumber, &r.CompanyName, &r.CompanyState, &r.CompanyDistrict,
		&r.CompanyPincode, &r.CompanyLandmark, &r.CompanyAddress, &camps, &pkgs, &r.GrandTotal, &createdAt); err != nil {
		return BillingRecord{}, err
	}
	if err := json.Unmarshal([]byte(camps), &r.Camps); err != nil {
		return BillingRecord{}, fmt.Errorf("decode camp details: %w", err)
	}
	if err := json.Unmarshal([]byte(pkgs), &r.Packages); err != nil {
		return BillingRecord{}, fmt.Errorf("decode package details: %w", err)
	}
	r.CreatedAt = parseTimestamp(createdAt)
	return r, nil
}

// GetCostSummary loads one billing record.
func (s *Store) GetCostSummary(ctx context.Context, id int64) (BillingRecord, error) {
	r, err := scanCostSummary(s.db.QueryRowContext(ctx, `SELECT `+costSummaryColumns+` FROM cost_summaries WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return BillingRecord{}, fmt.Errorf("cost summary %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return BillingRecord{}, fmt.Errorf("query cost summary: %w", err)
	}
	return r, nil
}

// ListCostSummaries returns billing records newest first, optionally
// filtered by a substring of the company name or billing number.
func (s *Store) ListCostSummaries(ctx context.Context, query string) ([]BillingRecord, error) {
	search := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+costSummaryColumns+`
		FROM cost_summaries
		WHERE (? = '' OR company_name LIKE ? OR billing_number LIKE ?)
		ORDER BY datetime(created_at) DESC, id DESC
	`, query, search, search)
	if err != nil {
		return nil, fmt.Errorf("query cost summaries: %w", err)
	}
	defer rows.Close()

	records := make([]BillingRecord, 0)
	for rows.Next() {
		r, err := scanCostSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cost summary: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cost summaries: %w", err)
	}
	return records, nil
}

// ServiceTotal is the case volume of one service in a customer submission.
type ServiceTotal struct {
	ServiceName string
	TotalCases  int
}

// CompanyDetails is a saved customer-flow estimate.
type CompanyDetails struct {
	ID           int64
	CompanyName  string
	GrandTotal   decimal.Decimal
	SuperCompany string
	Services     []ServiceTotal
	CreatedAt    time.Time
}

// CreateCompanyDetails stores a customer estimate with its service rows.
func (s *Store) CreateCompanyDetails(ctx context.Context, d CompanyDetails) (CompanyDetails, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO company_details (company_name, grand_total, super_company) VALUES (?, ?, ?)
		`, d.CompanyName, d.GrandTotal, d.SuperCompany)
		if err != nil {
			return fmt.Errorf("insert company details: %w", err)
		}
		if d.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("company details id: %w", err)
		}
		for _, svc := range d.Services {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO service_details (company_details_id, service_name, total_cases) VALUES (?, ?, ?)
			`, d.ID, svc.ServiceName, svc.TotalCases); err != nil {
				return fmt.Errorf("insert service details %q: %w", svc.ServiceName, err)
			}
		}
		return nil
	})
	if err != nil {
		return CompanyDetails{}, err
	}
	d.CreatedAt = time.Now().UTC()
	return d, nil
}

// ListCompanyDetails returns customer estimates newest first, optionally
// only those submitted by superCompany.
func (s *Store) ListCompanyDetails(ctx context.Context, superCompany string) ([]CompanyDetails, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cd.id, cd.company_name, cd.grand_total, cd.super_company, cd.created_at, sd.service_name, sd.total_cases
		FROM company_details cd
		LEFT JOIN service_details sd ON sd.company_details_id = cd.id
		WHERE (? = '' OR cd.super_company = ?)
		ORDER BY cd.id DESC, sd.id
	`, superCompany, superCompany)
	if err != nil {
		return nil, fmt.Errorf("query company details: %w", err)
	}
	defer rows.Close()

	out := make([]CompanyDetails, 0)
	for rows.Next() {
		var (
			d         CompanyDetails
			createdAt string
			svcName   sql.NullString
			svcCases  sql.NullInt64
		)
		if err := rows.Scan(&d.ID, &d.CompanyName, &d.GrandTotal, &d.SuperCompany, &createdAt, &svcName, &svcCases); err != nil {
			return nil, fmt.Errorf("scan company details: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].ID != d.ID {
			d.CreatedAt = parseTimestamp(createdAt)
			d.Services = []ServiceTotal{}
			out = append(out, d)
		}
		if svcName.Valid {
			last := &out[len(out)-1]
			last.Services = append(last.Services, ServiceTotal{ServiceName: svcName.String, TotalCases: int(svcCases.Int64)})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate company details: %w", err)
	}
	return out, nil
}

// Estimation records a generated PDF kept in object storage.
type Estimation struct {
	ID          string
	CompanyName string
	Kind        string
	ObjectKey   string
	CreatedAt   time.Time
}

// CreateEstimation records a stored PDF.
func (s *Store) CreateEstimation(ctx context.Context, e Estimation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO estimations (id, company_name, kind, object_key) VALUES (?, ?, ?, ?)
	`, e.ID, e.CompanyName, e.Kind, e.ObjectKey)
	if err != nil {
		return fmt.Errorf("insert estimation: %w", err)
	}
	return nil
}

// GetEstimation loads an estimation by id.
func (s *Store) GetEstimation(ctx context.Context, id string) (Estimation, error) {
	var (
		e         Estimation
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, company_name, kind, object_key, created_at FROM estimations WHERE id = ?
	`, id).Scan(&e.ID, &e.CompanyName, &e.Kind, &e.ObjectKey, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Estimation{}, fmt.Errorf("estimation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Estimation{}, fmt.Errorf("query estimation: %w", err)
	}
	e.CreatedAt = parseTimestamp(createdAt)
	return e, nil
}
