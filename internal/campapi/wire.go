package campapi

import (
	"bytes"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/u4rad/campcost/internal/pricing"
)

// Amount is a decimal that decodes from a JSON number or string. Values that
// do not parse decode as zero. It encodes as a string.
type Amount struct {
	decimal.Decimal
}

func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(bytes.Trim(b, `"`)))
	d, err := decimal.NewFromString(raw)
	if err != nil {
		d = decimal.Zero
	}
	a.Decimal = d
	return nil
}

// ServiceCost is an entry of GET /service_costs/.
type ServiceCost struct {
	TestTypeName string `json:"test_type_name"`
	Salary       Amount `json:"salary"`
	Incentive    Amount `json:"incentive"`
	Misc         Amount `json:"misc"`
	Equipment    Amount `json:"equipment"`
	Consumables  Amount `json:"consumables"`
	Reporting    Amount `json:"reporting"`
}

func FromServiceCost(c pricing.ServiceCost) ServiceCost {
	return ServiceCost{
		TestTypeName: c.Name,
		Salary:       NewAmount(c.Salary),
		Incentive:    NewAmount(c.Incentive),
		Misc:         NewAmount(c.Misc),
		Equipment:    NewAmount(c.Equipment),
		Consumables:  NewAmount(c.Consumables),
		Reporting:    NewAmount(c.Reporting),
	}
}

func (c ServiceCost) Pricing() pricing.ServiceCost {
	return pricing.ServiceCost{
		Name:        c.TestTypeName,
		Salary:      c.Salary.Decimal,
		Incentive:   c.Incentive.Decimal,
		Misc:        c.Misc.Decimal,
		Equipment:   c.Equipment.Decimal,
		Consumables: c.Consumables.Decimal,
		Reporting:   c.Reporting.Decimal,
	}
}

// PriceRange is one bracket of GET /prices/.
type PriceRange struct {
	MaxCases int    `json:"max_cases"`
	Price    Amount `json:"price"`
}

// PricedService is an entry of GET /prices/.
type PricedService struct {
	Name        string       `json:"name"`
	PriceRanges []PriceRange `json:"price_ranges"`
}

// Package is a selected package on the wire.
type Package struct {
	PackageName      string   `json:"package_name"`
	Services         []string `json:"services"`
	PathologyOptions []string `json:"pathology_options,omitempty"`
}

// ServiceSelection is an entry of GET /service-selection/ and the body of its POST.
type ServiceSelection struct {
	CompanyID string    `json:"company_id"`
	Packages  []Package `json:"packages"`
}

// PackageCost is one package of POST /cost_details/.
type PackageCost struct {
	PackageName string   `json:"package_name"`
	Services    []string `json:"services"`
	Travel      Amount   `json:"travel"`
	Stay        Amount   `json:"stay"`
	Food        Amount   `json:"food"`
	TotalCost   Amount   `json:"total_cost"`
}

// CostDetails is the body of POST /cost_details/.
type CostDetails struct {
	CompanyID int64         `json:"company_id"`
	Packages  []PackageCost `json:"packages"`
}

// Camp is a camp as carried on a billing record.
type Camp struct {
	CampLocation string `json:"campLocation"`
	CampDistrict string `json:"campDistrict"`
	CampState    string `json:"campState"`
	CampPinCode  string `json:"campPinCode"`
	CampLandmark string `json:"campLandmark"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
}

// PackageLine mirrors a cost summary line.
type PackageLine struct {
	PackageName      string   `json:"package_name"`
	Services         []string `json:"services"`
	TotalCase        int      `json:"totalCase"`
	TPrice           Amount   `json:"tPrice"`
	Markup           Amount   `json:"markup"`
	RevisedUnitPrice Amount   `json:"revisedUnitPrice"`
	TotalPrice       Amount   `json:"totalPrice"`
}

func FromSummaryLine(l pricing.CostSummaryLine) PackageLine {
	return PackageLine{
		PackageName:      l.PackageName,
		Services:         l.Services,
		TotalCase:        l.TotalCase,
		TPrice:           NewAmount(l.TPrice),
		Markup:           NewAmount(l.Markup),
		RevisedUnitPrice: NewAmount(l.RevisedUnitPrice),
		TotalPrice:       NewAmount(l.TotalPrice),
	}
}

// CostSummary is the billing record of POST /costsummaries.
type CostSummary struct {
	ID              int64         `json:"id,omitempty"`
	BillingNumber   string        `json:"billing_number"`
	CompanyID       string        `json:"company_id"`
	CompanyName     string        `json:"company_name"`
	CompanyState    string        `json:"company_state"`
	CompanyDistrict string        `json:"company_district"`
	CompanyPincode  string        `json:"company_pincode"`
	CompanyLandmark string        `json:"company_landmark"`
	CompanyAddress  string        `json:"company_address"`
	CampDetails     []Camp        `json:"camp_details"`
	PackageDetails  []PackageLine `json:"package_details"`
	GrandTotal      Amount        `json:"grand_total"`
	CreatedAt       *time.Time    `json:"created_at,omitempty"`
}

// Coupon is the response of GET /validate-coupon/{code}/.
type Coupon struct {
	Code               string `json:"code"`
	DiscountPercentage Amount `json:"discount_percentage"`
}
