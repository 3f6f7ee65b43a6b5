// Package report lays out estimate and billing PDFs.
//
// The text of every figure is produced by the pure builders in this package
// from pricing results; Render only draws it.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/u4rad/campcost/internal/pricing"
)

// Row is a label/value pair in a document header or totals block.
type Row struct {
	Label string
	Value string
}

// Table is the body of a document.
type Table struct {
	Header []string
	Widths []float64
	Rows   [][]string
}

// Document is everything Render draws.
type Document struct {
	Title  string
	Meta   []Row
	Camps  Table
	Body   Table
	Totals []Row
}

// CampRow is a camp as printed.
type CampRow struct {
	Location  string
	District  string
	State     string
	StartDate time.Time
	EndDate   time.Time
}

// Estimate is the customer-flow report.
type Estimate struct {
	CompanyName string
	PreparedBy  string
	Camps       []CampRow
	Quote       pricing.Quote
	GeneratedAt time.Time
}

// Billing is the coordinator-flow report.
type Billing struct {
	BillingNumber   string
	CompanyName     string
	CompanyAddress  string
	CompanyDistrict string
	CompanyState    string
	CompanyPincode  string
	Camps           []CampRow
	Summary         pricing.Summary
	GeneratedAt     time.Time
}

const dateLayout = "02 Jan 2006"

func money(d decimal.Decimal, places int32) string {
	return "Rs. " + d.StringFixed(places)
}

func campTable(camps []CampRow) Table {
	t := Table{
		Header: []string{"Location", "District", "State", "From", "To"},
		Widths: []float64{50, 35, 35, 30, 30},
	}
	for _, c := range camps {
		t.Rows = append(t.Rows, []string{c.Location, c.District, c.State, c.StartDate.Format(dateLayout), c.EndDate.Format(dateLayout)})
	}
	return t
}

// EstimateDocument builds the customer estimate. Totals are whole rupees.
func EstimateDocument(e Estimate) Document {
	body := Table{
		Header: []string{"Service", "Total Cases"},
		Widths: []float64{130, 50},
	}
	for _, l := range e.Quote.Lines {
		body.Rows = append(body.Rows, []string{l.Service, strconv.Itoa(l.TotalCase)})
	}

	return Document{
		Title: "Camp Estimate",
		Meta: []Row{
			{Label: "Company", Value: e.CompanyName},
			{Label: "Prepared by", Value: e.PreparedBy},
			{Label: "Date", Value: e.GeneratedAt.Format(dateLayout)},
		},
		Camps: campTable(e.Camps),
		Body:  body,
		Totals: []Row{
			{Label: "Grand Total", Value: money(e.Quote.GrandTotal, 0)},
			{Label: "Price per Case", Value: money(e.Quote.PerCasePrice, 0)},
		},
	}
}

// BillingDocument builds the coordinator billing summary. Prices have two
// decimal places.
func BillingDocument(b Billing) Document {
	body := Table{
		Header: []string{"Package", "Services", "Cases", "Unit Price", "Total"},
		Widths: []float64{35, 60, 20, 32, 33},
	}
	for _, l := range b.Summary.Lines {
		body.Rows = append(body.Rows, []string{
			l.PackageName,
			strings.Join(l.Services, ", "),
			strconv.Itoa(l.TotalCase),
			money(l.RevisedUnitPrice, 2),
			money(l.TotalPrice, 2),
		})
	}

	address := strings.Join(nonEmpty(b.CompanyAddress, b.CompanyDistrict, b.CompanyState, b.CompanyPincode), ", ")
	return Document{
		Title: "Cost Summary",
		Meta: []Row{
			{Label: "Billing No.", Value: b.BillingNumber},
			{Label: "Company", Value: b.CompanyName},
			{Label: "Address", Value: address},
			{Label: "Date", Value: b.GeneratedAt.Format(dateLayout)},
		},
		Camps: campTable(b.Camps),
		Body:  body,
		Totals: []Row{
			{Label: "Grand Total", Value: money(b.Summary.GrandTotal, 2)},
		},
	}
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Filename suggests a download name for a document.
func Filename(kind, company string, at time.Time) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, strings.TrimSpace(company))
	if slug == "" {
		slug = "company"
	}
	return fmt.Sprintf("%s-%s-%s.pdf", kind, slug, at.Format("20060102"))
}
