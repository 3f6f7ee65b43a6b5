package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// HardCopyRatePerCase is the surcharge per case for printed reports.
var HardCopyRatePerCase = decimal.NewFromInt(25)

// PathologyService is the service name that carries pathology sub-selections.
const PathologyService = "Pathology"

// Package is a named bundle of catalog services priced together.
type Package struct {
	Name             string
	Services         []string
	PathologyOptions []string
}

// HasPathology reports whether the package includes the pathology service.
func (p Package) HasPathology() bool {
	return lo.Contains(p.Services, PathologyService)
}

// SelectionKind tags a Selection.
type SelectionKind int

const (
	// PlainName selects a single catalog service by name.
	PlainName SelectionKind = iota
	// PackageRef selects a named bundle of services.
	PackageRef
)

// Selection is what a user picked on the service selection step: either a
// single service name or a package of services.
type Selection struct {
	Kind             SelectionKind
	Name             string
	Services         []string
	PathologyOptions []string
}

// Plain returns a PlainName selection.
func Plain(name string) Selection {
	return Selection{Kind: PlainName, Name: name}
}

// Bundle returns a PackageRef selection.
func Bundle(name string, services ...string) Selection {
	return Selection{Kind: PackageRef, Name: name, Services: services}
}

var (
	ErrEmptySelection   = errors.New("at least one package is required")
	ErrEmptyPackageName = errors.New("package name is required")
	ErrEmptyPackage     = errors.New("package has no services")
)

// ResolveSelections turns selections into packages. A plain name becomes a
// package of one service with the same name. Blank service names are
// dropped and duplicates inside a package are removed, keeping order.
func ResolveSelections(selections []Selection) ([]Package, error) {
	if len(selections) == 0 {
		return nil, ErrEmptySelection
	}

	packages := make([]Package, 0, len(selections))
	for i, sel := range selections {
		name := strings.TrimSpace(sel.Name)
		if name == "" {
			return nil, fmt.Errorf("selection %d: %w", i, ErrEmptyPackageName)
		}

		switch sel.Kind {
		case PlainName:
			packages = append(packages, Package{Name: name, Services: []string{name}})
		case PackageRef:
			services := lo.Uniq(lo.FilterMap(sel.Services, func(s string, _ int) (string, bool) {
				s = strings.TrimSpace(s)
				return s, s != ""
			}))
			if len(services) == 0 {
				return nil, fmt.Errorf("package %q: %w", name, ErrEmptyPackage)
			}
			pkg := Package{Name: name, Services: services}
			if pkg.HasPathology() {
				pkg.PathologyOptions = lo.Uniq(sel.PathologyOptions)
			}
			packages = append(packages, pkg)
		default:
			return nil, fmt.Errorf("selection %d: unknown kind %d", i, sel.Kind)
		}
	}
	return packages, nil
}

// ReportType is how test reports are delivered.
type ReportType string

const (
	ReportDigital  ReportType = "digital"
	ReportHardCopy ReportType = "hard copy"
)

// ParseReportType accepts "digital" or "hard copy"; blank means digital.
func ParseReportType(raw string) (ReportType, error) {
	switch ReportType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ReportDigital:
		return ReportDigital, nil
	case ReportHardCopy:
		return ReportHardCopy, nil
	default:
		return "", fmt.Errorf("report type must be %q or %q", ReportDigital, ReportHardCopy)
	}
}

// CaseInput is the case volume entered for a package or service.
type CaseInput struct {
	NumberOfDays int
	CasePerDay   int
	ReportType   ReportType
}

// TotalCase is days × cases per day.
func (c CaseInput) TotalCase() int {
	if c.NumberOfDays <= 0 || c.CasePerDay <= 0 {
		return 0
	}
	return c.NumberOfDays * c.CasePerDay
}

// ReportTypeCost is the hard copy surcharge, zero for digital reports.
func (c CaseInput) ReportTypeCost() decimal.Decimal {
	if c.ReportType != ReportHardCopy {
		return decimal.Zero
	}
	return HardCopyRatePerCase.Mul(decimal.NewFromInt(int64(c.TotalCase())))
}
