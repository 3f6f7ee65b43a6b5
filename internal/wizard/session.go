package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/u4rad/campcost/internal/pricing"
)

// Company is the client organisation entered on the camp details step.
type Company struct {
	ID       string
	Name     string
	State    string
	District string
	Pincode  string
	Landmark string
	Address  string
}

// Camp is one camp location and its date range.
type Camp struct {
	Location  string
	District  string
	State     string
	PinCode   string
	Landmark  string
	StartDate time.Time
	EndDate   time.Time
}

// CampDetails is the input of the camp details step.
type CampDetails struct {
	Company Company
	Camps   []Camp
}

// Session is the state of one user's pass through the wizard. It is not
// safe for concurrent use; Manager serialises access.
type Session struct {
	id          string
	flow        Flow
	username    string
	companyName string
	step        Step

	camp     CampDetails
	packages []pricing.Package
	cases    map[string]pricing.CaseInput

	catalog pricing.Catalog
	tiers   pricing.TierTable

	costs    map[string]pricing.PackageCost
	unpriced map[string][]string
	markups  map[string]decimal.Decimal

	partnerMargin decimal.Decimal
	discount      decimal.Decimal
	couponCode    string

	// finishing is set while the pass is being persisted.
	finishing bool
}

// NewSession starts a logged-in session at the camp details step.
func NewSession(id string, flow Flow, username, companyName string) *Session {
	s := &Session{id: id, flow: flow, username: username, companyName: companyName}
	s.reset()
	s.step = StepCampDetails
	return s
}

func (s *Session) reset() {
	s.step = StepLogin
	s.camp = CampDetails{}
	s.packages = nil
	s.cases = make(map[string]pricing.CaseInput)
	s.costs = make(map[string]pricing.PackageCost)
	s.unpriced = make(map[string][]string)
	s.markups = make(map[string]decimal.Decimal)
	s.partnerMargin = decimal.Zero
	s.discount = decimal.Zero
	s.couponCode = ""
	s.finishing = false
}

func (s *Session) ID() string          { return s.id }
func (s *Session) Flow() Flow          { return s.flow }
func (s *Session) Step() Step          { return s.step }
func (s *Session) Username() string    { return s.username }
func (s *Session) CompanyName() string { return s.companyName }

func (s *Session) require(op string, want Step) error {
	if s.finishing {
		return fmt.Errorf("%w: %s while the pass is being finished", ErrWrongStep, op)
	}
	if s.step != want {
		return wrongStep(op, want, s.step)
	}
	return nil
}

// SubmitCampDetails records the company and its camps.
func (s *Session) SubmitCampDetails(d CampDetails) error {
	if err := s.require("submit camp details", StepCampDetails); err != nil {
		return err
	}

	d.Company.Name = strings.TrimSpace(d.Company.Name)
	if d.Company.Name == "" {
		return invalid("company_name", "company name is required")
	}
	if len(d.Camps) == 0 {
		return invalid("camps", "at least one camp is required")
	}
	for i, c := range d.Camps {
		if strings.TrimSpace(c.Location) == "" {
			return invalid("camps", "camp %d: location is required", i+1)
		}
		if c.StartDate.IsZero() || c.EndDate.IsZero() {
			return invalid("camps", "camp %d: start and end dates are required", i+1)
		}
		if c.EndDate.Before(c.StartDate) {
			return invalid("camps", "camp %d: end date is before start date", i+1)
		}
	}

	s.camp = d
	s.step = StepServiceSelection
	return nil
}

// SelectServices resolves the picked services and packages.
func (s *Session) SelectServices(selections []pricing.Selection) error {
	if err := s.require("select services", StepServiceSelection); err != nil {
		return err
	}

	pkgs, err := pricing.ResolveSelections(selections)
	if err != nil {
		return invalid("packages", "%s", err.Error())
	}
	names := lo.Map(pkgs, func(p pricing.Package, _ int) string { return p.Name })
	if dup := lo.FindDuplicates(names); len(dup) > 0 {
		return invalid("packages", "package %q selected more than once", dup[0])
	}

	s.packages = pkgs
	s.step = StepTestCaseInput
	return nil
}

// SubmitCases records the case volume of every selected package and moves
// to the cost step of the session's flow.
func (s *Session) SubmitCases(cases map[string]pricing.CaseInput) error {
	if err := s.require("submit test cases", StepTestCaseInput); err != nil {
		return err
	}

	for name := range cases {
		if !s.hasPackage(name) {
			return invalid("packages", "unknown package %q", name)
		}
	}
	accepted := make(map[string]pricing.CaseInput, len(s.packages))
	for _, p := range s.packages {
		in, ok := cases[p.Name]
		if !ok || in.CasePerDay <= 0 || in.NumberOfDays <= 0 {
			return invalid("packages."+p.Name, "cases per day and number of days are required")
		}
		if in.ReportType == "" {
			in.ReportType = pricing.ReportDigital
		}
		accepted[p.Name] = in
	}

	s.cases = accepted
	for _, p := range s.packages {
		s.costs[p.Name] = pricing.PackageCost{}
	}
	s.recomputeBaseCosts()

	if s.flow == FlowCustomer {
		s.step = StepSimpleCostCalculation
	} else {
		s.step = StepCostCalculation
	}
	return nil
}

// SetCatalog installs catalog data. It may arrive at any step; base costs of
// packages already priced are recomputed with their additives kept.
func (s *Session) SetCatalog(catalog pricing.Catalog, tiers pricing.TierTable) {
	s.catalog = catalog
	s.tiers = tiers
	s.recomputeBaseCosts()
}

func (s *Session) recomputeBaseCosts() {
	for _, p := range s.packages {
		cost, ok := s.costs[p.Name]
		if !ok {
			continue
		}
		base := pricing.BaseCost(p.Services, s.catalog)
		s.costs[p.Name] = cost.WithBaseCost(base.Total)
		if len(base.Unpriced) > 0 {
			s.unpriced[p.Name] = base.Unpriced
		} else {
			delete(s.unpriced, p.Name)
		}
	}
}

// SetAdditives sets travel, stay and food of a package.
func (s *Session) SetAdditives(pkg string, travel, stay, food decimal.Decimal) error {
	if err := s.require("set additives", StepCostCalculation); err != nil {
		return err
	}
	cost, ok := s.costs[pkg]
	if !ok {
		return invalid("package_name", "unknown package %q", pkg)
	}
	for field, v := range map[string]decimal.Decimal{"travel": travel, "stay": stay, "food": food} {
		if v.IsNegative() {
			return invalid(field, "must not be negative")
		}
	}
	s.costs[pkg] = cost.WithAdditives(travel, stay, food)
	return nil
}

// AdditivesEdit changes some of a package's additives. Nil fields keep
// their current value.
type AdditivesEdit struct {
	Travel *decimal.Decimal
	Stay   *decimal.Decimal
	Food   *decimal.Decimal
}

// EditAdditives applies e on top of the package's current additives.
func (s *Session) EditAdditives(pkg string, e AdditivesEdit) error {
	cur := s.costs[pkg]
	pick := func(v *decimal.Decimal, current decimal.Decimal) decimal.Decimal {
		if v == nil {
			return current
		}
		return *v
	}
	return s.SetAdditives(pkg, pick(e.Travel, cur.Travel), pick(e.Stay, cur.Stay), pick(e.Food, cur.Food))
}

// SetTPrice applies a direct edit of a package's total price.
func (s *Session) SetTPrice(pkg string, tPrice decimal.Decimal) error {
	if err := s.require("set tPrice", StepCostCalculation); err != nil {
		return err
	}
	cost, ok := s.costs[pkg]
	if !ok {
		return invalid("package_name", "unknown package %q", pkg)
	}
	if tPrice.IsNegative() {
		return invalid("tPrice", "must not be negative")
	}
	s.costs[pkg] = cost.WithTPrice(tPrice)
	return nil
}

// ConfirmCosts finishes cost calculation and moves to the cost summary.
func (s *Session) ConfirmCosts() error {
	if err := s.require("confirm costs", StepCostCalculation); err != nil {
		return err
	}
	s.step = StepCostSummary
	return nil
}

// SetMarkup sets the customer markup of a package. Zero or negative
// markups fall back to 1.
func (s *Session) SetMarkup(pkg string, markup decimal.Decimal) error {
	if err := s.require("set markup", StepCostSummary); err != nil {
		return err
	}
	if !s.hasPackage(pkg) {
		return invalid("package_name", "unknown package %q", pkg)
	}
	s.markups[pkg] = pricing.EffectiveMarkup(markup)
	return nil
}

// Summary prices every package with its markup.
func (s *Session) Summary() (pricing.Summary, error) {
	if err := s.require("cost summary", StepCostSummary); err != nil {
		return pricing.Summary{}, err
	}
	lines := make([]pricing.CostSummaryLine, 0, len(s.packages))
	for _, p := range s.packages {
		markup, ok := s.markups[p.Name]
		if !ok {
			markup = decimal.NewFromInt(1)
		}
		lines = append(lines, pricing.SummaryLine(p, s.cases[p.Name].TotalCase(), s.costs[p.Name].TPrice, markup))
	}
	return pricing.Summarize(lines), nil
}

// SetPartnerMargin sets the partner uplift percentage of the simple flow.
func (s *Session) SetPartnerMargin(pct decimal.Decimal) error {
	if err := s.require("set partner margin", StepSimpleCostCalculation); err != nil {
		return err
	}
	if pct.IsNegative() {
		return invalid("partner_margin", "must not be negative")
	}
	s.partnerMargin = pct
	return nil
}

// ApplyCoupon resolves code through v and applies the result. On any
// failure the discount drops to zero; an unknown code is reported as a
// ValidationError.
func (s *Session) ApplyCoupon(ctx context.Context, v pricing.CouponValidator, code string) error {
	if err := s.require("apply coupon", StepSimpleCostCalculation); err != nil {
		return err
	}
	pct, err := pricing.ResolveDiscount(ctx, v, code)
	return s.ApplyDiscount(code, pct, err)
}

// ApplyDiscount applies a coupon already resolved by pricing.ResolveDiscount,
// so the lookup can run outside the session lock. resolveErr is the error
// the lookup returned.
func (s *Session) ApplyDiscount(code string, pct decimal.Decimal, resolveErr error) error {
	if err := s.require("apply coupon", StepSimpleCostCalculation); err != nil {
		return err
	}
	if resolveErr != nil {
		s.discount = decimal.Zero
		s.couponCode = ""
		if errors.Is(resolveErr, pricing.ErrInvalidCoupon) {
			return invalid("coupon", "invalid coupon code")
		}
		return resolveErr
	}
	s.discount = pct
	s.couponCode = strings.TrimSpace(code)
	return nil
}

// ServiceCases lists one line per service of every package, each carrying
// its package's case volume. See pricing.PackageLines for the hard copy cost.
func (s *Session) ServiceCases() []pricing.ServiceCases {
	lines := make([]pricing.ServiceCases, 0)
	for _, p := range s.packages {
		lines = append(lines, pricing.PackageLines(p, s.cases[p.Name], s.catalog)...)
	}
	return lines
}

// Quote prices the session with the volume-tiered rules.
func (s *Session) Quote() (pricing.Quote, error) {
	if err := s.require("quote", StepSimpleCostCalculation); err != nil {
		return pricing.Quote{}, err
	}
	return pricing.SimpleQuote(s.ServiceCases(), s.catalog, s.tiers, s.partnerMargin, s.discount), nil
}

func (s *Session) lastStep() Step {
	if s.flow == FlowCustomer {
		return StepSimpleCostCalculation
	}
	return StepCostSummary
}

// BeginFinish claims the pass for finishing. Until Finish or AbortFinish,
// every step operation and a second BeginFinish fail with ErrWrongStep.
func (s *Session) BeginFinish() error {
	if err := s.require("finish", s.lastStep()); err != nil {
		return err
	}
	s.finishing = true
	return nil
}

// AbortFinish releases a claim taken by BeginFinish and leaves the pass
// where it was.
func (s *Session) AbortFinish() {
	s.finishing = false
}

// Finish ends the pass and returns the session to the login step. It is
// valid from the last step of either flow, claimed or not.
func (s *Session) Finish() error {
	if s.step != s.lastStep() {
		return wrongStep("finish", s.lastStep(), s.step)
	}
	s.reset()
	return nil
}

func (s *Session) hasPackage(name string) bool {
	return lo.ContainsBy(s.packages, func(p pricing.Package) bool { return p.Name == name })
}

// PackageState is the per-package view of a session.
type PackageState struct {
	Package  pricing.Package
	Cases    pricing.CaseInput
	Cost     pricing.PackageCost
	Markup   decimal.Decimal
	Unpriced []string
}

// State is a read-only copy of a session.
type State struct {
	ID            string
	Flow          Flow
	Step          Step
	Username      string
	CompanyName   string
	Camp          CampDetails
	Packages      []PackageState
	PartnerMargin decimal.Decimal
	Discount      decimal.Decimal
	CouponCode    string
}

// Snapshot copies the session state.
func (s *Session) Snapshot() State {
	st := State{
		ID:            s.id,
		Flow:          s.flow,
		Step:          s.step,
		Username:      s.username,
		CompanyName:   s.companyName,
		Camp:          CampDetails{Company: s.camp.Company, Camps: append([]Camp(nil), s.camp.Camps...)},
		PartnerMargin: s.partnerMargin,
		Discount:      s.discount,
		CouponCode:    s.couponCode,
	}
	for _, p := range s.packages {
		markup, ok := s.markups[p.Name]
		if !ok {
			markup = decimal.NewFromInt(1)
		}
		st.Packages = append(st.Packages, PackageState{
			Package:  p,
			Cases:    s.cases[p.Name],
			Cost:     s.costs[p.Name],
			Markup:   markup,
			Unpriced: s.unpriced[p.Name],
		})
	}
	return st
}
