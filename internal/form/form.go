// Package form holds the in-progress settlement submission draft and the
// per-step validation rules shared by the client wizard and the server.
//
// A Store is safe for concurrent use: the email reconciler writes conflict
// state from its own goroutine while the wizard reads and validates.
package form

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Field names a draft field. Values double as JSON keys.
type Field string

const (
	Amount          Field = "amount"
	InitialOffer    Field = "initial_offer"
	PolicyLimit     Field = "policy_limit"
	MedicalExpenses Field = "medical_expenses"
	CaseType        Field = "case_type"
	OtherCaseType   Field = "other_case_type"
	CaseDescription Field = "case_description"
	SettlementPhase Field = "settlement_phase"
	AttorneyName    Field = "attorney_name"
	AttorneyEmail   Field = "attorney_email"
	FirmName        Field = "firm_name"
	FirmWebsite     Field = "firm_website"
	Location        Field = "location"
	PhotoKey        Field = "photo_key"
)

// Step is a wizard page.
type Step int

const (
	StepDetails  Step = 1
	StepAttorney Step = 2
	StepReview   Step = 3
)

func (s Step) String() string {
	switch s {
	case StepDetails:
		return "Settlement Details"
	case StepAttorney:
		return "Attorney Information"
	case StepReview:
		return "Review"
	}
	return fmt.Sprintf("Step(%d)", int(s))
}

// CaseOther is the case type that requires a free-text OtherCaseType.
const CaseOther = "Other"

// CaseTypes lists the accepted case types in display order.
var CaseTypes = []string{
	"Auto Accident",
	"Medical Malpractice",
	"Premises Liability",
	"Product Liability",
	"Workplace Injury",
	"Wrongful Death",
	CaseOther,
}

// SettlementPhases lists the accepted settlement phases in display order.
var SettlementPhases = []string{"Pre-Litigation", "Litigation", "Trial", "Appeal"}

// Validation messages.
const (
	MsgRequired      = "This field is required"
	MsgInvalidAmount = "Enter a valid non-negative amount"
	MsgInvalidEmail  = "Enter a valid email address"
	MsgUnknownOption = "Select one of the listed options"
	MsgEmailInUse    = "This email is already associated with an existing settlement or account"
)

type fieldDef struct {
	step     Step
	monetary bool
}

var fieldDefs = map[Field]fieldDef{
	Amount:          {step: StepDetails, monetary: true},
	InitialOffer:    {step: StepDetails, monetary: true},
	PolicyLimit:     {step: StepDetails, monetary: true},
	MedicalExpenses: {step: StepDetails, monetary: true},
	CaseType:        {step: StepDetails},
	OtherCaseType:   {step: StepDetails},
	CaseDescription: {step: StepDetails},
	SettlementPhase: {step: StepDetails},
	AttorneyName:    {step: StepAttorney},
	AttorneyEmail:   {step: StepAttorney},
	FirmName:        {step: StepAttorney},
	FirmWebsite:     {step: StepAttorney},
	Location:        {step: StepAttorney},
	PhotoKey:        {step: StepAttorney},
}

// Fields returns every known field.
func Fields() []Field {
	out := make([]Field, 0, len(fieldDefs))
	for f := range fieldDefs {
		out = append(out, f)
	}
	return out
}

func def(f Field) fieldDef {
	d, ok := fieldDefs[f]
	if !ok {
		panic(fmt.Sprintf("form: unknown field %q", string(f)))
	}
	return d
}

// IsMonetary reports whether f holds a formatted amount. Panics on an
// unknown field.
func IsMonetary(f Field) bool { return def(f).monetary }

// Draft is a snapshot of every field's value.
type Draft struct {
	Amount          string `json:"amount"`
	InitialOffer    string `json:"initial_offer,omitempty"`
	PolicyLimit     string `json:"policy_limit,omitempty"`
	MedicalExpenses string `json:"medical_expenses,omitempty"`
	CaseType        string `json:"case_type"`
	OtherCaseType   string `json:"other_case_type,omitempty"`
	CaseDescription string `json:"case_description"`
	SettlementPhase string `json:"settlement_phase"`
	AttorneyName    string `json:"attorney_name"`
	AttorneyEmail   string `json:"attorney_email"`
	FirmName        string `json:"firm_name"`
	FirmWebsite     string `json:"firm_website,omitempty"`
	Location        string `json:"location"`
	PhotoKey        string `json:"photo_key,omitempty"`
}

func (d *Draft) ptr(f Field) *string {
	switch f {
	case Amount:
		return &d.Amount
	case InitialOffer:
		return &d.InitialOffer
	case PolicyLimit:
		return &d.PolicyLimit
	case MedicalExpenses:
		return &d.MedicalExpenses
	case CaseType:
		return &d.CaseType
	case OtherCaseType:
		return &d.OtherCaseType
	case CaseDescription:
		return &d.CaseDescription
	case SettlementPhase:
		return &d.SettlementPhase
	case AttorneyName:
		return &d.AttorneyName
	case AttorneyEmail:
		return &d.AttorneyEmail
	case FirmName:
		return &d.FirmName
	case FirmWebsite:
		return &d.FirmWebsite
	case Location:
		return &d.Location
	case PhotoKey:
		return &d.PhotoKey
	}
	panic(fmt.Sprintf("form: unknown field %q", string(f)))
}

// Get returns the value of f. Panics on an unknown field.
func (d Draft) Get(f Field) string { return *d.ptr(f) }

// Sanitized returns a copy with every monetary field reduced to [0-9,.].
func (d Draft) Sanitized() Draft {
	for f, fd := range fieldDefs {
		if fd.monetary {
			p := d.ptr(f)
			*p = SanitizeMoney(*p)
		}
	}
	return d
}

var moneyChars = regexp.MustCompile(`[^0-9,.]`)

// SanitizeMoney strips every character outside [0-9,.].
func SanitizeMoney(s string) string { return moneyChars.ReplaceAllString(s, "") }

// ParseMoney reduces a formatted amount to a number by dropping everything
// except digits and '.'. ok is false when nothing numeric remains or the
// result is not a valid non-negative number.
func ParseMoney(s string) (v float64, ok bool) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool { return emailRe.MatchString(strings.TrimSpace(s)) }

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// validate applies the rules of one step to d, writing failures into errs.
// StepReview has no rules of its own.
func validate(d Draft, step Step, errs map[Field]string) {
	required := func(f Field) bool {
		if strings.TrimSpace(d.Get(f)) == "" {
			errs[f] = MsgRequired
			return false
		}
		return true
	}

	switch step {
	case StepDetails:
		required(Amount)
		for _, f := range []Field{Amount, InitialOffer, PolicyLimit, MedicalExpenses} {
			if v := d.Get(f); strings.TrimSpace(v) != "" {
				if _, ok := ParseMoney(v); !ok {
					errs[f] = MsgInvalidAmount
				}
			}
		}
		if required(CaseType) && !contains(CaseTypes, d.CaseType) {
			errs[CaseType] = MsgUnknownOption
		}
		if d.CaseType == CaseOther {
			required(OtherCaseType)
		}
		if required(SettlementPhase) && !contains(SettlementPhases, d.SettlementPhase) {
			errs[SettlementPhase] = MsgUnknownOption
		}
		required(CaseDescription)
	case StepAttorney:
		required(AttorneyName)
		if required(AttorneyEmail) && !ValidEmail(d.AttorneyEmail) {
			errs[AttorneyEmail] = MsgInvalidEmail
		}
		required(FirmName)
		required(Location)
	}
}

// ValidateDraft applies the rules of steps 1 and 2 to d and returns the
// failures keyed by field; an empty map means d is valid.
func ValidateDraft(d Draft) map[Field]string {
	errs := map[Field]string{}
	validate(d, StepDetails, errs)
	validate(d, StepAttorney, errs)
	return errs
}

// Store holds a mutable draft, its validation errors, and the outstanding
// email-conflict flag set by async email reconciliation.
type Store struct {
	mu            sync.RWMutex
	draft         Draft
	errs          map[Field]string
	emailConflict bool
}

// NewStore returns an empty store.
func NewStore() *Store { return &Store{errs: map[Field]string{}} }

// Get returns the current value of f. Panics on an unknown field.
func (s *Store) Get(f Field) string {
	def(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draft.Get(f)
}

// Set stores value into f. Monetary fields are sanitized in place so only
// digits, ',' and '.' persist. Panics on an unknown field.
func (s *Store) Set(f Field, value string) {
	if def(f).monetary {
		value = SanitizeMoney(value)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.draft.ptr(f) = value
	if f == AttorneyEmail {
		// A different email invalidates the previous conflict result.
		s.emailConflict = false
		if s.errs[AttorneyEmail] == MsgEmailInUse {
			delete(s.errs, AttorneyEmail)
		}
	}
}

// Errors returns a copy of the current error map.
func (s *Store) Errors() map[Field]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Field]string, len(s.errs))
	for k, v := range s.errs {
		out[k] = v
	}
	return out
}

// SetEmailConflict records the outcome of the latest email existence check.
func (s *Store) SetEmailConflict(exists bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emailConflict = exists
	switch {
	case exists:
		s.errs[AttorneyEmail] = MsgEmailInUse
	case s.errs[AttorneyEmail] == MsgEmailInUse:
		delete(s.errs, AttorneyEmail)
	}
}

// EmailConflict reports whether the last email check found a conflict.
func (s *Store) EmailConflict() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.emailConflict
}

// ValidateStep re-runs the rules for step, replacing that step's errors.
// StepReview re-validates steps 1 and 2 and passes only if both are clean.
// It never panics on invalid input.
func (s *Store) ValidateStep(step Step) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps := []Step{step}
	if step == StepReview {
		steps = []Step{StepDetails, StepAttorney}
	}
	ok := true
	for _, st := range steps {
		for f, fd := range fieldDefs {
			if fd.step == st {
				delete(s.errs, f)
			}
		}
		found := map[Field]string{}
		validate(s.draft, st, found)
		if st == StepAttorney && s.emailConflict {
			if _, has := found[AttorneyEmail]; !has {
				found[AttorneyEmail] = MsgEmailInUse
			}
		}
		for f, msg := range found {
			s.errs[f] = msg
		}
		if len(found) > 0 {
			ok = false
		}
	}
	return ok
}

// Draft returns a snapshot of the current values.
func (s *Store) Draft() Draft {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draft
}

// Load replaces the draft with d (monetary fields sanitized) and clears
// errors. Used to restore a draft after a canceled checkout.
func (s *Store) Load(d Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = d.Sanitized()
	s.errs = map[Field]string{}
	s.emailConflict = false
}

// Reset discards the draft, its errors, and any email conflict.
func (s *Store) Reset() { s.Load(Draft{}) }
