package form

import (
	"regexp"
	"sync"
	"testing"
)

func validDraft() Draft {
	return Draft{
		Amount:          "1,250,000",
		InitialOffer:    "250,000.50",
		CaseType:        "Auto Accident",
		CaseDescription: "Rear-end collision on I-35.",
		SettlementPhase: "Pre-Litigation",
		AttorneyName:    "Jane Doe",
		AttorneyEmail:   "jane@doe-law.com",
		FirmName:        "Doe LLP",
		Location:        "Austin, TX",
	}
}

func TestSet_SanitizesMonetaryFields(t *testing.T) {
	s := NewStore()
	s.Set(Amount, "$1,234abc")
	if got := s.Get(Amount); got != "1,234" {
		t.Fatalf("Amount=%q; want %q", got, "1,234")
	}

	only := regexp.MustCompile(`^[0-9,.]*$`)
	for _, in := range []string{"USD 10.5", "€ 9 999,00", "-42", "1e6", "!!", "12\t3"} {
		for _, f := range []Field{Amount, InitialOffer, PolicyLimit, MedicalExpenses} {
			s.Set(f, in)
			if got := s.Get(f); !only.MatchString(got) {
				t.Fatalf("Set(%s,%q) stored %q", f, in, got)
			}
		}
	}

	// Non-monetary fields are stored verbatim.
	s.Set(CaseDescription, "$ not stripped")
	if s.Get(CaseDescription) != "$ not stripped" {
		t.Fatalf("non-monetary field must not be sanitized")
	}
}

func TestValidateStep_DetailsScenario(t *testing.T) {
	s := NewStore()
	s.Set(Amount, "$1,234abc")
	s.Set(CaseDescription, "desc")
	s.Set(SettlementPhase, "Trial")

	if s.ValidateStep(StepDetails) {
		t.Fatalf("step 1 must fail with empty case type")
	}
	errs := s.Errors()
	if errs[CaseType] != MsgRequired {
		t.Fatalf("expected case type error, got %v", errs)
	}
	if _, ok := errs[Amount]; ok {
		t.Fatalf("amount should be valid: %v", errs)
	}

	s.Set(CaseType, CaseOther)
	if s.ValidateStep(StepDetails) || s.Errors()[OtherCaseType] != MsgRequired {
		t.Fatalf("Other requires free-text case type: %v", s.Errors())
	}
	s.Set(OtherCaseType, "Dog bite")
	if !s.ValidateStep(StepDetails) {
		t.Fatalf("step 1 should pass: %v", s.Errors())
	}
	if len(s.Errors()) != 0 {
		t.Fatalf("errors should be cleared: %v", s.Errors())
	}
}

func TestValidateStep_MonetaryMustReduceToNumber(t *testing.T) {
	s := NewStore()
	s.Load(validDraft())
	s.Set(PolicyLimit, "1.2.3")
	if s.ValidateStep(StepDetails) || s.Errors()[PolicyLimit] != MsgInvalidAmount {
		t.Fatalf("expected invalid amount: %v", s.Errors())
	}
	s.Set(PolicyLimit, ",,,")
	if s.ValidateStep(StepDetails) || s.Errors()[PolicyLimit] != MsgInvalidAmount {
		t.Fatalf("expected invalid amount for separators only: %v", s.Errors())
	}
	s.Set(PolicyLimit, "")
	if !s.ValidateStep(StepDetails) {
		t.Fatalf("empty optional amount is fine: %v", s.Errors())
	}
}

func TestValidateStep_AttorneyAndEmailConflict(t *testing.T) {
	s := NewStore()
	s.Set(AttorneyEmail, "not-an-email")
	if s.ValidateStep(StepAttorney) {
		t.Fatalf("step 2 must fail")
	}
	errs := s.Errors()
	for _, f := range []Field{AttorneyName, FirmName, Location} {
		if errs[f] != MsgRequired {
			t.Fatalf("expected required on %s: %v", f, errs)
		}
	}
	if errs[AttorneyEmail] != MsgInvalidEmail {
		t.Fatalf("expected invalid email: %v", errs)
	}

	d := validDraft()
	s.Load(d)
	s.SetEmailConflict(true)
	if s.ValidateStep(StepAttorney) || s.Errors()[AttorneyEmail] != MsgEmailInUse {
		t.Fatalf("conflict must block step 2: %v", s.Errors())
	}
	s.SetEmailConflict(false)
	if !s.ValidateStep(StepAttorney) {
		t.Fatalf("step 2 should pass once conflict clears: %v", s.Errors())
	}

	// Editing the email drops a stale conflict.
	s.SetEmailConflict(true)
	s.Set(AttorneyEmail, "other@doe-law.com")
	if s.EmailConflict() || s.Errors()[AttorneyEmail] != "" {
		t.Fatalf("conflict should reset on email change")
	}
}

func TestValidateStep_ReviewRequiresStepsOneAndTwo(t *testing.T) {
	s := NewStore()
	if s.ValidateStep(StepReview) {
		t.Fatalf("empty draft cannot pass review")
	}
	if len(s.Errors()) == 0 {
		t.Fatalf("review should populate errors from steps 1 and 2")
	}
	s.Load(validDraft())
	if !s.ValidateStep(StepReview) {
		t.Fatalf("valid draft should pass review: %v", s.Errors())
	}
}

func TestValidateDraft_ServerSide(t *testing.T) {
	if errs := ValidateDraft(validDraft()); len(errs) != 0 {
		t.Fatalf("valid draft has errors: %v", errs)
	}
	d := validDraft()
	d.CaseType = "Maritime"
	d.SettlementPhase = "Mediation"
	d.AttorneyEmail = "x@"
	errs := ValidateDraft(d)
	if errs[CaseType] != MsgUnknownOption || errs[SettlementPhase] != MsgUnknownOption || errs[AttorneyEmail] != MsgInvalidEmail {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestUnknownField_Panics(t *testing.T) {
	s := NewStore()
	for name, fn := range map[string]func(){
		"Get":        func() { s.Get(Field("nope")) },
		"Set":        func() { s.Set(Field("nope"), "x") },
		"IsMonetary": func() { IsMonetary(Field("nope")) },
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("%s on unknown field should panic", name)
				}
			}()
			fn()
		}()
	}
}

func TestDraft_SanitizedAndReset(t *testing.T) {
	d := Draft{Amount: "$5k", MedicalExpenses: "USD 1,000.00"}.Sanitized()
	if d.Amount != "5" || d.MedicalExpenses != "1,000.00" {
		t.Fatalf("unexpected sanitize: %+v", d)
	}

	s := NewStore()
	s.Load(validDraft())
	s.SetEmailConflict(true)
	s.Reset()
	if s.Draft() != (Draft{}) || len(s.Errors()) != 0 || s.EmailConflict() {
		t.Fatalf("Reset should clear everything")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); s.Set(Amount, "1,000") }()
		go func() { defer wg.Done(); s.SetEmailConflict(true) }()
		go func() { defer wg.Done(); _ = s.ValidateStep(StepReview) }()
	}
	wg.Wait()
}

func TestStepString(t *testing.T) {
	if StepDetails.String() != "Settlement Details" || StepReview.String() != "Review" || Step(9).String() != "Step(9)" {
		t.Fatalf("unexpected Step strings")
	}
	if len(Fields()) != 14 {
		t.Fatalf("expected 14 fields, got %d", len(Fields()))
	}
}
