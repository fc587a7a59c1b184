package services

import (
	"strings"

	"github.com/tbourn/settlement-showcase/internal/domain"
	"github.com/tbourn/settlement-showcase/internal/form"
)

// recordFromDraft copies a validated draft into a new record owned by id.
// OtherCaseType is kept only for the "Other" case type.
func recordFromDraft(d form.Draft, id Identity) *domain.SettlementRecord {
	rec := &domain.SettlementRecord{
		UserID:          domain.StrPtr(id.UserID),
		TemporaryID:     domain.StrPtr(id.TemporaryID),
		AttorneyName:    strings.TrimSpace(d.AttorneyName),
		AttorneyEmail:   domain.NormalizeEmail(d.AttorneyEmail),
		FirmName:        strings.TrimSpace(d.FirmName),
		FirmWebsite:     strings.TrimSpace(d.FirmWebsite),
		Location:        strings.TrimSpace(d.Location),
		Amount:          d.Amount,
		InitialOffer:    d.InitialOffer,
		PolicyLimit:     d.PolicyLimit,
		MedicalExpenses: d.MedicalExpenses,
		CaseType:        d.CaseType,
		CaseDescription: strings.TrimSpace(d.CaseDescription),
		SettlementPhase: d.SettlementPhase,
		PhotoKey:        strings.TrimSpace(d.PhotoKey),
	}
	if d.CaseType == form.CaseOther {
		rec.OtherCaseType = strings.TrimSpace(d.OtherCaseType)
	}
	return rec
}
