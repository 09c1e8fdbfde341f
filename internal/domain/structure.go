package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	customError "github.com/segyhp/fee-engine/pkg/errors"
)

type StructureStatus string

const (
	StructureStatusDraft    StructureStatus = "draft"
	StructureStatusApproved StructureStatus = "approved"
	StructureStatusActive   StructureStatus = "active"
	StructureStatusArchived StructureStatus = "archived"
)

// FeeHead is one line item of a fee structure.
type FeeHead struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Amount     Money  `json:"amount"`
	IsOptional bool   `json:"is_optional"`
}

// FeeStructure is a versioned fee template for one academic scope.
type FeeStructure struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	Code              string          `json:"code" db:"code"`
	Name              string          `json:"name" db:"name"`
	AcademicYear      string          `json:"academic_year" db:"academic_year"`
	Semester          int             `json:"semester" db:"semester"`
	Department        string          `json:"department" db:"department"`
	Course            string          `json:"course" db:"course"`
	Currency          string          `json:"currency" db:"currency"`
	FeeHeads          FeeHeads        `json:"fee_heads" db:"fee_heads"`
	TotalMandatory    Money           `json:"total_mandatory" db:"total_mandatory"`
	TotalOptional     Money           `json:"total_optional" db:"total_optional"`
	ApprovedTotal     Money           `json:"approved_total" db:"approved_total"`
	Status            StructureStatus `json:"status" db:"status"`
	Version           int             `json:"version" db:"version"`
	ParentStructureID *uuid.UUID      `json:"parent_structure_id,omitempty" db:"parent_structure_id"`
	IsLocked          bool            `json:"is_locked" db:"is_locked"`
	LockedAt          *time.Time      `json:"locked_at,omitempty" db:"locked_at"`
	LockReason        string          `json:"lock_reason,omitempty" db:"lock_reason"`
	ApprovedBy        string          `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt        *time.Time      `json:"approved_at,omitempty" db:"approved_at"`
	ApprovalRemarks   string          `json:"approval_remarks,omitempty" db:"approval_remarks"`
	EffectiveFrom     *time.Time      `json:"effective_from,omitempty" db:"effective_from"`
	ArchivedAt        *time.Time      `json:"archived_at,omitempty" db:"archived_at"`
	CreatedBy         string          `json:"created_by" db:"created_by"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// RecalculateTotals derives the mandatory, optional and approved totals from
// the fee heads. A student taking every optional head must still fit in
// MaxMoney, so the grand total is checked as well.
func (s *FeeStructure) RecalculateTotals() error {
	var mandatoryHeads, optionalHeads []Money
	for _, head := range s.FeeHeads {
		if head.IsOptional {
			optionalHeads = append(optionalHeads, head.Amount)
		} else {
			mandatoryHeads = append(mandatoryHeads, head.Amount)
		}
	}
	mandatory, err := SumMoney(mandatoryHeads...)
	if err != nil {
		return feeHeadTotalError(err)
	}
	optional, err := SumMoney(optionalHeads...)
	if err != nil {
		return feeHeadTotalError(err)
	}
	if _, err := SumMoney(mandatory, optional); err != nil {
		return feeHeadTotalError(err)
	}
	s.TotalMandatory = mandatory
	s.TotalOptional = optional
	s.ApprovedTotal = mandatory
	return nil
}

func feeHeadTotalError(err error) error {
	return customError.WrapValidation("fee head total out of range",
		customError.FieldError{Field: "fee_heads", Message: err.Error()})
}

// ValidateFeeHeads checks the line items after totals were recalculated.
func (s *FeeStructure) ValidateFeeHeads() error {
	if len(s.FeeHeads) == 0 {
		return customError.WrapValidation("fee structure needs at least one fee head",
			customError.FieldError{Field: "fee_heads", Message: "required"})
	}

	var fields []customError.FieldError
	seen := make(map[string]bool, len(s.FeeHeads))
	for i, head := range s.FeeHeads {
		field := fmt.Sprintf("fee_heads[%d]", i)
		if strings.TrimSpace(head.Code) == "" {
			fields = append(fields, customError.FieldError{Field: field + ".code", Message: "required"})
		}
		if strings.TrimSpace(head.Name) == "" {
			fields = append(fields, customError.FieldError{Field: field + ".name", Message: "required"})
		}
		if !head.Amount.IsPositive() {
			fields = append(fields, customError.FieldError{Field: field + ".amount", Message: "must be greater than 0"})
		}
		code := strings.ToUpper(head.Code)
		if seen[code] {
			fields = append(fields, customError.FieldError{Field: field + ".code", Message: "duplicate fee head code"})
		}
		seen[code] = true
	}
	if s.TotalMandatory <= 0 && len(fields) == 0 {
		fields = append(fields, customError.FieldError{Field: "fee_heads", Message: "at least one mandatory fee head is required"})
	}

	if len(fields) > 0 {
		return customError.WrapValidation("invalid fee heads", fields...)
	}
	return nil
}

// ReplaceFeeHeads swaps the line items of a draft structure.
func (s *FeeStructure) ReplaceFeeHeads(heads []FeeHead, now time.Time) error {
	if s.IsLocked {
		return customError.WrapStructureLocked(s.Code)
	}
	if s.Status != StructureStatusDraft {
		return customError.WrapInvalidTransition(s.Code, string(s.Status), "edited")
	}

	s.FeeHeads = append(FeeHeads(nil), heads...)
	if err := s.RecalculateTotals(); err != nil {
		return err
	}
	if err := s.ValidateFeeHeads(); err != nil {
		return err
	}
	s.UpdatedAt = now
	return nil
}

// Approve moves a draft to approved.
func (s *FeeStructure) Approve(by, remarks string, now time.Time) error {
	if s.IsLocked {
		return customError.WrapStructureLocked(s.Code)
	}
	if s.Status != StructureStatusDraft {
		return customError.WrapInvalidTransition(s.Code, string(s.Status), string(StructureStatusApproved))
	}
	s.Status = StructureStatusApproved
	s.ApprovedBy = by
	s.ApprovedAt = &now
	s.ApprovalRemarks = remarks
	s.UpdatedAt = now
	return nil
}

// Activate moves an approved structure to active, effective immediately.
func (s *FeeStructure) Activate(now time.Time) error {
	if s.IsLocked {
		return customError.WrapStructureLocked(s.Code)
	}
	if s.Status != StructureStatusApproved {
		return customError.WrapInvalidTransition(s.Code, string(s.Status), string(StructureStatusActive))
	}
	s.Status = StructureStatusActive
	s.EffectiveFrom = &now
	s.UpdatedAt = now
	return nil
}

// Archive retires a structure. It is the only transition a locked structure accepts.
func (s *FeeStructure) Archive(now time.Time) error {
	if s.Status == StructureStatusArchived {
		return customError.WrapInvalidTransition(s.Code, string(s.Status), string(StructureStatusArchived))
	}
	s.Status = StructureStatusArchived
	s.ArchivedAt = &now
	s.UpdatedAt = now
	return nil
}

// Lock freezes the structure. Locking is irreversible.
func (s *FeeStructure) Lock(reason string, now time.Time) error {
	if s.IsLocked {
		return customError.WrapStructureLocked(s.Code)
	}
	s.IsLocked = true
	s.LockedAt = &now
	s.LockReason = reason
	s.UpdatedAt = now
	return nil
}

// IsAssignable reports whether ledgers may be created from the structure.
func (s *FeeStructure) IsAssignable() bool {
	return s.Status == StructureStatusApproved || s.Status == StructureStatusActive
}

// NewVersion copies the structure into a new draft one version higher. The
// receiver is left untouched.
func (s *FeeStructure) NewVersion(by string, now time.Time) *FeeStructure {
	parentID := s.ID
	next := &FeeStructure{
		ID:                uuid.New(),
		Name:              s.Name,
		AcademicYear:      s.AcademicYear,
		Semester:          s.Semester,
		Department:        s.Department,
		Course:            s.Course,
		Currency:          s.Currency,
		FeeHeads:          append(FeeHeads(nil), s.FeeHeads...),
		TotalMandatory:    s.TotalMandatory,
		TotalOptional:     s.TotalOptional,
		ApprovedTotal:     s.ApprovedTotal,
		Status:            StructureStatusDraft,
		Version:           s.Version + 1,
		ParentStructureID: &parentID,
		CreatedBy:         by,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	next.Code = StructureCode(next.AcademicYear, next.Course, next.Department, next.Semester, next.Version)
	return next
}

// HeadByCode finds a fee head, case-insensitively.
func (s *FeeStructure) HeadByCode(code string) (FeeHead, bool) {
	for _, head := range s.FeeHeads {
		if strings.EqualFold(head.Code, code) {
			return head, true
		}
	}
	return FeeHead{}, false
}

// StructureFilter narrows structure listings. Zero values match everything.
type StructureFilter struct {
	AcademicYear string
	Semester     int
	Department   string
	Course       string
	Status       StructureStatus
}

// DTOs for requests

type FeeHeadInput struct {
	Code       string          `json:"code" validate:"required,max=32"`
	Name       string          `json:"name" validate:"required,max=128"`
	Amount     decimal.Decimal `json:"amount" validate:"required,decimal_gt=0"`
	IsOptional bool            `json:"is_optional"`
}

type CreateStructureRequest struct {
	Name         string         `json:"name" validate:"required,max=200"`
	AcademicYear string         `json:"academic_year" validate:"required,academic_year"`
	Semester     int            `json:"semester" validate:"required,gte=1,lte=12"`
	Department   string         `json:"department" validate:"required,max=64"`
	Course       string         `json:"course" validate:"required,max=64"`
	Currency     string         `json:"currency" validate:"omitempty,len=3"`
	FeeHeads     []FeeHeadInput `json:"fee_heads" validate:"required,min=1,dive"`
}

type UpdateFeeHeadsRequest struct {
	FeeHeads []FeeHeadInput `json:"fee_heads" validate:"required,min=1,dive"`
}

type ApproveStructureRequest struct {
	Remarks string `json:"remarks" validate:"max=500"`
}

type LockStructureRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// ToFeeHeads converts validated inputs into fee heads.
func ToFeeHeads(inputs []FeeHeadInput) ([]FeeHead, error) {
	heads := make([]FeeHead, 0, len(inputs))
	for i, in := range inputs {
		amount, err := MoneyFromDecimal(in.Amount)
		if err != nil {
			return nil, customError.WrapValidation("invalid fee head amount",
				customError.FieldError{Field: fmt.Sprintf("fee_heads[%d].amount", i), Message: err.Error()})
		}
		heads = append(heads, FeeHead{
			Code:       strings.ToUpper(strings.TrimSpace(in.Code)),
			Name:       strings.TrimSpace(in.Name),
			Amount:     amount,
			IsOptional: in.IsOptional,
		})
	}
	return heads, nil
}
