package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditStructureCreated      AuditAction = "STRUCTURE_CREATED"
	AuditStructureHeadsUpdated AuditAction = "STRUCTURE_HEADS_UPDATED"
	AuditStructureApproved     AuditAction = "STRUCTURE_APPROVED"
	AuditStructureActivated    AuditAction = "STRUCTURE_ACTIVATED"
	AuditStructureVersioned    AuditAction = "STRUCTURE_VERSION_CREATED"
	AuditStructureArchived     AuditAction = "STRUCTURE_ARCHIVED"
	AuditStructureLocked       AuditAction = "STRUCTURE_LOCKED"
	AuditLedgerCreated         AuditAction = "LEDGER_CREATED"
	AuditLedgerClosed          AuditAction = "LEDGER_CLOSED"
	AuditLedgerAgingUpdated    AuditAction = "LEDGER_AGING_UPDATED"
	AuditPaymentRecorded       AuditAction = "PAYMENT_RECORDED"
	AuditReceiptReversed       AuditAction = "RECEIPT_REVERSED"
	AuditOverdueSweep          AuditAction = "OVERDUE_SWEEP_COMPLETED"
)

type EntityType string

const (
	EntityFeeStructure EntityType = "FEE_STRUCTURE"
	EntityLedger       EntityType = "STUDENT_LEDGER"
	EntityReceipt      EntityType = "FEE_RECEIPT"
	EntitySystem       EntityType = "SYSTEM"
)

// FeeAuditLog is a write-once record of a governance or financial action.
type FeeAuditLog struct {
	ID         uuid.UUID    `json:"id" db:"id"`
	Action     AuditAction  `json:"action" db:"action"`
	EntityType EntityType   `json:"entity_type" db:"entity_type"`
	EntityID   string       `json:"entity_id" db:"entity_id"`
	ActorID    string       `json:"actor_id" db:"actor_id"`
	ActorName  string       `json:"actor_name" db:"actor_name"`
	ActorRole  string       `json:"actor_role" db:"actor_role"`
	Before     JSONDocument `json:"before,omitempty" db:"before_snapshot"`
	After      JSONDocument `json:"after,omitempty" db:"after_snapshot"`
	Metadata   Metadata     `json:"metadata,omitempty" db:"metadata"`
	IPAddress  string       `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  string       `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
}

// AuditEntry is what callers hand to the audit log; snapshots are marshalled on append.
type AuditEntry struct {
	Action     AuditAction
	EntityType EntityType
	EntityID   string
	Actor      Actor
	Request    RequestContext
	Before     interface{}
	After      interface{}
	Metadata   Metadata
}

// NewFeeAuditLog materializes an entry at time now.
func NewFeeAuditLog(entry AuditEntry, now time.Time) (*FeeAuditLog, error) {
	before, err := NewJSONDocument(entry.Before)
	if err != nil {
		return nil, err
	}
	after, err := NewJSONDocument(entry.After)
	if err != nil {
		return nil, err
	}
	return &FeeAuditLog{
		ID:         uuid.New(),
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		ActorID:    entry.Actor.ID,
		ActorName:  entry.Actor.Name,
		ActorRole:  entry.Actor.Role,
		Before:     before,
		After:      after,
		Metadata:   entry.Metadata,
		IPAddress:  entry.Request.IPAddress,
		UserAgent:  entry.Request.UserAgent,
		CreatedAt:  now,
	}, nil
}

// AuditFilter selects audit entries. Zero values match everything.
type AuditFilter struct {
	EntityType EntityType
	EntityID   string
	ActorID    string
	Action     AuditAction
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// ActionCount is one row of the action summary.
type ActionCount struct {
	Action AuditAction `json:"action" db:"action"`
	Count  int64       `json:"count" db:"count"`
}
