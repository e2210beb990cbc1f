// Package treasury tracks the company cash position. Every business event
// that moves money through the bank account or the outstanding partner
// positions is recorded as an immutable movement carrying the balances
// before and after, so the whole history can be replayed and audited.
package treasury

import (
	"errors"
	"time"
)

// TransactionType classifies a cash movement.
type TransactionType string

const (
	TxSaleInvoice          TransactionType = "SALE_INVOICE"
	TxClientPayment        TransactionType = "CLIENT_PAYMENT"
	TxPurchaseInvoice      TransactionType = "PURCHASE_INVOICE"
	TxSupplierPayment      TransactionType = "SUPPLIER_PAYMENT"
	TxExternalContribution TransactionType = "EXTERNAL_CONTRIBUTION"
	TxTaxableExpense       TransactionType = "TAXABLE_EXPENSE"
	TxNonTaxableExpense    TransactionType = "NON_TAXABLE_EXPENSE"
	TxTransferOrder        TransactionType = "TRANSFER_ORDER"
)

// PartnerType distinguishes the two sides of the partner book.
type PartnerType string

const (
	PartnerClient   PartnerType = "CLIENT"
	PartnerSupplier PartnerType = "SUPPLIER"
)

// CashBalance is the stored global bank position. InitialBalance and
// StartDate are set once when the treasury is opened and anchor every
// history replay.
type CashBalance struct {
	Amount         float64    `json:"amount"`
	InitialBalance float64    `json:"initialBalance"`
	StartDate      *time.Time `json:"startDate,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// PartnerBalance is the outstanding position of one client or supplier.
type PartnerBalance struct {
	PartnerID string      `json:"partnerId"`
	Type      PartnerType `json:"type,omitempty"`
	Amount    float64     `json:"amount"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Movement is one immutable row of the cash history. Balances before and
// after are captured at write time and never updated.
type Movement struct {
	ID            string          `json:"id"`
	Type          TransactionType `json:"type"`
	Amount        float64         `json:"amount"`
	Label         string          `json:"label"`
	PartnerID     *string         `json:"partnerId,omitempty"`
	PartnerType   *PartnerType    `json:"partnerType,omitempty"`
	SourceID      *string         `json:"sourceId,omitempty"`
	GlobalBefore  float64         `json:"globalBefore"`
	GlobalAfter   float64         `json:"globalAfter"`
	PartnerBefore *float64        `json:"partnerBefore,omitempty"`
	PartnerAfter  *float64        `json:"partnerAfter,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// ProjectedBalance is the bank position adjusted by the open invoice book.
type ProjectedBalance struct {
	Bank            float64 `json:"bank"`
	OpenReceivables float64 `json:"openReceivables"`
	OpenPayables    float64 `json:"openPayables"`
	Projected       float64 `json:"projected"`
}

var (
	ErrUnknownTransactionType = errors.New("treasury: unknown transaction type")
	ErrAmountNotPositive      = errors.New("treasury: amount must be strictly positive")
	ErrLabelRequired          = errors.New("treasury: label is required")
	ErrPartnerRequired        = errors.New("treasury: partner is required")
	ErrMovementNotFound       = errors.New("treasury: movement not found")
	ErrAlreadyInitialized     = errors.New("treasury: opening balance already initialized")
)

// deltas returns the signed impact of a transaction on the global bank
// balance and on the partner outstanding position, for a strictly
// positive amount.
func deltas(t TransactionType, amount float64) (global, partner float64, err error) {
	switch t {
	case TxSaleInvoice, TxPurchaseInvoice:
		return 0, amount, nil
	case TxClientPayment:
		return amount, -amount, nil
	case TxSupplierPayment:
		return -amount, -amount, nil
	case TxExternalContribution:
		return amount, 0, nil
	case TxTaxableExpense, TxNonTaxableExpense, TxTransferOrder:
		return -amount, 0, nil
	default:
		return 0, 0, ErrUnknownTransactionType
	}
}

// touchesPartner reports whether the transaction moves a partner position.
func touchesPartner(t TransactionType) bool {
	switch t {
	case TxSaleInvoice, TxPurchaseInvoice, TxClientPayment, TxSupplierPayment:
		return true
	}
	return false
}

// partnerKind returns which side of the partner book a transaction moves.
func partnerKind(t TransactionType) PartnerType {
	switch t {
	case TxSaleInvoice, TxClientPayment:
		return PartnerClient
	default:
		return PartnerSupplier
	}
}
