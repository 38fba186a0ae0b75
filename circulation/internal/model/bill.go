package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Bill struct {
	ID                 int64           `json:"id" db:"id"`
	LoanID             int64           `json:"loanId" db:"loan_id"`
	UserID             string          `json:"userId" db:"user_id"`
	AmountCharged      decimal.Decimal `json:"amountCharged" db:"amount_charged"`
	CurrentAmountOwing decimal.Decimal `json:"currentAmountOwing" db:"current_amount_owing"`
	BillPaidAmount     decimal.Decimal `json:"billPaidAmount" db:"bill_paid_amount"`
	DaysOverdue        int             `json:"daysOverdue" db:"days_overdue"`
	DueDate            *time.Time      `json:"dueDate" db:"due_date"`
	Settled            bool            `json:"settled" db:"settled"`
	Version            int             `json:"version" db:"version"`
	CreatedAt          time.Time       `json:"createdAt" db:"created_at"`
}

type BillFilter struct {
	UserID string
	LoanID int64
}

type Payment struct {
	ID          string          `json:"id" db:"id"`
	BillID      int64           `json:"billId" db:"bill_id"`
	UserID      string          `json:"userId" db:"user_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	PaymentDate time.Time       `json:"paymentDate" db:"payment_date"`
	Method      string          `json:"paymentMethod" db:"payment_method"`
}

type CreateBillRequest struct {
	LoanID             int64           `json:"loanId" validate:"required,gt=0"`
	CurrentAmountOwing decimal.Decimal `json:"currentAmountOwing"`
	BillPaidAmount     decimal.Decimal `json:"billPaidAmount"`
	DaysOverdue        int             `json:"daysOverdue" validate:"gte=0"`
}

type UpdateBillRequest struct {
	CurrentAmountOwing decimal.Decimal `json:"currentAmountOwing"`
	BillPaidAmount     decimal.Decimal `json:"billPaidAmount"`
	Version            int             `json:"version"`
}

type RecordPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate time.Time       `json:"paymentDate"`
	Method      string          `json:"paymentMethod" validate:"required,max=50"`
}
