package handler

import (
	"context"

	"github.com/Astemirdum/library-circulation/circulation/internal/model"
	"github.com/Astemirdum/library-circulation/circulation/internal/service"
	"github.com/Astemirdum/library-circulation/pkg/auth"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type CirculationService interface {
	CreateBook(ctx context.Context, p auth.Principal, req model.CreateBookRequest) (model.Inventory, error)
	AddCopies(ctx context.Context, p auth.Principal, bookID int64, req model.AddCopiesRequest) (model.Inventory, error)
	GetBook(ctx context.Context, bookID int64) (model.Inventory, error)
	ListCopies(ctx context.Context, bookID int64) ([]model.Copy, error)

	CreateReservation(ctx context.Context, p auth.Principal, req model.CreateReservationRequest) (model.Reservation, error)
	GetReservation(ctx context.Context, p auth.Principal, id int64) (model.Reservation, error)
	ListUserReservations(ctx context.Context, p auth.Principal) ([]model.Reservation, error)
	ListReservations(ctx context.Context, p auth.Principal) ([]model.Reservation, error)
	ApproveReservation(ctx context.Context, p auth.Principal, id int64) (model.Reservation, error)
	DeleteReservation(ctx context.Context, p auth.Principal, id int64) error

	CreateLoan(ctx context.Context, p auth.Principal, req model.CreateLoanRequest) (model.Loan, error)
	GetLoan(ctx context.Context, p auth.Principal, id int64) (model.Loan, error)
	ListUserLoans(ctx context.Context, p auth.Principal) ([]model.Loan, error)
	ListLoans(ctx context.Context, p auth.Principal) ([]model.Loan, error)
	ApproveLoan(ctx context.Context, p auth.Principal, id int64) (model.Loan, error)
	RejectLoan(ctx context.Context, p auth.Principal, id int64, req model.RejectLoanRequest) (model.Loan, error)
	ReturnLoan(ctx context.Context, p auth.Principal, id int64) (model.ReturnResult, error)
	UpdateLoan(ctx context.Context, p auth.Principal, id int64, patch model.LoanPatch) (model.Loan, error)
	DeleteLoan(ctx context.Context, p auth.Principal, id int64) error

	ListUserBills(ctx context.Context, p auth.Principal) ([]model.Bill, error)
	ListBills(ctx context.Context, p auth.Principal) ([]model.Bill, error)
	GetBill(ctx context.Context, p auth.Principal, id int64) (model.Bill, error)
	ListPayments(ctx context.Context, p auth.Principal, billID int64) ([]model.Payment, error)
	CreateBill(ctx context.Context, p auth.Principal, req model.CreateBillRequest) (model.Bill, error)
	UpdateBill(ctx context.Context, p auth.Principal, id int64, req model.UpdateBillRequest) (model.Bill, error)
	RecordPayment(ctx context.Context, p auth.Principal, billID int64, req model.RecordPaymentRequest) (model.Payment, error)
	ReconcileBill(ctx context.Context, p auth.Principal, billID int64) (model.Bill, error)
	DeleteBill(ctx context.Context, p auth.Principal, id int64) error
}

var _ CirculationService = (*service.Service)(nil)
