package handler_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/circulation/internal/handler"
	"github.com/Astemirdum/library-circulation/circulation/internal/model"
	"github.com/Astemirdum/library-circulation/pkg/auth"
	"github.com/Astemirdum/library-circulation/pkg/middleware"
	"github.com/golang/mock/gomock"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	service_mocks "github.com/Astemirdum/library-circulation/circulation/internal/handler/mocks"
)

var (
	alice   = auth.Principal{UserID: "alice", Role: auth.RoleStudent}
	marian  = auth.Principal{UserID: "marian", Role: auth.RoleLibrarian}
	created = time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)
	due     = time.Date(2024, 10, 8, 12, 0, 0, 0, time.UTC)
)

type request struct {
	method string
	target string
	body   string
	user   *auth.Principal
}

type response struct {
	expectedCode int
	expectedBody string
}

func serve(t *testing.T, h *handler.Handler, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader = http.NoBody
	if req.body != "" {
		body = strings.NewReader(req.body)
	}
	r := httptest.NewRequest(req.method, req.target, body)
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if req.user != nil {
		r.Header.Set(auth.XUserNameHeader, req.user.UserID)
		r.Header.Set(auth.XUserRoleHeader, string(req.user.Role))
	}
	w := httptest.NewRecorder()
	h.NewRouter().ServeHTTP(w, r)
	return w
}

func checkResponse(t *testing.T, w *httptest.ResponseRecorder, resp response) {
	t.Helper()
	require.Equal(t, resp.expectedCode, w.Code)
	if resp.expectedBody != "" {
		require.Equal(t, resp.expectedBody, strings.Trim(w.Body.String(), "\n"))
	}
}

func pendingLoan() model.Loan {
	copyID := int64(7)
	return model.Loan{
		ID:        1,
		UserID:    "alice",
		BookID:    1,
		CopyID:    &copyID,
		DueDate:   due,
		Status:    model.LoanPending,
		Version:   1,
		CreatedAt: created,
	}
}

const pendingLoanJSON = `{"id":1,"userId":"alice","bookId":1,"copyId":7,"dueDate":"2024-10-08T12:00:00Z","loanDate":null,"returnDate":null,"approved":false,"active":false,"message":"Pending","note":"","version":1,"createdAt":"2024-10-01T12:00:00Z"}`

func TestHandler_Health(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	h := handler.New(service_mocks.NewMockCirculationService(c), zap.NewNop())

	w := serve(t, h, request{method: http.MethodGet, target: "/manage/health"})
	checkResponse(t, w, response{expectedCode: http.StatusOK, expectedBody: "OK"})
}

func TestHandler_CreateLoan(t *testing.T) {
	t.Parallel()
	type mockBehavior func(r *service_mocks.MockCirculationService)

	tests := []struct {
		name         string
		mockBehavior mockBehavior
		request      request
		response     response
	}{
		{
			name: "ok",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					CreateLoan(gomock.Any(), alice, model.CreateLoanRequest{BookID: 1, DueDate: due}).
					Return(pendingLoan(), nil)
			},
			request: request{
				method: http.MethodPost, target: "/api/v1/loans", user: &alice,
				body: `{"bookId":1,"dueDate":"2024-10-08T12:00:00Z"}`,
			},
			response: response{expectedCode: http.StatusCreated, expectedBody: pendingLoanJSON},
		},
		{
			name: "err. no copy",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					CreateLoan(gomock.Any(), alice, gomock.Any()).
					Return(model.Loan{}, errs.ErrUnavailable)
			},
			request: request{
				method: http.MethodPost, target: "/api/v1/loans", user: &alice,
				body: `{"bookId":1,"dueDate":"2024-10-08T12:00:00Z"}`,
			},
			response: response{expectedCode: http.StatusForbidden, expectedBody: `{"message":"no copy available"}`},
		},
		{
			name:         "err. anonymous",
			mockBehavior: func(r *service_mocks.MockCirculationService) {},
			request: request{
				method: http.MethodPost, target: "/api/v1/loans",
				body: `{"bookId":1,"dueDate":"2024-10-08T12:00:00Z"}`,
			},
			response: response{expectedCode: http.StatusUnauthorized, expectedBody: `{"message":"user-name is empty"}`},
		},
		{
			name:         "err. book required",
			mockBehavior: func(r *service_mocks.MockCirculationService) {},
			request: request{
				method: http.MethodPost, target: "/api/v1/loans", user: &alice,
				body: `{"dueDate":"2024-10-08T12:00:00Z"}`,
			},
			response: response{expectedCode: http.StatusBadRequest},
		},
		{
			name: "err. internal",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					CreateLoan(gomock.Any(), alice, gomock.Any()).
					Return(model.Loan{}, errors.New("db internal"))
			},
			request: request{
				method: http.MethodPost, target: "/api/v1/loans", user: &alice,
				body: `{"bookId":1,"dueDate":"2024-10-08T12:00:00Z"}`,
			},
			response: response{expectedCode: http.StatusInternalServerError, expectedBody: `{"message":"internal error"}`},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockCirculationService(c)
			h := handler.New(svc, zap.NewExample().Named("test"))

			tt.mockBehavior(svc)
			w := serve(t, h, tt.request)
			checkResponse(t, w, tt.response)
		})
	}
}

func TestHandler_LoanTransitions(t *testing.T) {
	t.Parallel()
	type mockBehavior func(r *service_mocks.MockCirculationService)

	tests := []struct {
		name         string
		mockBehavior mockBehavior
		request      request
		response     response
	}{
		{
			name:         "err. invalid id",
			mockBehavior: func(r *service_mocks.MockCirculationService) {},
			request:      request{method: http.MethodGet, target: "/api/v1/loans/abc", user: &alice},
			response:     response{expectedCode: http.StatusBadRequest, expectedBody: `{"message":"id is invalid"}`},
		},
		{
			name: "get. not found",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().GetLoan(gomock.Any(), alice, int64(5)).Return(model.Loan{}, errs.ErrNotFound)
			},
			request:  request{method: http.MethodGet, target: "/api/v1/loans/5", user: &alice},
			response: response{expectedCode: http.StatusNotFound, expectedBody: `{"message":"not found"}`},
		},
		{
			name: "approve. forbidden",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().ApproveLoan(gomock.Any(), alice, int64(1)).
					Return(model.Loan{}, errors.Wrap(errs.ErrForbidden, "role Student"))
			},
			request:  request{method: http.MethodPost, target: "/api/v1/loans/1/approve", user: &alice},
			response: response{expectedCode: http.StatusForbidden, expectedBody: `{"message":"role Student: forbidden"}`},
		},
		{
			name: "return. ok",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				loan := pendingLoan()
				returned := due.Add(-time.Hour)
				loan.ReturnDate = &returned
				loan.Status = model.LoanReturned
				loan.Version = 3
				r.EXPECT().ReturnLoan(gomock.Any(), alice, int64(1)).
					Return(model.ReturnResult{Loan: loan}, nil)
			},
			request: request{method: http.MethodPost, target: "/api/v1/loans/1/return", user: &alice},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"loan":{"id":1,"userId":"alice","bookId":1,"copyId":7,"dueDate":"2024-10-08T12:00:00Z","loanDate":null,"returnDate":"2024-10-08T11:00:00Z","approved":false,"active":false,"message":"Returned","note":"","version":3,"createdAt":"2024-10-01T12:00:00Z"},"overdue":false,"overdueDays":0}`,
			},
		},
		{
			name: "return. twice",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().ReturnLoan(gomock.Any(), alice, int64(1)).
					Return(model.ReturnResult{}, errors.Wrap(errs.ErrConflict, "loan is Returned"))
			},
			request:  request{method: http.MethodPost, target: "/api/v1/loans/1/return", user: &alice},
			response: response{expectedCode: http.StatusConflict, expectedBody: `{"message":"loan is Returned: conflict"}`},
		},
		{
			name: "reject. ok",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				loan := pendingLoan()
				loan.Status = model.LoanRejected
				loan.Note = "damaged card"
				r.EXPECT().RejectLoan(gomock.Any(), marian, int64(1), model.RejectLoanRequest{Message: "damaged card"}).
					Return(loan, nil)
			},
			request: request{
				method: http.MethodPost, target: "/api/v1/loans/1/reject", user: &marian,
				body: `{"message":"damaged card"}`,
			},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: strings.Replace(strings.Replace(pendingLoanJSON, `"Pending"`, `"Rejected"`, 1), `"note":""`, `"note":"damaged card"`, 1),
			},
		},
		{
			name: "patch. stale version",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().UpdateLoan(gomock.Any(), marian, int64(1), gomock.Any()).
					Return(model.Loan{}, errs.ErrConflict)
			},
			request: request{
				method: http.MethodPatch, target: "/api/v1/loans/1", user: &marian,
				body: `{"note":"renewed","version":1}`,
			},
			response: response{expectedCode: http.StatusConflict, expectedBody: `{"message":"conflict"}`},
		},
		{
			name:         "patch. version required",
			mockBehavior: func(r *service_mocks.MockCirculationService) {},
			request: request{
				method: http.MethodPatch, target: "/api/v1/loans/1", user: &marian,
				body: `{"note":"renewed"}`,
			},
			response: response{expectedCode: http.StatusBadRequest},
		},
		{
			name: "delete. ok",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().DeleteLoan(gomock.Any(), marian, int64(1)).Return(nil)
			},
			request:  request{method: http.MethodDelete, target: "/api/v1/loans/1", user: &marian},
			response: response{expectedCode: http.StatusNoContent},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockCirculationService(c)
			h := handler.New(svc, zap.NewNop())

			tt.mockBehavior(svc)
			w := serve(t, h, tt.request)
			checkResponse(t, w, tt.response)
		})
	}
}

func TestHandler_Reservations(t *testing.T) {
	t.Parallel()
	copyID := int64(2)
	rsv := model.Reservation{
		ID: 4, UserID: "alice", BookID: 1, CopyID: &copyID,
		ReservationDate: created, ExpireDate: created.Add(24 * time.Hour),
		Approved: true, Active: true, Status: model.ReservationApproved, Version: 2,
	}

	c := gomock.NewController(t)
	defer c.Finish()
	svc := service_mocks.NewMockCirculationService(c)
	h := handler.New(svc, zap.NewNop())

	svc.EXPECT().ApproveReservation(gomock.Any(), marian, int64(4)).Return(rsv, nil)
	w := serve(t, h, request{method: http.MethodPost, target: "/api/v1/reservations/4/approve", user: &marian})
	checkResponse(t, w, response{
		expectedCode: http.StatusOK,
		expectedBody: `{"id":4,"userId":"alice","bookId":1,"copyId":2,"reservationDate":"2024-10-01T12:00:00Z","expireDate":"2024-10-02T12:00:00Z","approved":true,"active":true,"message":"Approved","version":2}`,
	})

	svc.EXPECT().CreateReservation(gomock.Any(), alice, model.CreateReservationRequest{BookID: 1}).
		Return(model.Reservation{}, errors.Wrap(errs.ErrConflict, "book is on loan or already reserved"))
	w = serve(t, h, request{method: http.MethodPost, target: "/api/v1/reservations", user: &alice, body: `{"bookId":1}`})
	checkResponse(t, w, response{expectedCode: http.StatusConflict, expectedBody: `{"message":"book is on loan or already reserved: conflict"}`})

	svc.EXPECT().ListReservations(gomock.Any(), alice).Return(nil, errors.Wrap(errs.ErrForbidden, "role Student"))
	w = serve(t, h, request{method: http.MethodGet, target: "/api/v1/reservations/list", user: &alice})
	checkResponse(t, w, response{expectedCode: http.StatusForbidden})

	svc.EXPECT().DeleteReservation(gomock.Any(), marian, int64(4)).Return(errors.Wrap(errs.ErrForbidden, "reservation is active"))
	w = serve(t, h, request{method: http.MethodDelete, target: "/api/v1/reservations/4", user: &marian})
	checkResponse(t, w, response{expectedCode: http.StatusForbidden, expectedBody: `{"message":"reservation is active: forbidden"}`})
}

func TestHandler_RecordPayment(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	svc := service_mocks.NewMockCirculationService(c)
	h := handler.New(svc, zap.NewNop())

	svc.EXPECT().RecordPayment(gomock.Any(), alice, int64(3), gomock.Any()).
		DoAndReturn(func(_ interface{}, p auth.Principal, billID int64, req model.RecordPaymentRequest) (model.Payment, error) {
			require.True(t, decimal.RequireFromString("2.5").Equal(req.Amount))
			return model.Payment{
				ID: "3f0e9a4c-1b1e-4b8a-9b55-3b8f6f3d2a11", BillID: billID, UserID: p.UserID,
				Amount: req.Amount, PaymentDate: created, Method: req.Method,
			}, nil
		})
	w := serve(t, h, request{
		method: http.MethodPost, target: "/api/v1/bills/3/payments", user: &alice,
		body: `{"amount":"2.50","paymentMethod":"cash"}`,
	})
	checkResponse(t, w, response{
		expectedCode: http.StatusCreated,
		expectedBody: `{"id":"3f0e9a4c-1b1e-4b8a-9b55-3b8f6f3d2a11","billId":3,"userId":"alice","amount":"2.5","paymentDate":"2024-10-01T12:00:00Z","paymentMethod":"cash"}`,
	})

	w = serve(t, h, request{
		method: http.MethodPost, target: "/api/v1/bills/3/payments", user: &alice,
		body: `{"amount":"2.50"}`,
	})
	checkResponse(t, w, response{expectedCode: http.StatusBadRequest})

	svc.EXPECT().RecordPayment(gomock.Any(), alice, int64(3), gomock.Any()).
		Return(model.Payment{}, errors.Wrap(errs.ErrValidation, "payment exceeds remaining 1.00"))
	w = serve(t, h, request{
		method: http.MethodPost, target: "/api/v1/bills/3/payments", user: &alice,
		body: `{"amount":"9","paymentMethod":"card"}`,
	})
	checkResponse(t, w, response{expectedCode: http.StatusBadRequest, expectedBody: `{"message":"payment exceeds remaining 1.00: validation error"}`})
}

func TestHandler_JwtAuthentication(t *testing.T) {
	t.Parallel()
	key := "circulation-test-key"
	token, err := auth.NewToken([]byte(key), auth.Profile{Username: "alice", Role: auth.RoleStudent}, time.Hour, time.Now())
	require.NoError(t, err)

	c := gomock.NewController(t)
	defer c.Finish()
	svc := service_mocks.NewMockCirculationService(c)
	h := handler.New(svc, zap.NewNop(), handler.WithJWTKey(key))

	svc.EXPECT().ListUserBills(gomock.Any(), alice).Return([]model.Bill{}, nil)
	r := httptest.NewRequest(http.MethodGet, "/api/v1/bills", http.NoBody)
	r.Header.Set(middleware.AuthorizationHeader, "Bearer "+token)
	w := httptest.NewRecorder()
	h.NewRouter().ServeHTTP(w, r)
	checkResponse(t, w, response{expectedCode: http.StatusOK, expectedBody: `[]`})

	w = serve(t, h, request{method: http.MethodGet, target: "/api/v1/bills", user: &alice})
	checkResponse(t, w, response{expectedCode: http.StatusUnauthorized, expectedBody: `{"message":"No Authorization Header"}`})
}

func TestHandler_Swagger(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	h := handler.New(service_mocks.NewMockCirculationService(c), zap.NewNop())

	w := serve(t, h, request{method: http.MethodGet, target: "/swagger/doc.json"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"/loans/{id}/return"`)
	require.Contains(t, w.Body.String(), `"basePath": "/api/v1"`)
}

func TestHandler_DeleteBill(t *testing.T) {
	t.Parallel()
	root := auth.Principal{UserID: "root", Role: auth.RoleAdmin}

	c := gomock.NewController(t)
	defer c.Finish()
	svc := service_mocks.NewMockCirculationService(c)
	h := handler.New(svc, zap.NewNop())

	svc.EXPECT().DeleteBill(gomock.Any(), root, int64(7)).Return(nil)
	w := serve(t, h, request{method: http.MethodDelete, target: "/api/v1/bills/7", user: &root})
	checkResponse(t, w, response{expectedCode: http.StatusNoContent})

	svc.EXPECT().DeleteBill(gomock.Any(), root, int64(8)).Return(errors.Wrap(errs.ErrForbidden, "bill 8 has payments"))
	w = serve(t, h, request{method: http.MethodDelete, target: "/api/v1/bills/8", user: &root})
	checkResponse(t, w, response{expectedCode: http.StatusForbidden, expectedBody: `{"message":"bill 8 has payments: forbidden"}`})

	w = serve(t, h, request{method: http.MethodDelete, target: "/api/v1/bills/x", user: &root})
	checkResponse(t, w, response{expectedCode: http.StatusBadRequest})
}
