package handler

import (
	"net/http"
	"strconv"

	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/pkg/auth"
	md "github.com/Astemirdum/library-circulation/pkg/middleware"
	"github.com/Astemirdum/library-circulation/pkg/validate"
	_ "github.com/Astemirdum/library-circulation/swagger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"
)

type Handler struct {
	circulationSvc CirculationService
	jwtKey         []byte
	log            *zap.Logger
}

type Option func(*Handler)

// WithJWTKey switches the API from gateway identity headers to bearer tokens.
func WithJWTKey(key string) Option {
	return func(h *Handler) {
		if key != "" {
			h.jwtKey = []byte(key)
		}
	}
}

func New(circulationSrv CirculationService, log *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		circulationSvc: circulationSrv,
		log:            log.Named("handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)
	base.GET("/swagger/*", echoSwagger.WrapHandler)

	e.Validator = validate.NewCustomValidator()
	authMW := md.AuthContext
	if len(h.jwtKey) > 0 {
		authMW = md.JwtAuthentication(h.jwtKey)
	}
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig(h.log)),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
		authMW,
	)

	api.POST("/books", h.CreateBook)
	api.GET("/books/:id", h.GetBook)
	api.POST("/books/:id/copies", h.AddCopies)
	api.GET("/books/:id/copies", h.ListCopies)

	api.POST("/reservations", h.CreateReservation)
	api.GET("/reservations", h.GetUserReservations)
	api.GET("/reservations/list", h.ListReservations)
	api.GET("/reservations/:id", h.GetReservation)
	api.POST("/reservations/:id/approve", h.ApproveReservation)
	api.DELETE("/reservations/:id", h.DeleteReservation)

	api.POST("/loans", h.CreateLoan)
	api.GET("/loans", h.GetUserLoans)
	api.GET("/loans/list", h.ListLoans)
	api.GET("/loans/:id", h.GetLoan)
	api.POST("/loans/:id/approve", h.ApproveLoan)
	api.POST("/loans/:id/reject", h.RejectLoan)
	api.POST("/loans/:id/return", h.ReturnLoan)
	api.PATCH("/loans/:id", h.UpdateLoan)
	api.DELETE("/loans/:id", h.DeleteLoan)

	api.GET("/bills", h.GetUserBills)
	api.GET("/bills/list", h.ListBills)
	api.GET("/bills/:id", h.GetBill)
	api.GET("/bills/:id/payments", h.ListPayments)
	api.POST("/bills", h.CreateBill)
	api.PUT("/bills/:id", h.UpdateBill)
	api.POST("/bills/:id/payments", h.RecordPayment)
	api.POST("/bills/:id/reconcile", h.ReconcileBill)
	api.DELETE("/bills/:id", h.DeleteBill)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func principal(c echo.Context) (auth.Principal, error) {
	p, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return auth.Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "user is not authenticated")
	}
	return p, nil
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "id is invalid")
	}
	return id, nil
}

// bind decodes and validates the body, failing with 400 in the validation error shape.
func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, validationError(err))
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, validationError(err))
	}
	return nil
}

func validationError(err error) errs.ValidationErrorResponse {
	var resp errs.ValidationErrorResponse
	resp.Message = "invalid request"
	resp.Errors.AdditionalProperties = err.Error()
	return resp
}

func (h *Handler) httpError(err error) error {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, errs.ErrForbidden), errors.Is(err, errs.ErrUnavailable):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, errs.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	h.log.Error("internal", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}
