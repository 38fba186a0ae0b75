package handler

import (
	"net/http"

	"github.com/Astemirdum/library-circulation/circulation/internal/model"
	"github.com/labstack/echo/v4"
)

// GetUserBills godoc
// @Summary List the caller's bills
// @Tags bills
// @Produce json
// @Success 200 {array} model.Bill
// @Failure 401 {object} echo.HTTPError
// @Router /bills [get]
func (h *Handler) GetUserBills(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	bills, err := h.circulationSvc.ListUserBills(c.Request().Context(), p)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, bills)
}

// ListBills godoc
// @Summary List all bills
// @Tags bills
// @Produce json
// @Success 200 {array} model.Bill
// @Failure 401,403 {object} echo.HTTPError
// @Router /bills/list [get]
func (h *Handler) ListBills(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	bills, err := h.circulationSvc.ListBills(c.Request().Context(), p)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, bills)
}

// GetBill godoc
// @Summary Get a bill
// @Tags bills
// @Produce json
// @Param id path int true "id"
// @Success 200 {object} model.Bill
// @Failure 400,403,404 {object} echo.HTTPError
// @Router /bills/{id} [get]
func (h *Handler) GetBill(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	bill, err := h.circulationSvc.GetBill(c.Request().Context(), p, id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, bill)
}

// ListPayments godoc
// @Summary List payments of a bill
// @Tags bills
// @Produce json
// @Param id path int true "id"
// @Success 200 {array} model.Payment
// @Failure 403,404 {object} echo.HTTPError
// @Router /bills/{id}/payments [get]
func (h *Handler) ListPayments(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	payments, err := h.circulationSvc.ListPayments(c.Request().Context(), p, id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, payments)
}

// CreateBill godoc
// @Summary Create a bill by hand
// @Tags bills
// @Produce json
// @Param request body model.CreateBillRequest true "request"
// @Success 201 {object} model.Bill
// @Failure 400,403,404,409 {object} echo.HTTPError
// @Router /bills [post]
func (h *Handler) CreateBill(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req model.CreateBillRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	bill, err := h.circulationSvc.CreateBill(c.Request().Context(), p, req)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusCreated, bill)
}

// UpdateBill godoc
// @Summary Update a bill
// @Tags bills
// @Produce json
// @Param id path int true "id"
// @Param request body model.UpdateBillRequest true "request"
// @Success 200 {object} model.Bill
// @Failure 400,403,404,409 {object} echo.HTTPError
// @Router /bills/{id} [put]
func (h *Handler) UpdateBill(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req model.UpdateBillRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	bill, err := h.circulationSvc.UpdateBill(c.Request().Context(), p, id, req)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, bill)
}

// RecordPayment godoc
// @Summary Record a payment
// @Tags bills
// @Produce json
// @Param id path int true "id"
// @Param request body model.RecordPaymentRequest true "request"
// @Success 201 {object} model.Payment
// @Failure 400,403,404 {object} echo.HTTPError
// @Router /bills/{id}/payments [post]
func (h *Handler) RecordPayment(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req model.RecordPaymentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	payment, err := h.circulationSvc.RecordPayment(c.Request().Context(), p, id, req)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusCreated, payment)
}

// ReconcileBill godoc
// @Summary Fold payments into the bill
// @Tags bills
// @Produce json
// @Param id path int true "id"
// @Success 200 {object} model.Bill
// @Failure 403,404,409 {object} echo.HTTPError
// @Router /bills/{id}/reconcile [post]
func (h *Handler) ReconcileBill(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	bill, err := h.circulationSvc.ReconcileBill(c.Request().Context(), p, id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, bill)
}

// DeleteBill godoc
// @Summary Delete a settled bill without payments
// @Tags bills
// @Produce json
// @Param id path int true "id"
// @Success 204
// @Failure 403,404 {object} echo.HTTPError
// @Router /bills/{id} [delete]
func (h *Handler) DeleteBill(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.circulationSvc.DeleteBill(c.Request().Context(), p, id); err != nil {
		return h.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
