package handler

import (
	"net/http"

	"github.com/Astemirdum/library-circulation/circulation/internal/model"
	"github.com/labstack/echo/v4"
)

// CreateLoan godoc
// @Summary Request a loan
// @Tags loans
// @Produce json
// @Param request body model.CreateLoanRequest true "request"
// @Success 201 {object} model.Loan
// @Failure 400,401,403,404 {object} echo.HTTPError
// @Router /loans [post]
func (h *Handler) CreateLoan(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req model.CreateLoanRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	loan, err := h.circulationSvc.CreateLoan(c.Request().Context(), p, req)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusCreated, loan)
}

// GetUserLoans godoc
// @Summary List the caller's loans
// @Tags loans
// @Produce json
// @Success 200 {array} model.Loan
// @Failure 401 {object} echo.HTTPError
// @Router /loans [get]
func (h *Handler) GetUserLoans(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	loans, err := h.circulationSvc.ListUserLoans(c.Request().Context(), p)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, loans)
}

// ListLoans godoc
// @Summary List all loans
// @Tags loans
// @Produce json
// @Success 200 {array} model.Loan
// @Failure 401,403 {object} echo.HTTPError
// @Router /loans/list [get]
func (h *Handler) ListLoans(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	loans, err := h.circulationSvc.ListLoans(c.Request().Context(), p)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, loans)
}

// GetLoan godoc
// @Summary Get a loan
// @Tags loans
// @Produce json
// @Param id path int true "id"
// @Success 200 {object} model.Loan
// @Failure 400,403,404 {object} echo.HTTPError
// @Router /loans/{id} [get]
func (h *Handler) GetLoan(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	loan, err := h.circulationSvc.GetLoan(c.Request().Context(), p, id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, loan)
}

// ApproveLoan godoc
// @Summary Approve a pending loan
// @Tags loans
// @Produce json
// @Param id path int true "id"
// @Success 200 {object} model.Loan
// @Failure 403,404,409 {object} echo.HTTPError
// @Router /loans/{id}/approve [post]
func (h *Handler) ApproveLoan(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	loan, err := h.circulationSvc.ApproveLoan(c.Request().Context(), p, id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, loan)
}

// RejectLoan godoc
// @Summary Reject a pending loan
// @Tags loans
// @Produce json
// @Param id path int true "id"
// @Param request body model.RejectLoanRequest true "request"
// @Success 200 {object} model.Loan
// @Failure 403,404,409 {object} echo.HTTPError
// @Router /loans/{id}/reject [post]
func (h *Handler) RejectLoan(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req model.RejectLoanRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	loan, err := h.circulationSvc.RejectLoan(c.Request().Context(), p, id, req)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, loan)
}

// ReturnLoan godoc
// @Summary Return a loaned copy
// @Tags loans
// @Produce json
// @Param id path int true "id"
// @Success 200 {object} model.ReturnResult
// @Failure 403,404,409 {object} echo.HTTPError
// @Router /loans/{id}/return [post]
func (h *Handler) ReturnLoan(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	res, err := h.circulationSvc.ReturnLoan(c.Request().Context(), p, id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// UpdateLoan godoc
// @Summary Update a loan
// @Tags loans
// @Produce json
// @Param id path int true "id"
// @Param request body model.LoanPatch true "request"
// @Success 200 {object} model.Loan
// @Failure 400,403,404,409 {object} echo.HTTPError
// @Router /loans/{id} [patch]
func (h *Handler) UpdateLoan(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var patch model.LoanPatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	loan, err := h.circulationSvc.UpdateLoan(c.Request().Context(), p, id, patch)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, loan)
}

// DeleteLoan godoc
// @Summary Delete a closed loan
// @Tags loans
// @Produce json
// @Param id path int true "id"
// @Success 204
// @Failure 403,404 {object} echo.HTTPError
// @Router /loans/{id} [delete]
func (h *Handler) DeleteLoan(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.circulationSvc.DeleteLoan(c.Request().Context(), p, id); err != nil {
		return h.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
