package handler

import (
	"net/http"

	"github.com/Astemirdum/library-circulation/circulation/internal/model"
	"github.com/labstack/echo/v4"
)

// CreateReservation godoc
// @Summary Reserve a book
// @Tags reservations
// @Produce json
// @Param request body model.CreateReservationRequest true "request"
// @Success 201 {object} model.Reservation
// @Failure 400,401,404,409 {object} echo.HTTPError
// @Router /reservations [post]
func (h *Handler) CreateReservation(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req model.CreateReservationRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	rsv, err := h.circulationSvc.CreateReservation(c.Request().Context(), p, req)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusCreated, rsv)
}

// GetUserReservations godoc
// @Summary List the caller's reservations
// @Tags reservations
// @Produce json
// @Success 200 {array} model.Reservation
// @Failure 401 {object} echo.HTTPError
// @Router /reservations [get]
func (h *Handler) GetUserReservations(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	rsv, err := h.circulationSvc.ListUserReservations(c.Request().Context(), p)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, rsv)
}

// ListReservations godoc
// @Summary List all reservations
// @Tags reservations
// @Produce json
// @Success 200 {array} model.Reservation
// @Failure 401,403 {object} echo.HTTPError
// @Router /reservations/list [get]
func (h *Handler) ListReservations(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	rsv, err := h.circulationSvc.ListReservations(c.Request().Context(), p)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, rsv)
}

// GetReservation godoc
// @Summary Get a reservation
// @Tags reservations
// @Produce json
// @Param id path int true "id"
// @Success 200 {object} model.Reservation
// @Failure 400,403,404 {object} echo.HTTPError
// @Router /reservations/{id} [get]
func (h *Handler) GetReservation(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	rsv, err := h.circulationSvc.GetReservation(c.Request().Context(), p, id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, rsv)
}

// ApproveReservation godoc
// @Summary Approve a reservation and hold a copy
// @Tags reservations
// @Produce json
// @Param id path int true "id"
// @Success 200 {object} model.Reservation
// @Failure 403,404,409 {object} echo.HTTPError
// @Router /reservations/{id}/approve [post]
func (h *Handler) ApproveReservation(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	rsv, err := h.circulationSvc.ApproveReservation(c.Request().Context(), p, id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, rsv)
}

// DeleteReservation godoc
// @Summary Delete an inactive reservation
// @Tags reservations
// @Produce json
// @Param id path int true "id"
// @Success 204
// @Failure 403,404 {object} echo.HTTPError
// @Router /reservations/{id} [delete]
func (h *Handler) DeleteReservation(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.circulationSvc.DeleteReservation(c.Request().Context(), p, id); err != nil {
		return h.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
