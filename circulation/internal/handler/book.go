package handler

import (
	"net/http"

	"github.com/Astemirdum/library-circulation/circulation/internal/model"
	"github.com/labstack/echo/v4"
)

// CreateBook godoc
// @Summary Create a book with copies
// @Tags books
// @Produce json
// @Param request body model.CreateBookRequest true "request"
// @Success 201 {object} model.Inventory
// @Failure 400,401,403 {object} echo.HTTPError
// @Router /books [post]
func (h *Handler) CreateBook(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req model.CreateBookRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	inv, err := h.circulationSvc.CreateBook(c.Request().Context(), p, req)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusCreated, inv)
}

// GetBook godoc
// @Summary Get a book with its copies
// @Tags books
// @Produce json
// @Param id path int true "id"
// @Success 200 {object} model.Inventory
// @Failure 400,404 {object} echo.HTTPError
// @Router /books/{id} [get]
func (h *Handler) GetBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	inv, err := h.circulationSvc.GetBook(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, inv)
}

// AddCopies godoc
// @Summary Add copies to a book
// @Tags books
// @Produce json
// @Param id path int true "id"
// @Param request body model.AddCopiesRequest true "request"
// @Success 201 {object} model.Inventory
// @Failure 400,403,404 {object} echo.HTTPError
// @Router /books/{id}/copies [post]
func (h *Handler) AddCopies(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req model.AddCopiesRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	inv, err := h.circulationSvc.AddCopies(c.Request().Context(), p, id, req)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusCreated, inv)
}

// ListCopies godoc
// @Summary List copies of a book
// @Tags books
// @Produce json
// @Param id path int true "id"
// @Success 200 {array} model.Copy
// @Failure 400,404 {object} echo.HTTPError
// @Router /books/{id}/copies [get]
func (h *Handler) ListCopies(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	copies, err := h.circulationSvc.ListCopies(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, copies)
}
