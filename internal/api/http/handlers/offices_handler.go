package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/facility-desk/internal/api/dto"
	"github.com/spec-kit/facility-desk/internal/service"
)

// OfficesHandler serves cascading office filters.
type OfficesHandler struct {
	filters *service.OfficeFilterService
}

// NewOfficesHandler constructs handler.
func NewOfficesHandler(filterService *service.OfficeFilterService) *OfficesHandler {
	return &OfficesHandler{filters: filterService}
}

// Filters handles GET /api/offices/filters/.
func (h *OfficesHandler) Filters(c *fiber.Ctx) error {
	opts, err := h.filters.Options(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(filtersResponse(opts))
}

// Resolve handles GET /api/offices/filters/resolve?region=&city=&office=.
func (h *OfficesHandler) Resolve(c *fiber.Ctx) error {
	officeID, err := optionalInt64(c.Query("office"), "office")
	if err != nil {
		return err
	}
	opts, err := h.filters.Resolve(c.UserContext(), service.FilterSelection{
		Region:   c.Query("region"),
		City:     c.Query("city"),
		OfficeID: officeID,
	})
	if err != nil {
		return err
	}
	return c.JSON(filtersResponse(opts))
}

func filtersResponse(opts *service.FilterOptions) dto.OfficeFiltersResponse {
	resp := dto.OfficeFiltersResponse{
		Success: true,
		Regions: opts.Regions,
		Cities:  opts.Cities,
		Offices: make([]dto.OfficeResponse, 0, len(opts.Offices)),
		Selection: dto.FilterSelection{
			Region:   opts.Selection.Region,
			City:     opts.Selection.City,
			OfficeID: opts.Selection.OfficeID,
		},
	}
	for i := range opts.Offices {
		resp.Offices = append(resp.Offices, *officeResponse(&opts.Offices[i]))
	}
	return resp
}
