package httpapi

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	gocommand "github.com/goliatone/go-command"
	funnel "github.com/goliatone/go-funnels/components/funnel"
	"github.com/goliatone/go-funnels/components/funnel/commands"
	"github.com/goliatone/go-funnels/components/funnel/queries"
)

type peopleService interface {
	People(ctx context.Context, ids []string) ([]funnel.Person, error)
}

type filterDecoder interface {
	Decode(payload []byte) (funnel.FilterSpec, error)
}

type chartRenderer interface {
	Render(title string, result funnel.QueryResult, mode funnel.StepReference) (string, error)
}

// Handlers exposes HTTP endpoints backed by shared commands and queries.
type Handlers struct {
	Run     gocommand.Commander[commands.RunFunnelInput]
	Clear   gocommand.Commander[commands.ClearSlotInput]
	State   gocommand.Querier[queries.SlotStateInput, funnel.State]
	Metrics gocommand.Querier[queries.StepMetricsInput, queries.StepMetricsView]
	People  peopleService
	Charts  chartRenderer
	Filters filterDecoder
}

// Register attaches the funnel routes to router.
func Register(router fiber.Router, h *Handlers) {
	router.Post("/funnels/:slot/query", h.HandleRunQuery)
	router.Get("/funnels/:slot", h.HandleGetSlot)
	router.Delete("/funnels/:slot", h.HandleClearSlot)
	router.Get("/funnels/:slot/chart", h.HandleChart)
	router.Get("/persons", h.HandlePeople)
}

// HandleRunQuery resolves the posted filter in the slot. With async=true the run continues
// in the background and the pending state is returned immediately.
func (h *Handlers) HandleRunQuery(c *fiber.Ctx) error {
	slot := strings.Clone(c.Params("slot"))
	spec, err := h.decode(c.Body())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	refresh := c.QueryBool("refresh", false)

	if c.QueryBool("async", false) {
		go func() {
			_ = h.Run.Execute(context.Background(), commands.RunFunnelInput{Slot: slot, Filters: spec, Refresh: refresh})
		}()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"slot": slot, "status": funnel.StatusPending})
	}

	var result *funnel.QueryResult
	err = h.Run.Execute(c.UserContext(), commands.RunFunnelInput{
		Slot:     slot,
		Filters:  spec,
		Refresh:  refresh,
		OnResult: func(r funnel.QueryResult) { result = &r },
	})
	if err != nil {
		if result != nil {
			return c.Status(statusFor(err)).JSON(result)
		}
		return fiber.NewError(statusFor(err), err.Error())
	}
	if result == nil {
		return fiber.NewError(fiber.StatusConflict, "query superseded by a newer run")
	}
	return c.JSON(result)
}

// HandleGetSlot returns the slot state with derived metrics.
func (h *Handlers) HandleGetSlot(c *fiber.Ctx) error {
	mode, err := parseMode(c.Query("mode"))
	if err != nil {
		return err
	}
	view, err := h.Metrics.Query(c.UserContext(), queries.StepMetricsInput{Slot: c.Params("slot"), Mode: mode})
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(view)
}

// HandleClearSlot cancels and removes the slot.
func (h *Handlers) HandleClearSlot(c *fiber.Ctx) error {
	if err := h.Clear.Execute(c.UserContext(), commands.ClearSlotInput{Slot: strings.Clone(c.Params("slot"))}); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleChart renders the slot's ready result as an HTML chart page.
func (h *Handlers) HandleChart(c *fiber.Ctx) error {
	if h.Charts == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "charts not configured")
	}
	mode, err := parseMode(c.Query("mode"))
	if err != nil {
		return err
	}
	slot := c.Params("slot")
	state, err := h.State.Query(c.UserContext(), queries.SlotStateInput{Slot: slot})
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if !state.IsReady() {
		return fiber.NewError(fiber.StatusConflict, "slot has no ready result")
	}
	title := c.Query("title", slot)
	html, err := h.Charts.Render(title, state.Result, mode)
	if err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	c.Type("html")
	return c.SendString(html)
}

// HandlePeople hydrates the comma separated uuid list.
func (h *Handlers) HandlePeople(c *fiber.Ctx) error {
	if h.People == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "people lookup not configured")
	}
	var ids []string
	for _, id := range strings.Split(c.Query("uuid"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	people, err := h.People.People(c.UserContext(), ids)
	if err != nil {
		return fiber.NewError(statusFor(err), err.Error())
	}
	return c.JSON(fiber.Map{"results": people})
}

func (h *Handlers) decode(body []byte) (funnel.FilterSpec, error) {
	if h.Filters == nil {
		return funnel.FilterSpec{}, errors.New("filter decoder not configured")
	}
	return h.Filters.Decode(body)
}

func parseMode(raw string) (funnel.StepReference, error) {
	switch funnel.StepReference(raw) {
	case "", funnel.StepReferenceTotal:
		return funnel.StepReferenceTotal, nil
	case funnel.StepReferencePrevious:
		return funnel.StepReferencePrevious, nil
	default:
		return "", fiber.NewError(fiber.StatusBadRequest, "mode must be total or previous")
	}
}

func statusFor(err error) int {
	var normErr *funnel.NormalizationError
	var timeoutErr *funnel.TimeoutError
	var remoteErr *funnel.RemoteError
	switch {
	case errors.As(err, &normErr):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &timeoutErr):
		return fiber.StatusGatewayTimeout
	case errors.As(err, &remoteErr):
		return fiber.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
