package payment

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

const healthTimeout = 2 * time.Second

// Pinger reports whether a backing service answers.
type Pinger func(ctx context.Context) error

type Controller struct {
	service    IService
	store      IStore
	reconciler IReconciler
	journal    IUnmatchedJournal

	pingDatabase Pinger
	pingRedis    Pinger
}

// NewController wires the HTTP surface. journal may be nil when Redis is
// not configured.
func NewController(service IService, store IStore, reconciler IReconciler, journal IUnmatchedJournal) *Controller {
	return &Controller{service: service, store: store, reconciler: reconciler, journal: journal}
}

func (c *Controller) WithHealth(database, redis Pinger) *Controller {
	c.pingDatabase, c.pingRedis = database, redis
	return c
}

func (c *Controller) InitRoutes(app *fiber.App) {
	app.Post("/payments", c.postPayment)
	app.Post("/payments/callback", c.postCallback)
	app.Get("/payments/:reference", c.getPayment)
	app.Get("/callbacks/unmatched", c.getUnmatched)
	app.Get("/healthz", c.getHealth)
}

func (c *Controller) postPayment(ctx *fiber.Ctx) error {
	var input InitiateInput
	if err := json.Unmarshal(ctx.Body(), &input); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(FailureOutput{
			Message:             "request body must be a JSON object with amount and phoneNumber",
			ErrorClassification: ValidationError,
		})
	}

	payment, err := c.service.Initiate(ctx.UserContext(), input)
	if err != nil {
		var initErr *InitiationError
		if !errors.As(err, &initErr) {
			log.Errorw("initiate payment", "error", err)
			return ctx.SendStatus(fiber.StatusInternalServerError)
		}
		return ctx.Status(statusFor(initErr.Classification)).JSON(FailureOutput{
			Message:             initErr.Message,
			ErrorClassification: initErr.Classification,
		})
	}

	return ctx.Status(fiber.StatusOK).JSON(newInitiateOutput(payment))
}

func statusFor(classification Classification) int {
	switch classification {
	case ValidationError:
		return fiber.StatusBadRequest
	case TransportError:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusBadGateway
	}
}

func (c *Controller) postCallback(ctx *fiber.Ctx) error {
	// The status write must finish even if the gateway hangs up.
	reqCtx := context.WithoutCancel(ctx.UserContext())

	if _, err := c.reconciler.OnCallback(reqCtx, ctx.Body()); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(CallbackAck{ResultCode: 1, ResultDesc: err.Error()})
	}
	return ctx.Status(fiber.StatusOK).JSON(CallbackAck{ResultCode: 0, ResultDesc: "Accepted"})
}

func (c *Controller) getPayment(ctx *fiber.Ctx) error {
	payment, err := c.store.FindByReference(ctx.UserContext(), ctx.Params("reference"))
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return ctx.SendStatus(fiber.StatusNotFound)
		}
		return ctx.SendStatus(fiber.StatusInternalServerError)
	}
	return ctx.Status(fiber.StatusOK).JSON(payment)
}

func (c *Controller) getUnmatched(ctx *fiber.Ctx) error {
	if c.journal == nil {
		return ctx.SendStatus(fiber.StatusServiceUnavailable)
	}

	var dateRange DateRange
	for key, target := range map[string]**time.Time{"from": &dateRange.From, "to": &dateRange.To} {
		raw := ctx.Query(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ctx.SendStatus(fiber.StatusBadRequest)
		}
		*target = &t
	}

	entries, err := c.journal.List(ctx.UserContext(), dateRange)
	if err != nil {
		log.Errorw("list unmatched callbacks", "error", err)
		return ctx.SendStatus(fiber.StatusInternalServerError)
	}
	return ctx.Status(fiber.StatusOK).JSON(entries)
}

func (c *Controller) getHealth(ctx *fiber.Ctx) error {
	reqCtx, cancel := context.WithTimeout(ctx.UserContext(), healthTimeout)
	defer cancel()

	out := HealthOutput{Status: "ok", Database: "up"}
	if c.pingDatabase != nil {
		if err := c.pingDatabase(reqCtx); err != nil {
			out.Status, out.Database = "degraded", "down"
		}
	}
	if c.pingRedis != nil {
		out.Redis = "up"
		if err := c.pingRedis(reqCtx); err != nil {
			out.Status, out.Redis = "degraded", "down"
		}
	}
	return ctx.Status(fiber.StatusOK).JSON(out)
}
