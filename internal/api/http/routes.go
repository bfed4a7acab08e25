package httpapi

import (
	"errors"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/air-quality-etl/internal/store"
	"github.com/i474232898/air-quality-etl/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app. reader may be
// nil when the warehouse cannot read rows back.
func RegisterRoutes(app *fiber.App, guard *RunGuard, reader weather.RangeReader) {
	v1 := app.Group("/api/v1")

	v1.Get("/window", func(c *fiber.Ctx) error {
		var q windowQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		w := guard.Window(c.UserContext(), q.asOf)
		return c.JSON(fiber.Map{
			"start":    w.Start,
			"end":      w.End,
			"days":     w.Days(),
			"upToDate": w.Empty(),
		})
	})

	v1.Post("/runs", func(c *fiber.Ctx) error {
		res, err := guard.Run(c.UserContext())
		if err != nil {
			if errors.Is(err, ErrRunInProgress) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			// The run itself failed; report its result with the error.
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
				"result":  res,
			})
		}
		return c.JSON(res)
	})

	v1.Get("/daily", func(c *fiber.Ctx) error {
		if reader == nil {
			return fiber.NewError(fiber.StatusNotImplemented, "warehouse does not support reads")
		}

		var q rangeQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rows, err := reader.GetRange(c.UserContext(), q.from, q.to)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no daily rows for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read daily rows")
		}

		return c.JSON(fiber.Map{
			"from": q.from,
			"to":   q.to,
			"rows": rows,
		})
	})
}

// windowQuery holds query parameters for the window endpoint.
type windowQuery struct {
	AsOf string `validate:"omitempty,datetime=2006-01-02"`

	asOf time.Time
}

func (q *windowQuery) bind(c *fiber.Ctx) error {
	q.AsOf = c.Query("asOf")
	if err := validate.Struct(q); err != nil {
		return err
	}

	q.asOf = time.Now()
	if q.AsOf != "" {
		d, err := civil.ParseDate(q.AsOf)
		if err != nil {
			return err
		}
		// Noon keeps the date stable for any zone offset within +-12h.
		q.asOf = time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC)
	}
	return nil
}

// rangeQuery holds query parameters for the daily rows endpoint.
type rangeQuery struct {
	From string `validate:"required,datetime=2006-01-02"`
	To   string `validate:"required,datetime=2006-01-02"`

	from, to civil.Date
}

func (q *rangeQuery) bind(c *fiber.Ctx) error {
	q.From = c.Query("from")
	q.To = c.Query("to")
	if err := validate.Struct(q); err != nil {
		return err
	}

	var err error
	if q.from, err = civil.ParseDate(q.From); err != nil {
		return err
	}
	if q.to, err = civil.ParseDate(q.To); err != nil {
		return err
	}
	if q.to.Before(q.from) {
		return errors.New("to must not be before from")
	}
	return nil
}
