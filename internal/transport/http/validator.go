package http

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"chessbot/internal/core"
)

var validate = validator.New()

// validationMiddleware parses and validates JSON bodies of the command
// routes that take one. An empty body stands for the zero request.
func validationMiddleware(c *fiber.Ctx) error {
	if c.Method() != fiber.MethodPost {
		return c.Next()
	}

	path := strings.TrimSuffix(c.Path(), "/")
	var requestType any
	switch {
	case strings.HasSuffix(path, "/new"):
		requestType = &core.NewGameRequest{}
	case strings.HasSuffix(path, "/move"):
		requestType = &core.MoveRequest{}
	case strings.HasSuffix(path, "/position"):
		requestType = &core.PositionRequest{}
	case strings.HasSuffix(path, "/undo"):
		requestType = &core.UndoRequest{}
	default:
		return c.Next()
	}

	if len(c.Body()) > 0 {
		if err := c.BodyParser(requestType); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
				Error:   "invalid request body",
				Code:    core.ErrCodeInvalidRequest,
				Details: err.Error(),
			})
		}
	}

	if errs := validate.Struct(requestType); errs != nil {
		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error:   "validation failed",
			Code:    core.ErrCodeInvalidRequest,
			Details: describe(errs),
		})
	}

	c.Locals("validatedBody", requestType)
	return c.Next()
}

func describe(errs error) string {
	verrs, ok := errs.(validator.ValidationErrors)
	if !ok {
		return errs.Error()
	}
	var details strings.Builder
	for _, err := range verrs {
		if details.Len() > 0 {
			details.WriteString("; ")
		}
		switch err.Tag() {
		case "required":
			fmt.Fprintf(&details, "%s is required", err.Field())
		case "oneof":
			fmt.Fprintf(&details, "%s must be one of [%s]", err.Field(), err.Param())
		case "min", "max":
			bound := "at least"
			if err.Tag() == "max" {
				bound = "at most"
			}
			if err.Type().Kind() == reflect.String {
				fmt.Fprintf(&details, "%s must be %s %s characters", err.Field(), bound, err.Param())
			} else {
				fmt.Fprintf(&details, "%s must be %s %s", err.Field(), bound, err.Param())
			}
		default:
			fmt.Fprintf(&details, "%s failed %s validation", err.Field(), err.Tag())
		}
	}
	return details.String()
}

// validatedBody returns the request the validation middleware stored.
// A missing body means the route was registered without validation.
func validatedBody[T any](c *fiber.Ctx) (T, error) {
	body, ok := c.Locals("validatedBody").(*T)
	if !ok || body == nil {
		var zero T
		return zero, fmt.Errorf("validation bypass detected on %s", c.Path())
	}
	return *body, nil
}
