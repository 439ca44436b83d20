package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/spec-kit/facility-desk/internal/events"
	"github.com/spec-kit/facility-desk/internal/repository"
	apperrors "github.com/spec-kit/facility-desk/pkg/util/errorutil"
)

var tracer = otel.Tracer("github.com/spec-kit/facility-desk/internal/service")

// maxWriteAttempts bounds optimistic-update retries on version conflicts.
const maxWriteAttempts = 4

func mapRepoError(err error, resource string, details map[string]any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(resource, details)
	}
	return apperrors.MapError(err)
}

func concurrentModification(requestID int64) error {
	return apperrors.NewConflict("request was modified concurrently, please retry",
		map[string]any{"request_id": requestID})
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if name := field.Tag.Get("json"); name != "" && name != "-" {
			return strings.Split(name, ",")[0]
		}
		return field.Name
	})
	return v
}

// validationError turns validator output into a VALIDATION_FAILED error
// whose details map each offending field to a readable reason.
func validationError(err error) error {
	var verr validator.ValidationErrors
	if !errors.As(err, &verr) {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	details := make(map[string]any, len(verr))
	for _, fe := range verr {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			details[field] = fmt.Sprintf("%s is required", field)
		case "min":
			details[field] = fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		case "max":
			details[field] = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		case "oneof":
			details[field] = fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
		case "gte":
			details[field] = fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
		case "email":
			details[field] = fmt.Sprintf("%s must be a valid email address", field)
		default:
			details[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return apperrors.NewValidationError("invalid input", details)
}

// outboxMessages encodes events so they commit together with the change
// that raised them. The repository fills in the request id.
func outboxMessages(raised ...events.Event) ([]repository.OutboxMessage, error) {
	messages := make([]repository.OutboxMessage, 0, len(raised))
	for _, event := range raised {
		payload, err := events.EncodePayload(event.Payload)
		if err != nil {
			return nil, err
		}
		messages = append(messages, repository.OutboxMessage{
			EventID:   uuid.NewString(),
			EventType: string(event.Type),
			RequestID: event.RequestID,
			ActorID:   event.ActorID,
			Payload:   payload,
		})
	}
	return messages, nil
}

func int64Ptr(v int64) *int64 {
	return &v
}

func sameInt64(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
