package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"sensorchat-backend/internal/llm"
	"sensorchat-backend/internal/model"
	"sensorchat-backend/internal/quota"
	"sensorchat-backend/internal/sensorapi"
	"sensorchat-backend/internal/store"
)

// Gateway is the slice of the resilient client the handlers use.
type Gateway interface {
	Health(ctx context.Context) error
	Devices(ctx context.Context) ([]model.Device, error)
	DeviceInfo(ctx context.Context, deviceID string) (*model.Device, error)
	Readings(ctx context.Context, q sensorapi.ReadingsQuery) (sensorapi.ReadingsResult, error)
}

// AnswerGenerator produces natural-language answers from readings.
type AnswerGenerator interface {
	Generate(ctx context.Context, question string, readings []model.Reading) llm.Answer
	Model() string
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	gateway Gateway
	llm     AnswerGenerator
	quota   *quota.Tracker
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, gateway Gateway, generator AnswerGenerator, tracker *quota.Tracker, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:   s,
		gateway: gateway,
		llm:     generator,
		quota:   tracker,
		webpush: webpushOptions,
	}
}

// abortUnreachable writes the typed "system temporarily unreachable" body so
// clients can tell an outage apart from an empty result.
func abortUnreachable(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
		"error":   "gateway_unreachable",
		"message": "The sensor system is temporarily unreachable. Please try again shortly.",
		"detail":  err.Error(),
	})
}

// isUnreachable reports whether err is the client's terminal failure.
func isUnreachable(err error) bool {
	return errors.Is(err, sensorapi.ErrUnreachable)
}
