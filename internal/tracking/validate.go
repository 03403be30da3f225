package tracking

import (
	"strings"

	"github.com/bustracking/bustracking/internal/api/models"
)

func required(field string) models.FieldError {
	return models.FieldError{Field: field, Message: field + " is required", Code: "REQUIRED"}
}

func validateLocation(u LocationUpdate) []models.FieldError {
	var errs []models.FieldError
	if strings.TrimSpace(u.TripID) == "" {
		errs = append(errs, required("trip_id"))
	}
	if err := u.Position.Validate(); err != nil {
		errs = append(errs, models.FieldError{Field: "latitude/longitude", Message: err.Error(), Code: "OUT_OF_RANGE"})
	}
	return errs
}

func validateLifecycle(tripID, routeID string) []models.FieldError {
	var errs []models.FieldError
	if strings.TrimSpace(tripID) == "" {
		errs = append(errs, required("trip_id"))
	}
	if strings.TrimSpace(routeID) == "" {
		errs = append(errs, required("route_id"))
	}
	return errs
}
