// Package validation checks settings structs and the reachability of the
// services the backend depends on.
package validation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/zfogg/friendlypix/internal/logger"
	"go.uber.org/zap"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by the environment variable that sets them
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Struct validates s against its `validate` tags. Failures are reported
// one per field, named by the field's `env` tag when it has one.
func Struct(s any) error {
	err := validate.Struct(s)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s, got %v", fe.Field(), fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s, got %v", fe.Field(), fe.Param(), fe.Value())
	case "lt":
		return fmt.Sprintf("%s must be less than %s, got %v", fe.Field(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}

// Check probes one service
type Check func(ctx context.Context) error

// CheckTimeout bounds each service probe
const CheckTimeout = 10 * time.Second

// ServiceValidator handles validation of optional services
type ServiceValidator struct {
	required []string
	checks   map[string]Check
	log      *zap.Logger
}

// NewServiceValidator creates a validator for the named required services
func NewServiceValidator(required []string, checks map[string]Check, log *zap.Logger) *ServiceValidator {
	return &ServiceValidator{required: required, checks: checks, log: logger.OrDefault(log)}
}

// ValidateServices probes every required service and fails on the first
// that is missing or unreachable.
func (sv *ServiceValidator) ValidateServices(ctx context.Context) error {
	if len(sv.required) == 0 {
		sv.log.Info("No required services configured for validation")
		return nil
	}
	sv.log.Info("Validating required services", zap.Strings("services", sv.required))

	for _, name := range sv.required {
		check, ok := sv.checks[name]
		if !ok {
			return fmt.Errorf("required service %q is not configured", name)
		}
		if err := probe(ctx, check); err != nil {
			sv.log.Error("Required service validation failed", zap.String("service", name), zap.Error(err))
			return fmt.Errorf("required service %q validation failed: %w", name, err)
		}
		sv.log.Info("Service validated", zap.String("service", name))
	}
	return nil
}

// Status probes every known service and reports "ok" or the error text
func (sv *ServiceValidator) Status(ctx context.Context) map[string]string {
	names := make([]string, 0, len(sv.checks))
	for name := range sv.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]string, len(names))
	for _, name := range names {
		if err := probe(ctx, sv.checks[name]); err != nil {
			out[name] = err.Error()
		} else {
			out[name] = "ok"
		}
	}
	return out
}

func probe(ctx context.Context, check Check) error {
	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()
	return check(ctx)
}
