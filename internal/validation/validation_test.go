package validation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type settings struct {
	Name  string  `env:"NAME" validate:"required"`
	Ratio float64 `env:"RATIO" validate:"gt=0,lt=1"`
	Mode  string  `validate:"oneof=a b"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(settings{Name: "x", Ratio: 0.5, Mode: "a"}))

	err := Struct(settings{Ratio: 2, Mode: "c"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "NAME is required")
	assert.ErrorContains(t, err, "RATIO must be less than 1")
	assert.ErrorContains(t, err, `Mode must be one of [a b], got "c"`)
}

func TestValidateServices(t *testing.T) {
	ctx := context.Background()
	checks := map[string]Check{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}

	assert.NoError(t, NewServiceValidator(nil, checks, nil).ValidateServices(ctx))
	assert.NoError(t, NewServiceValidator([]string{"database"}, checks, nil).ValidateServices(ctx))
	assert.ErrorContains(t, NewServiceValidator([]string{"database", "redis"}, checks, nil).ValidateServices(ctx), "connection refused")
	assert.ErrorContains(t, NewServiceValidator([]string{"storage"}, checks, nil).ValidateServices(ctx), "not configured")

	status := NewServiceValidator(nil, checks, nil).Status(ctx)
	assert.Equal(t, map[string]string{"database": "ok", "redis": "connection refused"}, status)
}

func TestChecksAreBounded(t *testing.T) {
	slow := func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		if !ok {
			return errors.New("no deadline")
		}
		return nil
	}
	assert.NoError(t, NewServiceValidator([]string{"slow"}, map[string]Check{"slow": slow}, nil).ValidateServices(context.Background()))
}
