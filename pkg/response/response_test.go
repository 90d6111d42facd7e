package response

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestGetValidationErrors(t *testing.T) {
	type req struct {
		Name string `json:"name" validate:"required"`
		URL  string `json:"url" validate:"required,url"`
	}

	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	tests := []struct {
		name string
		req  req
		want []validationError
	}{
		{
			name: "not validation error",
			req: req{
				Name: "name",
				URL:  "https://example.com",
			},
		},
		{
			name: "one error",
			req: req{
				Name: "",
				URL:  "https://example.com",
			},
			want: []validationError{
				{
					Field: "name",
					Value: "",
					Issue: "This field is required.",
				},
			},
		},
		{
			name: "two errors",
			req: req{
				Name: "",
				URL:  "not url",
			},
			want: []validationError{
				{
					Field: "name",
					Value: "",
					Issue: "This field is required.",
				},
				{
					Field: "url",
					Value: "not url",
					Issue: "Invalid url.",
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.req)
			got := getValidationErrors(err)

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidationErrorResponse(t *testing.T) {
	t.Run("not validation error", func(t *testing.T) {
		got := ValidationErrorResponse(errors.New("unknown error"))

		assert.Equal(t, "Validation Error", got.Error)
		assert.Empty(t, got.Details)
	})

	t.Run("validation error", func(t *testing.T) {
		validate := validator.New()

		got := ValidationErrorResponse(validate.Var("", "required"))

		assert.Equal(t, "Validation Error", got.Error)
		assert.Len(t, got.Details, 1)
		assert.Equal(t, "This field is required.", got.Details[0].Issue)
	})
}
