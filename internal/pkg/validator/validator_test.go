package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type address struct {
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code,omitempty" validate:"required"`
}

type line struct {
	Qty int `json:"qty" validate:"gte=1"`
}

type order struct {
	Email   string  `json:"email" validate:"required,email"`
	Address address `json:"address"`
	Lines   []line  `json:"lines" validate:"dive"`
	Secret  string  `json:"-" validate:"required"`
}

func TestValidateKeysByJSONPath(t *testing.T) {
	errs := Validate(order{
		Email:   "not-an-email",
		Address: address{City: "Lyon"},
		Lines:   []line{{Qty: 1}, {Qty: 0}},
	})

	assert.Equal(t, "email", errs["email"])
	assert.Equal(t, "required", errs["address.postal_code"])
	assert.Equal(t, "gte", errs["lines[1].qty"])
	assert.Len(t, errs, 4)
}

func TestValidateReturnsNilWhenValid(t *testing.T) {
	assert.Nil(t, Validate(order{
		Email:   "a@b.co",
		Address: address{City: "Lyon", PostalCode: "69001"},
		Secret:  "x",
	}))
}

func TestValidateNonStruct(t *testing.T) {
	errs := Validate("plain string")
	assert.Contains(t, errs, "_")
}
