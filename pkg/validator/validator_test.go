package validator

import (
	"context"
	"testing"
)

type cpfHolder struct {
	CPF string `validate:"required,cpf"`
}

type colorHolder struct {
	Color string `validate:"omitempty,hexcolor6"`
}

type limitHolder struct {
	Limit int `validate:"required,positive"`
}

func TestCPFValidation(t *testing.T) {
	ctx := context.Background()
	valid := []string{"12345678901", "00000000000"}
	for _, cpf := range valid {
		if err := Validate(ctx, cpfHolder{CPF: cpf}); err != nil {
			t.Errorf("%q should validate: %v", cpf, err)
		}
	}
	invalid := []string{"", "123", "123456789012", "123.456.789-01", "abcdefghijk"}
	for _, cpf := range invalid {
		if err := Validate(ctx, cpfHolder{CPF: cpf}); err == nil {
			t.Errorf("%q should not validate", cpf)
		}
	}
}

func TestStripCPF(t *testing.T) {
	cases := map[string]string{
		"123.456.789-01": "12345678901",
		"12345678901":    "12345678901",
		" 123 456 ":      "123456",
		"abc":            "",
	}
	for in, want := range cases {
		if got := StripCPF(in); got != want {
			t.Errorf("StripCPF(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHexColorValidation(t *testing.T) {
	ctx := context.Background()
	for _, c := range []string{"", "#abc", "#A1B2C3"} {
		if err := Validate(ctx, colorHolder{Color: c}); err != nil {
			t.Errorf("%q should validate: %v", c, err)
		}
	}
	for _, c := range []string{"abc", "#abcd", "#ggg111", "red"} {
		if err := Validate(ctx, colorHolder{Color: c}); err == nil {
			t.Errorf("%q should not validate", c)
		}
	}
}

func TestPositiveValidation(t *testing.T) {
	ctx := context.Background()
	if err := Validate(ctx, limitHolder{Limit: 5}); err != nil {
		t.Fatalf("positive limit should validate: %v", err)
	}
	if err := Validate(ctx, limitHolder{Limit: -3}); err == nil {
		t.Fatal("negative limit should not validate")
	}
}
