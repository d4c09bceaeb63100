package opcua

import (
	"errors"
	"testing"

	"github.com/plcwire/uabridge/internal/tags"
)

func TestParsePayload_Bool(t *testing.T) {
	truthy := []string{"true", "TRUE", "True", "1", "on", "ON", "yes", "YES", "  true  "}
	falsy := []string{"false", "FALSE", "0", "off", "OFF", "no", "No"}

	for _, s := range truthy {
		v, err := ParsePayload(tags.TypeBool, s)
		if err != nil {
			t.Errorf("ParsePayload(bool, %q) error: %v", s, err)
			continue
		}
		if v != true {
			t.Errorf("ParsePayload(bool, %q) = %v, want true", s, v)
		}
	}

	for _, s := range falsy {
		v, err := ParsePayload(tags.TypeBool, s)
		if err != nil {
			t.Errorf("ParsePayload(bool, %q) error: %v", s, err)
			continue
		}
		if v != false {
			t.Errorf("ParsePayload(bool, %q) = %v, want false", s, v)
		}
	}

	for _, s := range []string{"", "2", "wahr", "truee"} {
		if _, err := ParsePayload(tags.TypeBool, s); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("ParsePayload(bool, %q) error = %v, want ErrInvalidPayload", s, err)
		}
	}
}

func TestParsePayload_Int(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"42", 42},
		{"-7", -7},
		{"0", 0},
		{" 15 ", 15},
		{"42.0", 42},
		{"42.7", 42},
		{"-3.9", -3},
	}

	for _, tt := range tests {
		v, err := ParsePayload(tags.TypeInt, tt.in)
		if err != nil {
			t.Errorf("ParsePayload(int, %q) error: %v", tt.in, err)
			continue
		}
		if v != tt.want {
			t.Errorf("ParsePayload(int, %q) = %v, want %d", tt.in, v, tt.want)
		}
	}

	for _, s := range []string{"", "abc", "NaN", "Inf"} {
		if _, err := ParsePayload(tags.TypeInt, s); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("ParsePayload(int, %q) error = %v, want ErrInvalidPayload", s, err)
		}
	}
}

func TestParsePayload_Float(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"22.5", 22.5},
		{"-0.25", -0.25},
		{"42", 42},
		{"1e3", 1000},
		{" 3.14 ", 3.14},
	}

	for _, tt := range tests {
		v, err := ParsePayload(tags.TypeFloat, tt.in)
		if err != nil {
			t.Errorf("ParsePayload(float, %q) error: %v", tt.in, err)
			continue
		}
		if v != tt.want {
			t.Errorf("ParsePayload(float, %q) = %v, want %v", tt.in, v, tt.want)
		}
	}

	for _, s := range []string{"", "abc", "NaN", "+Inf", "-Inf"} {
		if _, err := ParsePayload(tags.TypeFloat, s); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("ParsePayload(float, %q) error = %v, want ErrInvalidPayload", s, err)
		}
	}
}

func TestParsePayload_String(t *testing.T) {
	v, err := ParsePayload(tags.TypeString, "  Rezept 12  ")
	if err != nil {
		t.Fatalf("ParsePayload(string) error: %v", err)
	}
	if v != "Rezept 12" {
		t.Errorf("ParsePayload(string) = %q, want trimmed %q", v, "Rezept 12")
	}

	// Empty string payloads are valid for string tags.
	v, err = ParsePayload(tags.TypeString, "")
	if err != nil {
		t.Fatalf("ParsePayload(string, empty) error: %v", err)
	}
	if v != "" {
		t.Errorf("ParsePayload(string, empty) = %q, want empty", v)
	}
}

func TestCoerceValue(t *testing.T) {
	tests := []struct {
		name string
		typ  tags.DataType
		in   any
		want any
	}{
		{"int16 widens", tags.TypeInt, int16(7), int64(7)},
		{"int32 widens", tags.TypeInt, int32(-12), int64(-12)},
		{"uint16 widens", tags.TypeInt, uint16(300), int64(300)},
		{"float truncates to int", tags.TypeInt, float64(42.7), int64(42)},
		{"float32 widens", tags.TypeFloat, float32(22.5), float64(22.5)},
		{"float64 passes", tags.TypeFloat, float64(3.25), float64(3.25)},
		{"int to float", tags.TypeFloat, int16(42), float64(42)},
		{"bool passes", tags.TypeBool, true, true},
		{"int to bool", tags.TypeBool, int16(1), true},
		{"zero int to bool", tags.TypeBool, uint8(0), false},
		{"string passes", tags.TypeString, "hello", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CoerceValue(tt.typ, tt.in)
			if err != nil {
				t.Fatalf("CoerceValue() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CoerceValue() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestCoerceValue_Mismatch(t *testing.T) {
	tests := []struct {
		name string
		typ  tags.DataType
		in   any
	}{
		{"string for bool", tags.TypeBool, "true"},
		{"string for int", tags.TypeInt, "42"},
		{"string for float", tags.TypeFloat, "22.5"},
		{"float for string", tags.TypeString, float64(1)},
		{"nil value", tags.TypeFloat, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CoerceValue(tt.typ, tt.in); !errors.Is(err, ErrTypeMismatch) {
				t.Errorf("CoerceValue() error = %v, want ErrTypeMismatch", err)
			}
		})
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{true, "true"},
		{false, "false"},
		{int64(42), "42"},
		{int64(-7), "-7"},
		{float64(22.5), "22.5"},
		{float64(42), "42"},
		{float64(-0.25), "-0.25"},
		{"Rezept 12", "Rezept 12"},
	}

	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
