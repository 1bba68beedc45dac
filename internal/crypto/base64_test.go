package crypto

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestBase64URLRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"text", []byte("hello")},
		{"zeros", []byte{0x00, 0x00, 0x00}},
		{"url unsafe", []byte{0xfb, 0xff, 0x3f, 0xff}},
		{"key sized", bytes.Repeat([]byte{0xab}, KeySize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := ToBase64URL(tt.data)
			if strings.ContainsAny(encoded, "+/=") {
				t.Errorf("encoded value %q is not unpadded base64url", encoded)
			}
			decoded, err := FromBase64URL(encoded)
			if err != nil {
				t.Fatalf("FromBase64URL() error = %v", err)
			}
			if !bytes.Equal(decoded, tt.data) {
				t.Errorf("round trip = %v, want %v", decoded, tt.data)
			}
		})
	}
}

func TestDecodeBase64(t *testing.T) {
	want := []byte("hello world")

	tests := []struct {
		name    string
		encoded string
		wantErr bool
	}{
		{"raw", "aGVsbG8gd29ybGQ", false},
		{"padded", "aGVsbG8gd29ybGQ=", false},
		{"invalid chars", "!!!invalid!!!", true},
		{"space", "aGVs bG8", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBase64(tt.encoded)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeBase64() error = %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Errorf("DecodeBase64() = %q, want %q", got, want)
			}
		})
	}
}

func Example_base64URL() {
	encoded := ToBase64URL([]byte("Hello, World!"))
	decoded, _ := DecodeBase64(encoded + "==")
	fmt.Println(encoded)
	fmt.Println(string(decoded))

	// Output:
	// SGVsbG8sIFdvcmxkIQ
	// Hello, World!
}
