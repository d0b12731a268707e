package x402

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"
)

func TestX402Version(t *testing.T) {
	if X402Version != 1 {
		t.Errorf("X402Version = %d; want 1", X402Version)
	}
}

func TestPaymentRequirementsJSON(t *testing.T) {
	req := PaymentRequirements{
		Scheme:            "exact",
		Network:           NetworkStellarTestnet,
		MaxAmountRequired: "1000000",
		Resource:          "https://api.example.com/weather",
		Description:       "Weather data",
		MimeType:          "application/json",
		PayTo:             "GBZXN7PIRZGNMHGA7MUUUF4GWPY5AYPV6LY4UV2GL6VJGIQRXFDNMADI",
		MaxTimeoutSeconds: 60,
		Asset:             StellarTestnet.USDCAddress,
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	for _, key := range []string{"scheme", "network", "maxAmountRequired", "resource", "payTo", "maxTimeoutSeconds", "asset"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing JSON key %q in %s", key, data)
		}
	}
	if _, ok := raw["extra"]; ok {
		t.Errorf("extra should be omitted when empty: %s", data)
	}
}

func TestPaymentPayload_StellarPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload interface{}
		want    string
		wantErr bool
	}{
		{
			name:    "typed value",
			payload: StellarPayload{Transaction: "AAAA"},
			want:    "AAAA",
		},
		{
			name:    "typed pointer",
			payload: &StellarPayload{Transaction: "BBBB"},
			want:    "BBBB",
		},
		{
			name:    "generic map from JSON",
			payload: map[string]interface{}{"transaction": "CCCC"},
			want:    "CCCC",
		},
		{
			name:    "missing transaction",
			payload: map[string]interface{}{"other": "x"},
			wantErr: true,
		},
		{
			name:    "nil payload",
			payload: nil,
			wantErr: true,
		},
		{
			name:    "wrong type",
			payload: map[string]interface{}{"transaction": 12},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PaymentPayload{X402Version: 1, Scheme: "exact", Network: NetworkStellarTestnet, Payload: tt.payload}
			got, err := p.StellarPayload()
			if (err != nil) != tt.wantErr {
				t.Fatalf("StellarPayload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedPayload) {
					t.Errorf("error = %v; want ErrMalformedPayload", err)
				}
				return
			}
			if got.Transaction != tt.want {
				t.Errorf("Transaction = %q; want %q", got.Transaction, tt.want)
			}
		})
	}
}

func TestPaymentPayloadJSONRoundTrip(t *testing.T) {
	in := PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     NetworkStellarTestnet,
		Payload:     StellarPayload{Transaction: "AAAAAgAAAAA="},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var out PaymentPayload
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	sp, err := out.StellarPayload()
	if err != nil {
		t.Fatalf("StellarPayload() error = %v", err)
	}
	if sp.Transaction != "AAAAAgAAAAA=" {
		t.Errorf("Transaction = %q", sp.Transaction)
	}
}

func TestVerifyResponseJSON(t *testing.T) {
	tests := []struct {
		name     string
		resp     VerifyResponse
		wantJSON string
	}{
		{
			name:     "valid",
			resp:     VerifyResponse{IsValid: true, Payer: "GABC"},
			wantJSON: `{"isValid":true,"payer":"GABC"}`,
		},
		{
			name:     "invalid with payer",
			resp:     VerifyResponse{IsValid: false, InvalidReason: ReasonWrongAmount, Payer: "GABC"},
			wantJSON: `{"isValid":false,"invalidReason":"wrong_amount","payer":"GABC"}`,
		},
		{
			name:     "invalid without payer",
			resp:     VerifyResponse{IsValid: false, InvalidReason: ReasonMalformedPayload},
			wantJSON: `{"isValid":false,"invalidReason":"malformed_payload"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.resp)
			if err != nil {
				t.Fatalf("json.Marshal() error = %v", err)
			}
			if string(data) != tt.wantJSON {
				t.Errorf("json.Marshal() = %s; want %s", data, tt.wantJSON)
			}
		})
	}
}

func TestSettleResponseJSON(t *testing.T) {
	resp := SettleResponse{
		Success:     false,
		ErrorReason: ReasonSubmissionFailed,
		Network:     NetworkStellarTestnet,
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	want := `{"success":false,"errorReason":"transaction_submission_failed","transaction":"","network":"stellar-testnet"}`
	if string(data) != want {
		t.Errorf("json.Marshal() = %s; want %s", data, want)
	}
}

func TestAmountToBigInt(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals int
		want     string
		wantErr  bool
	}{
		{name: "whole number", amount: "1", decimals: 7, want: "10000000"},
		{name: "decimal", amount: "1.5", decimals: 7, want: "15000000"},
		{name: "smallest unit", amount: "0.0000001", decimals: 7, want: "1"},
		{name: "zero", amount: "0", decimals: 7, want: "0"},
		{name: "too precise", amount: "0.00000001", decimals: 7, wantErr: true},
		{name: "invalid", amount: "abc", decimals: 7, wantErr: true},
		{name: "empty", amount: "", decimals: 7, wantErr: true},
		{name: "negative amount", amount: "-1.5", decimals: 7, wantErr: true},
		{name: "negative decimals", amount: "1.5", decimals: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AmountToBigInt(tt.amount, tt.decimals)
			if (err != nil) != tt.wantErr {
				t.Errorf("AmountToBigInt() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got.String() != tt.want {
				t.Errorf("AmountToBigInt() = %s; want %s", got.String(), tt.want)
			}
		})
	}
}

func TestBigIntToAmount(t *testing.T) {
	tests := []struct {
		name     string
		value    *big.Int
		decimals int
		want     string
	}{
		{name: "whole number", value: big.NewInt(10000000), decimals: 7, want: "1.0000000"},
		{name: "small value", value: big.NewInt(1), decimals: 7, want: "0.0000001"},
		{name: "nil", value: nil, decimals: 7, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BigIntToAmount(tt.value, tt.decimals)
			if got != tt.want {
				t.Errorf("BigIntToAmount() = %s; want %s", got, tt.want)
			}
		})
	}
}

func TestParseAtomicAmount(t *testing.T) {
	huge := "170141183460469231731687303715884105727" // i128 max
	got, err := ParseAtomicAmount(huge)
	if err != nil {
		t.Fatalf("ParseAtomicAmount(%s) error = %v", huge, err)
	}
	if got.String() != huge {
		t.Errorf("ParseAtomicAmount() = %s", got)
	}

	for _, bad := range []string{"", "1.5", "-1", "0x10", "abc"} {
		if _, err := ParseAtomicAmount(bad); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("ParseAtomicAmount(%q) error = %v; want ErrInvalidAmount", bad, err)
		}
	}
}

func TestPaymentError_WithDetails_NilMap(t *testing.T) {
	err := &PaymentError{
		Code:    ErrCodeInvalidRequirements,
		Message: "test error",
		Details: nil,
	}

	result := err.WithDetails("key", "value")

	if result.Details == nil {
		t.Fatal("Details map should have been initialized")
	}
	if result.Details["key"] != "value" {
		t.Errorf("Expected Details[key] = value, got %v", result.Details["key"])
	}
}

func TestPaymentError_Unwrap(t *testing.T) {
	err := NewPaymentError(ErrCodeUnsupportedVersion, "unsupported x402 version", ErrUnsupportedVersion)
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("errors.Is(err, ErrUnsupportedVersion) = false")
	}
	if err.Error() != "unsupported x402 version: x402: unsupported protocol version" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestFindMatchingRequirement(t *testing.T) {
	requirements := []PaymentRequirements{
		{Scheme: "exact", Network: NetworkBase, MaxAmountRequired: "1"},
		{Scheme: "exact", Network: NetworkStellarTestnet, MaxAmountRequired: "2"},
		{Scheme: "exact", Network: NetworkStellarTestnet, MaxAmountRequired: "3"},
	}

	tests := []struct {
		name       string
		payment    *PaymentPayload
		wantAmount string
		wantErr    error
	}{
		{"first match wins", &PaymentPayload{Scheme: "exact", Network: NetworkStellarTestnet}, "2", nil},
		{"evm", &PaymentPayload{Scheme: "exact", Network: NetworkBase}, "1", nil},
		{"unknown network", &PaymentPayload{Scheme: "exact", Network: NetworkStellar}, "", ErrUnsupportedScheme},
		{"unknown scheme", &PaymentPayload{Scheme: "upto", Network: NetworkBase}, "", ErrUnsupportedScheme},
		{"nil payment", nil, "", ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindMatchingRequirement(tt.payment, requirements)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.MaxAmountRequired != tt.wantAmount {
				t.Errorf("matched amount %s, want %s", got.MaxAmountRequired, tt.wantAmount)
			}
		})
	}
}
