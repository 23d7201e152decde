package soap

import "testing"

func TestNormalizeContentType(t *testing.T) {
	cases := map[string]string{
		"application/xml":             "text/xml; charset=utf-8",
		"application/xml; charset=utf-8": "text/xml; charset=utf-8",
		"text/xml":                    "text/xml",
		"application/soap+xml":        "application/soap+xml",
		"":                            "text/xml; charset=utf-8",
	}
	for in, want := range cases {
		if got := normalizeContentType(in); got != want {
			t.Errorf("normalizeContentType(%q) = %q, want %q", in, got, want)
		}
	}
}

func validEnvelope() []byte {
	return []byte(`<?xml version='1.0' encoding='UTF-8'?>
<soap:Envelope xmlns:soap='http://schemas.xmlsoap.org/soap/envelope/'>
  <soap:Body>
    <CreateUser>
      <username>alice</username>
      <email>alice@example.com</email>
    </CreateUser>
  </soap:Body>
</soap:Envelope>`)
}

func TestValidate_PassesWithAllRequiredFields(t *testing.T) {
	schema := Schema{
		"username": {Required: true, Type: "string", Min: 3, Max: 50},
		"email":    {Required: true, Type: "string", Format: "email"},
	}
	if err := Validate(validEnvelope(), schema); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_FailsOnMissingRequiredField(t *testing.T) {
	body := []byte(`<soap:Envelope xmlns:soap='http://schemas.xmlsoap.org/soap/envelope/'>
  <soap:Body>
    <CreateUser>
      <email>no-user@example.com</email>
    </CreateUser>
  </soap:Body>
</soap:Envelope>`)
	schema := Schema{"username": {Required: true, Type: "string", Min: 3}}

	err := Validate(body, schema)
	if err == nil {
		t.Fatal("expected validation error for missing username")
	}
	if _, ok := err.(*ErrValidation); !ok {
		t.Fatalf("error type = %T, want *ErrValidation", err)
	}
}

func TestValidate_FailsOnInvalidEmailFormat(t *testing.T) {
	body := []byte(`<soap:Envelope xmlns:soap='http://schemas.xmlsoap.org/soap/envelope/'>
  <soap:Body>
    <CreateUser>
      <username>alice</username>
      <email>not-an-email</email>
    </CreateUser>
  </soap:Body>
</soap:Envelope>`)
	schema := Schema{"email": {Required: true, Format: "email"}}

	if err := Validate(body, schema); err == nil {
		t.Fatal("expected validation error for malformed email")
	}
}

func TestValidate_FailsOnTooShortField(t *testing.T) {
	body := []byte(`<soap:Envelope xmlns:soap='http://schemas.xmlsoap.org/soap/envelope/'>
  <soap:Body>
    <CreateUser>
      <username>ab</username>
    </CreateUser>
  </soap:Body>
</soap:Envelope>`)
	schema := Schema{"username": {Required: true, Min: 3}}

	if err := Validate(body, schema); err == nil {
		t.Fatal("expected validation error for too-short username")
	}
}
