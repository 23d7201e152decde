package jsonvalue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// DecodeAndValidate unmarshals raw into dst and runs its "validate" struct
// tags, grounded on iruldev-golang-api-hexagonal's contract.Validate pattern.
// Used for the request envelopes the gateway itself owns (the GraphQL and
// gRPC JSON bodies), not for endpoint-defined REST/SOAP validation schemas,
// which run through Validate(Value, Schema) instead.
func DecodeAndValidate[T any](raw []byte, dst *T) error {
	if err := jsonUnmarshalStrict(raw, dst); err != nil {
		return fmt.Errorf("jsonvalue: decode request envelope: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("jsonvalue: field %q failed %q validation", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("jsonvalue: validate request envelope: %w", err)
	}
	return nil
}

func jsonUnmarshalStrict(raw []byte, dst interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
