/**
 * @description
 * This file enumerates the account attributes that can be written after
 * registration. Every field carries its validation rule and an explicit
 * getter/setter pair, so updates never go through reflection.
 *
 * @notes
 * - Self-service fields may be changed by the customer through an update request.
 * - The remaining fields are editable by admins only.
 * - balance and account_number are intentionally absent.
 */
package domain

import (
	"fmt"
	"strings"
)

// AccountField is a closed enumeration of writable account attributes.
type AccountField string

const (
	FieldName          AccountField = "name"
	FieldEmail         AccountField = "email"
	FieldPhone         AccountField = "phone"
	FieldGender        AccountField = "gender"
	FieldDOB           AccountField = "dob"
	FieldAadhaar       AccountField = "aadhaar"
	FieldPAN           AccountField = "pan"
	FieldAccountType   AccountField = "account_type"
	FieldTypeOfAccount AccountField = "type_of_account"
)

type fieldSpec struct {
	rule        string
	selfService bool
	normalize   func(string) string
	get         func(*Account) string
	set         func(*Account, string)
}

var fieldOrder = []AccountField{
	FieldName, FieldEmail, FieldPhone, FieldGender, FieldDOB,
	FieldAadhaar, FieldPAN, FieldAccountType, FieldTypeOfAccount,
}

var fieldSpecs = map[AccountField]fieldSpec{
	FieldName: {
		rule:        "required,max=100",
		selfService: true,
		get:         func(a *Account) string { return a.Name },
		set:         func(a *Account, v string) { a.Name = v },
	},
	FieldEmail: {
		rule:        "omitempty,email,max=120",
		selfService: true,
		normalize:   strings.ToLower,
		get: func(a *Account) string {
			if a.Email == nil {
				return ""
			}
			return *a.Email
		},
		set: func(a *Account, v string) {
			if v == "" {
				a.Email = nil
				return
			}
			a.Email = &v
		},
	},
	FieldPhone: {
		rule:        "required,number,min=10,max=15",
		selfService: true,
		get:         func(a *Account) string { return a.Phone },
		set:         func(a *Account, v string) { a.Phone = v },
	},
	FieldGender: {
		rule:        "required,oneof=Male Female Other",
		selfService: true,
		get:         func(a *Account) string { return a.Gender },
		set:         func(a *Account, v string) { a.Gender = v },
	},
	FieldDOB: {
		rule:        "required,datetime=2006-01-02",
		selfService: true,
		get:         func(a *Account) string { return a.DOB },
		set:         func(a *Account, v string) { a.DOB = v },
	},
	FieldAadhaar: {
		rule: "required,number,len=12",
		get:  func(a *Account) string { return a.Aadhaar },
		set:  func(a *Account, v string) { a.Aadhaar = v },
	},
	FieldPAN: {
		rule:      "required,pan",
		normalize: strings.ToUpper,
		get:       func(a *Account) string { return a.PAN },
		set:       func(a *Account, v string) { a.PAN = v },
	},
	FieldAccountType: {
		rule:      "required,oneof=savings current",
		normalize: strings.ToLower,
		get:       func(a *Account) string { return string(a.AccountType) },
		set:       func(a *Account, v string) { a.AccountType = AccountType(v) },
	},
	FieldTypeOfAccount: {
		rule: "required,max=20",
		get:  func(a *Account) string { return a.SubType },
		set:  func(a *Account, v string) { a.SubType = v },
	},
}

// AccountFields returns every writable field in display order.
func AccountFields() []AccountField {
	return append([]AccountField(nil), fieldOrder...)
}

// SelfServiceFields returns the fields a customer may request to change.
func SelfServiceFields() []AccountField {
	var out []AccountField
	for _, f := range fieldOrder {
		if fieldSpecs[f].selfService {
			out = append(out, f)
		}
	}
	return out
}

// ParseAccountField resolves a field name sent by a client.
func ParseAccountField(name string) (AccountField, error) {
	f := AccountField(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := fieldSpecs[f]; !ok {
		return "", NewValidationError(name, fmt.Sprintf("%s is not an editable field", name))
	}
	return f, nil
}

// ParseSelfServiceField resolves a field name and rejects admin-only fields.
func ParseSelfServiceField(name string) (AccountField, error) {
	f, err := ParseAccountField(name)
	if err != nil {
		return "", err
	}
	if !fieldSpecs[f].selfService {
		return "", NewValidationError(name, fmt.Sprintf("%s cannot be changed through an update request", name))
	}
	return f, nil
}

// Get reads the current value of the field from an account.
func (f AccountField) Get(a *Account) string {
	return fieldSpecs[f].get(a)
}

// Normalize trims the value and applies the field's canonical casing.
func (f AccountField) Normalize(v string) string {
	v = strings.TrimSpace(v)
	if n := fieldSpecs[f].normalize; n != nil {
		v = n(v)
	}
	return v
}

// Validate checks an already-normalized value against the field's rule.
func (f AccountField) Validate(v string) error {
	_, err := validateVar(string(f), v, fieldSpecs[f].rule)
	return err
}

// Apply normalizes, validates and writes the value onto the account.
func (f AccountField) Apply(a *Account, v string) error {
	v = f.Normalize(v)
	if err := f.Validate(v); err != nil {
		return err
	}
	fieldSpecs[f].set(a, v)
	return nil
}

// ValidateAccount checks every writable field of a new account. All missing
// required fields are reported at once.
func ValidateAccount(a *Account) error {
	var missing []string
	var first error
	for _, f := range fieldOrder {
		spec := fieldSpecs[f]
		v := f.Normalize(spec.get(a))
		spec.set(a, v)
		tag, err := validateVar(string(f), v, spec.rule)
		if err == nil {
			continue
		}
		if tag == "required" {
			missing = append(missing, string(f))
		} else if first == nil {
			first = err
		}
	}
	if len(missing) > 0 {
		return missingFields(missing)
	}
	return first
}
