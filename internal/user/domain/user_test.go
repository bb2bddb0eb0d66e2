package domain

import (
	"errors"
	"testing"

	"imaro-auth/backend/internal/platform/validate"
)

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func phoneUser() *User {
	return &User{ID: "u1", ExternalID: "phone_14155550123", AuthMethod: AuthMethodPhone, Phone: "+14155550123", Active: true}
}

func TestUser_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(u *User)
		wantErr bool
	}{
		{"phone user", func(u *User) {}, false},
		{"google user", func(u *User) { u.AuthMethod = AuthMethodGoogle; u.Phone = ""; u.Email = "ada@example.com" }, false},
		{"phone user without phone", func(u *User) { u.Phone = "" }, true},
		{"google user without email", func(u *User) { u.AuthMethod = AuthMethodGoogle }, true},
		{"unknown method", func(u *User) { u.AuthMethod = "password" }, true},
		{"missing external id", func(u *User) { u.ExternalID = "" }, true},
		{"age too low", func(u *User) { u.Age = intPtr(12) }, true},
		{"age ok", func(u *User) { u.Age = intPtr(120) }, false},
		{"bad gender", func(u *User) { u.Gender = "robot" }, true},
		{"lowercase country", func(u *User) { u.Country = "gbr" }, true},
		{"country ok", func(u *User) { u.Country = "GBR" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := phoneUser()
			tt.mutate(u)
			err := u.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("error %v does not wrap ErrValidation", err)
			}
		})
	}
}

func TestProfileFields_Validate(t *testing.T) {
	f := ProfileFields{FirstName: " Ada ", LastName: "Lovelace", Age: 30, Gender: GenderFemale, Country: "GBR"}
	if err := f.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if f.FirstName != "Ada" {
		t.Errorf("FirstName = %q, want trimmed", f.FirstName)
	}

	bad := f
	bad.Gender = "unknown"
	err := bad.Validate()
	if !errors.Is(err, ErrValidation) || !errors.Is(err, validate.ErrInvalid) {
		t.Errorf("err = %v, want ErrValidation wrapping a field error", err)
	}
	bad = f
	bad.LastName = ""
	if err := bad.Validate(); err == nil {
		t.Error("empty last name accepted")
	}
}

func TestProfilePatch_ApplyOnlyPresentFields(t *testing.T) {
	u := phoneUser()
	u.FirstName, u.LastName, u.Country = "Ada", "Lovelace", "GBR"
	u.Age = intPtr(30)

	p := ProfilePatch{LastName: strPtr(" Byron "), Age: intPtr(31)}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	p.Apply(u)

	if u.FirstName != "Ada" || u.LastName != "Byron" || *u.Age != 31 || u.Country != "GBR" {
		t.Errorf("user after patch = %+v", u)
	}
}

func TestProfilePatch_Empty(t *testing.T) {
	if !(&ProfilePatch{}).Empty() {
		t.Error("zero patch should be empty")
	}
	if (&ProfilePatch{Country: strPtr("FRA")}).Empty() {
		t.Error("patch with country should not be empty")
	}
	p := ProfilePatch{Age: intPtr(200)}
	if err := p.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v", err)
	}
}

func TestValidate_FieldMessages(t *testing.T) {
	blank := "   "
	lower := "fra"
	robot := Gender("robot")
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"user missing phone", (&User{ID: "u1", ExternalID: "x", AuthMethod: AuthMethodPhone}).Validate(), "phone: is required"},
		{"user bad method", (&User{ID: "u1", ExternalID: "x", AuthMethod: "password"}).Validate(), "auth_method: must be one of phone, google"},
		{"profile age", (&ProfileFields{FirstName: "Ada", LastName: "L", Age: 12, Gender: GenderFemale, Country: "GBR"}).Validate(), "age: must be between 13 and 120"},
		{"patch blank name", (&ProfilePatch{FirstName: &blank}).Validate(), "first_name: must be 1 to 50 characters"},
		{"patch country", (&ProfilePatch{Country: &lower}).Validate(), "country: must be a 3-letter uppercase country code"},
		{"patch gender", (&ProfilePatch{Gender: &robot}).Validate(), "gender: must be one of male, female, other, prefer_not_to_say"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", tt.err)
			}
			var fe *validate.FieldError
			if !errors.As(tt.err, &fe) {
				t.Fatalf("err = %v, want *validate.FieldError", tt.err)
			}
			if fe.Error() != tt.want {
				t.Errorf("field error = %q, want %q", fe.Error(), tt.want)
			}
		})
	}
}
