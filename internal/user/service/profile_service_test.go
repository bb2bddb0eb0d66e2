package service

import (
	"context"
	"errors"
	"testing"

	"imaro-auth/backend/internal/user/domain"
	"imaro-auth/backend/internal/user/repository"
)

func seedUser(t *testing.T, repo *repository.MemoryRepository) *domain.User {
	t.Helper()
	u := &domain.User{
		ID:            "u1",
		ExternalID:    "phone_14155550123",
		AuthMethod:    domain.AuthMethodPhone,
		Phone:         "+14155550123",
		Active:        true,
		PhoneVerified: true,
	}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return u
}

func adaFields() domain.ProfileFields {
	return domain.ProfileFields{
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Age:             30,
		Gender:          domain.GenderFemale,
		Country:         "GBR",
		PrivacyAccepted: true,
		TermsAccepted:   true,
	}
}

func newService(repo repository.Repository) *ProfileService {
	return NewProfileService(repo, PolicyVersions{Privacy: "1.0", Terms: "1.1"}, nil, nil)
}

func TestCompleteProfile_OneWay(t *testing.T) {
	repo := repository.NewMemoryRepository()
	seedUser(t, repo)
	svc := newService(repo)
	ctx := context.Background()

	u, err := svc.CompleteProfile(ctx, "u1", adaFields())
	if err != nil {
		t.Fatalf("CompleteProfile: %v", err)
	}
	if !u.ProfileCompleted || u.FirstName != "Ada" || u.LastName != "Lovelace" || *u.Age != 30 || u.Country != "GBR" {
		t.Errorf("user = %+v", u)
	}
	if u.PrivacyVersion != "1.0" || u.TermsVersion != "1.1" || !u.PrivacyAccepted || !u.TermsAccepted {
		t.Errorf("acceptance = %v/%q %v/%q", u.PrivacyAccepted, u.PrivacyVersion, u.TermsAccepted, u.TermsVersion)
	}

	other := adaFields()
	other.FirstName = "Grace"
	if _, err := svc.CompleteProfile(ctx, "u1", other); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("second CompleteProfile err = %v", err)
	}
	got, _ := svc.Get(ctx, "u1")
	if got.FirstName != "Ada" {
		t.Errorf("second call changed FirstName to %q", got.FirstName)
	}
}

func TestCompleteProfile_Validation(t *testing.T) {
	repo := repository.NewMemoryRepository()
	seedUser(t, repo)
	svc := newService(repo)

	tests := []struct {
		name   string
		mutate func(f *domain.ProfileFields)
	}{
		{"blank first name", func(f *domain.ProfileFields) { f.FirstName = "   " }},
		{"too young", func(f *domain.ProfileFields) { f.Age = 12 }},
		{"too old", func(f *domain.ProfileFields) { f.Age = 121 }},
		{"unknown gender", func(f *domain.ProfileFields) { f.Gender = "robot" }},
		{"lowercase country", func(f *domain.ProfileFields) { f.Country = "gbr" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := adaFields()
			tt.mutate(&f)
			if _, err := svc.CompleteProfile(context.Background(), "u1", f); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
	u, _ := svc.Get(context.Background(), "u1")
	if u.ProfileCompleted {
		t.Error("invalid input completed the profile")
	}
}

func TestCompleteProfile_TrimsNames(t *testing.T) {
	repo := repository.NewMemoryRepository()
	seedUser(t, repo)
	f := adaFields()
	f.FirstName = "  Ada "
	u, err := newService(repo).CompleteProfile(context.Background(), "u1", f)
	if err != nil {
		t.Fatalf("CompleteProfile: %v", err)
	}
	if u.FirstName != "Ada" {
		t.Errorf("FirstName = %q", u.FirstName)
	}
}

func TestUpdateProfile_Partial(t *testing.T) {
	repo := repository.NewMemoryRepository()
	seedUser(t, repo)
	svc := newService(repo)
	ctx := context.Background()
	if _, err := svc.CompleteProfile(ctx, "u1", adaFields()); err != nil {
		t.Fatalf("CompleteProfile: %v", err)
	}

	country := "USA"
	u, err := svc.UpdateProfile(ctx, "u1", domain.ProfilePatch{Country: &country})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if u.Country != "USA" || u.FirstName != "Ada" || *u.Age != 30 || !u.ProfileCompleted {
		t.Errorf("user = %+v", u)
	}

	bad := 200
	if _, err := svc.UpdateProfile(ctx, "u1", domain.ProfilePatch{Age: &bad}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("bad age err = %v", err)
	}
	u, err = svc.UpdateProfile(ctx, "u1", domain.ProfilePatch{})
	if err != nil || u.Country != "USA" {
		t.Errorf("empty patch = %+v, %v", u, err)
	}
}

func TestDeactivateAndDelete(t *testing.T) {
	repo := repository.NewMemoryRepository()
	seedUser(t, repo)
	svc := newService(repo)
	ctx := context.Background()

	if err := svc.Deactivate(ctx, "u1"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	u, _ := svc.Get(ctx, "u1")
	if u.Active {
		t.Error("user still active")
	}

	if err := svc.Delete(ctx, "u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, "u1"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
	if err := svc.Delete(ctx, "u1"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("second Delete err = %v", err)
	}
}

func TestMissingUser(t *testing.T) {
	svc := newService(repository.NewMemoryRepository())
	ctx := context.Background()
	if _, err := svc.CompleteProfile(ctx, "nope", adaFields()); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("CompleteProfile err = %v", err)
	}
	name := "Ada"
	if _, err := svc.UpdateProfile(ctx, "nope", domain.ProfilePatch{FirstName: &name}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UpdateProfile err = %v", err)
	}
	if err := svc.Deactivate(ctx, "nope"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Deactivate err = %v", err)
	}
}
