package internal_test

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/frahmantamala/institution-management/internal"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("AppError", func() {
	Describe("HasCode", func() {
		It("matches the top-level code through wrapping", func() {
			err := fmt.Errorf("resolve plan: %w", internal.ErrPlanNotAssigned)
			Expect(internal.HasCode(err, internal.ErrCodePlanNotAssigned)).To(BeTrue())
			Expect(internal.HasCode(err, internal.ErrCodeInstitutionNotFound)).To(BeFalse())
		})

		It("matches a field code carried in validation details", func() {
			err := internal.NewValidationFieldError("user_type", "unknown user type", internal.ErrCodeInvalidUserType)
			Expect(err.Code).To(Equal(internal.ErrCodeValidationFailed))
			Expect(internal.HasCode(err, internal.ErrCodeInvalidUserType)).To(BeTrue())
			Expect(internal.HasCode(err, internal.ErrCodeValidationFailed)).To(BeTrue())
			Expect(internal.HasCode(err, internal.ErrCodeInvalidEmail)).To(BeFalse())
		})

		It("is false for plain errors", func() {
			Expect(internal.HasCode(errors.New("boom"), internal.ErrCodeValidationFailed)).To(BeFalse())
		})
	})

	It("keeps the cause out of the JSON envelope", func() {
		err := internal.NewValidationError("unreadable request body", internal.ErrCodeValidationFailed).
			WithCause(errors.New("unexpected EOF"))
		Expect(err.Error()).To(Equal("unreadable request body: unexpected EOF"))
		Expect(errors.Unwrap(err)).To(MatchError("unexpected EOF"))

		raw, marshalErr := err.MarshalJSON()
		Expect(marshalErr).NotTo(HaveOccurred())
		Expect(string(raw)).NotTo(ContainSubstring("EOF"))
	})

	DescribeTable("classifies client errors by status",
		func(err *internal.AppError, client bool) {
			Expect(err.IsClientError()).To(Equal(client))
		},
		Entry("not found", internal.ErrUserNotFound, true),
		Entry("forbidden", internal.ErrTenantInactive, true),
		Entry("bad gateway", internal.NewExternalError("idp down", internal.ErrCodeIdentityProviderFailed, nil), false),
		Entry("internal", internal.NewInternalError("boom", nil), false),
	)

	It("reports the status it was built with", func() {
		Expect(internal.ErrDuplicateEmail.StatusCode).To(Equal(http.StatusConflict))
	})
})
