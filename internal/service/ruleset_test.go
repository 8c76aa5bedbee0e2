package service_test

import (
	"context"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/tabval/validation-service/api/v1alpha1"
	"github.com/tabval/validation-service/internal/service"
)

var _ = Describe("rule set service", func() {
	var (
		st  *fakeStore
		srv *service.RuleSetService
		ctx context.Context
	)

	BeforeEach(func() {
		st = newFakeStore()
		srv = service.NewRuleSetService(st)
		ctx = context.Background()
	})

	Describe("create", func() {
		It("stores a rule set that compiles", func() {
			created, err := srv.Create(ctx, api.RuleSet{
				Name: "customers",
				Rules: []api.RuleDefinition{
					{Id: "name-required", Kind: "required", Column: "name"},
				},
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(created.Id).ToNot(Equal(uuid.Nil))
			Expect(st.ruleSet.created).To(HaveLen(1))
		})

		It("rejects an empty rule set", func() {
			_, err := srv.Create(ctx, api.RuleSet{Name: "empty"})

			var invalid *service.ErrInvalidRuleSet
			Expect(err).To(BeAssignableToTypeOf(invalid))
			Expect(st.ruleSet.created).To(BeEmpty())
		})

		It("rejects a rule set that does not compile", func() {
			_, err := srv.Create(ctx, api.RuleSet{
				Name: "broken",
				Rules: []api.RuleDefinition{
					{Id: "bad", Kind: "pattern", Column: "name", Pattern: "("},
				},
			})

			var invalid *service.ErrInvalidRuleSet
			Expect(err).To(BeAssignableToTypeOf(invalid))
			Expect(err.Error()).To(ContainSubstring("bad"))
		})
	})

	Describe("get", func() {
		It("maps a missing rule set to a not-found error", func() {
			_, err := srv.Get(ctx, uuid.New())

			var notFound *service.ErrResourceNotFound
			Expect(err).To(BeAssignableToTypeOf(notFound))
		})
	})
})
