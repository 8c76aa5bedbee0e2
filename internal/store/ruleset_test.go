package store_test

import (
	"context"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/tabval/validation-service/api/v1alpha1"
	"github.com/tabval/validation-service/internal/store"
)

var _ = Describe("rule set store", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	newRuleSet := func(name string) api.RuleSet {
		return api.RuleSet{
			Name: name,
			Rules: []api.RuleDefinition{
				{Id: "name-required", Kind: "required", Column: "name"},
			},
			Unique:     []string{"email"},
			UniqueMode: "fail_all",
		}
	}

	It("round-trips a rule set", func() {
		created, err := s.RuleSet().Create(ctx, newRuleSet("roundtrip"))
		Expect(err).ToNot(HaveOccurred())
		Expect(created.Version).To(Equal(1))

		got, err := s.RuleSet().Get(ctx, created.Id)
		Expect(err).ToNot(HaveOccurred())
		Expect(got.Name).To(Equal("roundtrip"))
		Expect(got.Rules).To(HaveLen(1))
		Expect(got.Rules[0].Id).To(Equal("name-required"))
		Expect(got.Unique).To(Equal([]string{"email"}))
		Expect(got.UniqueMode).To(Equal("fail_all"))
	})

	It("versions instead of overwriting an existing name", func() {
		first, err := s.RuleSet().Create(ctx, newRuleSet("versioned"))
		Expect(err).ToNot(HaveOccurred())
		Expect(first.Version).To(Equal(1))

		update := newRuleSet("versioned")
		update.Rules = append(update.Rules, api.RuleDefinition{Id: "age-range", Kind: "range", Column: "age"})
		second, err := s.RuleSet().Create(ctx, update)
		Expect(err).ToNot(HaveOccurred())
		Expect(second.Version).To(Equal(2))
		Expect(second.Id).ToNot(Equal(first.Id))

		// Old jobs keep resolving the version they ran against.
		got, err := s.RuleSet().Get(ctx, first.Id)
		Expect(err).ToNot(HaveOccurred())
		Expect(got.Rules).To(HaveLen(1))

		latest, err := s.RuleSet().GetByName(ctx, "versioned")
		Expect(err).ToNot(HaveOccurred())
		Expect(latest.Version).To(Equal(2))
		Expect(latest.Rules).To(HaveLen(2))
	})

	It("returns a typed error for an unknown rule set", func() {
		_, err := s.RuleSet().Get(ctx, uuid.New())
		Expect(err).To(MatchError(store.ErrRecordNotFound))

		_, err = s.RuleSet().GetByName(ctx, "does-not-exist")
		Expect(err).To(MatchError(store.ErrRecordNotFound))
	})

	It("deletes a rule set", func() {
		created, err := s.RuleSet().Create(ctx, newRuleSet("doomed"))
		Expect(err).ToNot(HaveOccurred())

		Expect(s.RuleSet().Delete(ctx, created.Id)).To(Succeed())

		_, err = s.RuleSet().Get(ctx, created.Id)
		Expect(err).To(MatchError(store.ErrRecordNotFound))

		// deleting twice is a no-op
		Expect(s.RuleSet().Delete(ctx, created.Id)).To(Succeed())
	})
})
