package provisioning_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	coreUser "github.com/frahmantamala/institution-management/internal/core/user"
	"github.com/frahmantamala/institution-management/internal/provisioning"
	"github.com/frahmantamala/institution-management/internal/tenant"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// recordingProvisioner logs start and end ticks per item so chunk ordering can be checked.
type recordingProvisioner struct {
	mu     sync.Mutex
	tick   int
	starts map[string]int
	ends   map[string]int
	active int
	peak   int
	fail   map[string]bool
}

func newRecordingProvisioner() *recordingProvisioner {
	return &recordingProvisioner{starts: map[string]int{}, ends: map[string]int{}, fail: map[string]bool{}}
}

func (p *recordingProvisioner) Provision(_ context.Context, _ tenant.Context, _ int64, userType coreUser.UserType, data provisioning.NewUserData) (*provisioning.ProvisionedUser, error) {
	p.mu.Lock()
	p.tick++
	p.starts[data.Email] = p.tick
	p.active++
	p.peak = max(p.peak, p.active)
	p.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	p.mu.Lock()
	p.tick++
	p.ends[data.Email] = p.tick
	p.active--
	p.mu.Unlock()

	if p.fail[data.Email] {
		return nil, fmt.Errorf("provision %s: boom", data.Email)
	}
	return &provisioning.ProvisionedUser{Email: data.Email, UserType: string(userType)}, nil
}

func bulkItems(n int) []provisioning.NewUserData {
	items := make([]provisioning.NewUserData, n)
	for i := range items {
		items[i] = provisioning.NewUserData{
			Email:     fmt.Sprintf("student%02d@x.edu", i),
			FirstName: "Student",
			LastName:  fmt.Sprintf("%02d", i),
		}
	}
	return items
}

var _ = Describe("BulkCoordinator", func() {
	var tc tenant.Context

	BeforeEach(func() {
		var err error
		tc, err = tenant.New(schemaBasic, 10, tenant.StatusActive)
		Expect(err).NotTo(HaveOccurred())
	})

	Context("with a recording provisioner", func() {
		var (
			rec     *recordingProvisioner
			auditor *FakeAuditor
			bulk    *provisioning.BulkCoordinator
		)

		BeforeEach(func() {
			rec = newRecordingProvisioner()
			auditor = &FakeAuditor{}
			bulk = provisioning.NewBulkCoordinator(rec, nil, auditor, 10, nil, newFixtureLogger())
		})

		It("runs 23 items as three sequential chunks of 10, 10 and 3", func() {
			items := bulkItems(23)
			result, err := bulk.ProvisionMany(context.Background(), tc, 1, coreUser.TypeStudent, items)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(result.Succeeded) + len(result.Failed)).To(Equal(23))
			Expect(rec.peak).To(BeNumerically("<=", 10))

			chunks := [][]provisioning.NewUserData{items[0:10], items[10:20], items[20:23]}
			Expect(chunks[2]).To(HaveLen(3))
			for c := 1; c < len(chunks); c++ {
				lastEnd := 0
				for _, it := range chunks[c-1] {
					lastEnd = max(lastEnd, rec.ends[it.Email])
				}
				for _, it := range chunks[c] {
					Expect(rec.starts[it.Email]).To(BeNumerically(">", lastEnd),
						"item %s started before chunk %d finished", it.Email, c-1)
				}
			}
		})

		It("keeps input order and isolates failures", func() {
			items := bulkItems(5)
			rec.fail[items[2].Email] = true

			result, err := bulk.ProvisionMany(context.Background(), tc, 1, coreUser.TypeStudent, items)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Succeeded).To(HaveLen(4))
			Expect(result.Succeeded[0].Email).To(Equal(items[0].Email))
			Expect(result.Succeeded[3].Email).To(Equal(items[4].Email))
			Expect(result.Failed).To(ConsistOf(provisioning.BulkFailure{
				Email:        items[2].Email,
				ErrorMessage: "provision student02@x.edu: boom",
			}))
		})

		It("emits one aggregate audit event", func() {
			items := bulkItems(12)
			rec.fail[items[0].Email] = true
			_, err := bulk.ProvisionMany(context.Background(), tc, 1, coreUser.TypeStudent, items)
			Expect(err).NotTo(HaveOccurred())
			Expect(auditor.bulk).To(ConsistOf(auditRecord{UserType: "student", Succeeded: 11, Failed: 1}))
		})

		It("fails the remaining items once the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			result, err := bulk.ProvisionMany(ctx, tc, 1, coreUser.TypeStudent, bulkItems(3))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Failed).To(HaveLen(3))
			Expect(result.Failed[0].ErrorMessage).To(ContainSubstring("cancelled"))
			Expect(rec.starts).To(BeEmpty())
		})

		It("rejects an unknown user type", func() {
			_, err := bulk.ProvisionMany(context.Background(), tc, 1, coreUser.UserType("alien"), bulkItems(1))
			Expect(err).To(HaveOccurred())
		})
	})

	Context("with the real orchestrator", func() {
		var f *fixture

		BeforeEach(func() {
			f = newFixture(nil)
			f.idp.Delay = 5 * time.Millisecond
		})

		It("never has more identity provider calls in flight than the chunk size", func() {
			bulk := provisioning.NewBulkCoordinator(f.orchestrator, f.roles, f.auditor, 10, f.metrics, f.logger)
			result, err := bulk.ProvisionMany(f.ctx, tc, 1, coreUser.TypeStudent, bulkItems(21))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Failed).To(BeEmpty())
			Expect(result.Succeeded).To(HaveLen(21))
			Expect(f.idp.Peak()).To(BeNumerically("<=", 10))
			Expect(f.count(schemaBasic, "users")).To(Equal(int64(21)))
			Expect(f.count(schemaBasic, "roles")).To(Equal(int64(1)))
		})

		It("provisions every valid item when one is malformed", func() {
			items := bulkItems(6)
			items[3].Email = "broken-at-x.edu"

			bulk := provisioning.NewBulkCoordinator(f.orchestrator, f.roles, f.auditor, 10, f.metrics, f.logger)
			result, err := bulk.ProvisionMany(f.ctx, tc, 1, coreUser.TypeTeacher, items)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Succeeded).To(HaveLen(5))
			Expect(result.Failed).To(HaveLen(1))
			Expect(result.Failed[0].Email).To(Equal("broken-at-x.edu"))
			Expect(result.Failed[0].ErrorMessage).To(ContainSubstring("valid email"))
			Expect(f.idp.Creates()).To(HaveLen(5))
		})
	})
})
