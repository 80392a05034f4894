package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	catalogDatamodel "github.com/frahmantamala/institution-management/internal/core/datamodel/catalog"
	"github.com/frahmantamala/institution-management/internal/tenant"
	"github.com/frahmantamala/institution-management/internal/transport/middleware"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubInstitutions struct {
	bySchema map[string]*catalogDatamodel.Institution
	err      error
	lookups  int
}

func (s *stubInstitutions) FindBySchema(_ context.Context, schemaName string) (*catalogDatamodel.Institution, error) {
	s.lookups++
	if s.err != nil {
		return nil, s.err
	}
	return s.bySchema[schemaName], nil
}

func (s *stubInstitutions) FindByID(_ context.Context, _ int64) (*catalogDatamodel.Institution, error) {
	return nil, nil
}

func errorCode(rec *httptest.ResponseRecorder) string {
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
	return body.Error.Code
}

var _ = Describe("TenantResolver", func() {
	var (
		institutions *stubInstitutions
		handler      http.Handler
		seen         tenant.Context
		reached      bool
	)

	BeforeEach(func() {
		institutions = &stubInstitutions{bySchema: map[string]*catalogDatamodel.Institution{
			"tenant_abc": {ID: 11, SchemaName: "tenant_abc", Status: "active"},
			"tenant_old": {ID: 12, SchemaName: "tenant_old", Status: "inactive"},
		}}
		reached = false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			seen, _ = tenant.FromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		})
		lg := slog.New(slog.NewTextHandler(io.Discard, nil))
		handler = middleware.TenantResolver(institutions, lg)(next)
	})

	serve := func(schema string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
		if schema != "" {
			req.Header.Set(middleware.TenantHeader, schema)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	It("binds the institution to the request context", func() {
		rec := serve("tenant_abc")

		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(seen.SchemaName).To(Equal("tenant_abc"))
		Expect(seen.InstitutionID).To(Equal(int64(11)))
		Expect(seen.IsActive()).To(BeTrue())
	})

	It("passes inactive tenants through with their status", func() {
		rec := serve("tenant_old")

		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(seen.IsActive()).To(BeFalse())
	})

	It("requires the header", func() {
		rec := serve("")

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))
		Expect(errorCode(rec)).To(Equal("VALIDATION_FAILED"))
		Expect(reached).To(BeFalse())
	})

	It("rejects unsafe schema names without touching the catalog", func() {
		rec := serve(`tenant_abc"; DROP TABLE users; --`)

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(institutions.lookups).To(BeZero())
		Expect(reached).To(BeFalse())
	})

	It("returns 404 for an unknown schema", func() {
		rec := serve("tenant_missing")

		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(errorCode(rec)).To(Equal("INSTITUTION_NOT_FOUND"))
	})

	It("returns 500 when the catalog is unreachable", func() {
		institutions.err = errors.New("connection refused")

		rec := serve("tenant_abc")

		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		Expect(errorCode(rec)).To(Equal("INTERNAL_ERROR"))
		Expect(rec.Body.String()).NotTo(ContainSubstring("connection refused"))
		Expect(reached).To(BeFalse())
	})
})
