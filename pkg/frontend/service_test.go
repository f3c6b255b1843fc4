package frontend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/enclaveops/pkg/auth"
	"github.com/jordigilh/enclaveops/pkg/management"
	"github.com/jordigilh/enclaveops/pkg/storage"
	"github.com/jordigilh/enclaveops/pkg/types"
)

// fakeAuthenticator accepts a fixed id/token table, standing in for the
// attestation-backed authentication service.
type fakeAuthenticator struct {
	tokens map[string]string
	down   bool
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, cred auth.Credential) error {
	if f.down {
		return errors.New("authentication service unreachable")
	}
	if token, ok := f.tokens[cred.ID]; ok && token == cred.Token {
		return nil
	}
	return auth.ErrInvalidCredential
}

var _ = Describe("Frontend Passthrough", func() {
	var (
		ctx            context.Context
		redisServer    *miniredis.Miniredis
		store          *storage.Client
		mgmtServer     *httptest.Server
		frontServer    *httptest.Server
		authenticator  *fakeAuthenticator
		mgmtService    *management.Service
		frontendClient *http.Client
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		redisServer, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())

		cfg := storage.DefaultConfig()
		cfg.Address = redisServer.Addr()
		cfg.ConnectInterval = 10 * time.Millisecond
		store, err = storage.Connect(ctx, cfg, logr.Discard())
		Expect(err).NotTo(HaveOccurred())

		mgmtService = management.NewService(store, logr.Discard())
		mgmtServer = httptest.NewServer(management.NewRouter(mgmtService, logr.Discard()))

		authenticator = &fakeAuthenticator{tokens: map[string]string{
			"alice": "alice-token",
			"bob":   "bob-token",
		}}
		svc := NewService(management.NewClient(mgmtServer.URL), authenticator, logr.Discard())
		frontServer = httptest.NewServer(NewRouter(svc, logr.Discard()))
		frontendClient = frontServer.Client()
	})

	AfterEach(func() {
		frontServer.Close()
		mgmtServer.Close()
		_ = store.Close()
		redisServer.Close()
	})

	post := func(path, id, token string, body interface{}) *http.Response {
		GinkgoHelper()
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		req, err := http.NewRequest(http.MethodPost, frontServer.URL+path, bytes.NewReader(raw))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")
		if id != "" {
			req.Header.Set(management.MetadataUserKey, id)
		}
		if token != "" {
			req.Header.Set(MetadataTokenKey, token)
		}
		resp, err := frontendClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decodeBody := func(resp *http.Response, out interface{}) {
		GinkgoHelper()
		defer resp.Body.Close()
		Expect(json.NewDecoder(resp.Body).Decode(out)).To(Succeed())
	}

	It("should reject calls without credentials", func() {
		resp := post("/v1/output-files", "", "", management.RegisterOutputFileRequest{URL: "s3://bucket/out"})
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("should reject bad credentials without consulting management", func() {
		resp := post("/v1/output-files", "alice", "wrong-token", management.RegisterOutputFileRequest{URL: "s3://bucket/out"})
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))

		var envelope management.ErrorResponse
		decodeBody(post("/v1/output-files", "mallory", "whatever", management.RegisterOutputFileRequest{URL: "s3://bucket/out"}), &envelope)
		Expect(envelope.Error).To(Equal("permission_denied"))
	})

	It("should surface an unreachable authentication service as an internal failure", func() {
		authenticator.down = true
		resp := post("/v1/output-files", "alice", "alice-token", management.RegisterOutputFileRequest{URL: "s3://bucket/out"})
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
	})

	It("should forward authenticated calls one-to-one", func() {
		var registered management.RegisterDataResponse
		decodeBody(post("/v1/fusion-outputs", "alice", "alice-token", management.RegisterFusionOutputRequest{
			OwnerList: []types.UserID{"alice", "bob"},
		}), &registered)
		Expect(registered.DataID).To(HavePrefix("output-file-"))

		// bob, a co-owner, can read it through the frontend too.
		req, err := http.NewRequest(http.MethodGet, frontServer.URL+"/v1/output-files/"+registered.DataID, nil)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set(management.MetadataUserKey, "bob")
		req.Header.Set(MetadataTokenKey, "bob-token")
		resp, err := frontendClient.Do(req)
		Expect(err).NotTo(HaveOccurred())

		var view management.GetOutputFileResponse
		decodeBody(resp, &view)
		Expect(view.Owner).To(Equal(types.OwnerList{"alice", "bob"}))
		Expect(view.CMAC).To(BeEmpty())
	})

	It("should mirror management failure semantics unchanged", func() {
		var registered management.RegisterDataResponse
		decodeBody(post("/v1/fusion-outputs", "alice", "alice-token", management.RegisterFusionOutputRequest{
			OwnerList: []types.UserID{"alice", "bob"},
		}), &registered)

		// carol authenticates fine but does not own the file; the denial
		// comes from management and passes through untouched.
		authenticator.tokens["carol"] = "carol-token"
		req, err := http.NewRequest(http.MethodGet, frontServer.URL+"/v1/output-files/"+registered.DataID, nil)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set(management.MetadataUserKey, "carol")
		req.Header.Set(MetadataTokenKey, "carol-token")
		resp, err := frontendClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))

		var envelope management.ErrorResponse
		decodeBody(resp, &envelope)
		Expect(envelope.Error).To(Equal("permission_denied"))
	})

	It("should attribute forwarded calls to the authenticated user", func() {
		// The frontend derives the user from the credential it validated,
		// so the registered file is owned by that user.
		var registered management.RegisterDataResponse
		decodeBody(post("/v1/output-files", "alice", "alice-token", management.RegisterOutputFileRequest{
			URL: "s3://bucket/out",
		}), &registered)

		view, err := mgmtService.GetOutputFile(ctx, "alice", registered.DataID)
		Expect(err).NotTo(HaveOccurred())
		Expect(view.Owner).To(Equal(types.OwnerList{"alice"}))
	})
})
