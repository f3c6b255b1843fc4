package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Client", func() {
	var (
		ctx    context.Context
		server *httptest.Server
		client *Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Method).To(Equal(http.MethodPost))
			Expect(r.URL.Path).To(Equal("/v1/authenticate"))

			var cred Credential
			Expect(json.NewDecoder(r.Body).Decode(&cred)).To(Succeed())
			switch {
			case cred.ID == "alice" && cred.Token == "alice-token":
				w.WriteHeader(http.StatusOK)
			case cred.ID == "broken":
				w.WriteHeader(http.StatusInternalServerError)
			default:
				w.WriteHeader(http.StatusUnauthorized)
			}
		}))
		client = NewClient(server.URL)
	})

	AfterEach(func() {
		server.Close()
	})

	It("should accept a valid credential", func() {
		Expect(client.Authenticate(ctx, Credential{ID: "alice", Token: "alice-token"})).To(Succeed())
	})

	It("should report a rejected credential as ErrInvalidCredential", func() {
		err := client.Authenticate(ctx, Credential{ID: "alice", Token: "stale"})
		Expect(err).To(MatchError(ErrInvalidCredential))
	})

	It("should distinguish service failures from rejections", func() {
		err := client.Authenticate(ctx, Credential{ID: "broken", Token: "x"})
		Expect(err).To(HaveOccurred())
		Expect(err).NotTo(MatchError(ErrInvalidCredential))
	})

	It("should fail when the service is unreachable", func() {
		unreachable := NewClient("http://localhost:1")
		err := unreachable.Authenticate(ctx, Credential{ID: "alice", Token: "alice-token"})
		Expect(err).To(HaveOccurred())
	})
})
