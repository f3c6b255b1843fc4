package management

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/jordigilh/enclaveops/internal/errors"
	"github.com/jordigilh/enclaveops/pkg/types"
)

var _ = Describe("Management HTTP API", func() {
	var (
		ctx     context.Context
		backend *testBackend
		server  *httptest.Server
		client  *Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		backend = newTestBackend(ctx)
		server = httptest.NewServer(NewRouter(backend.svc, backend.svc.log))
		client = NewClient(server.URL)
	})

	AfterEach(func() {
		server.Close()
		backend.close()
	})

	It("should reject requests without user metadata", func() {
		body, err := json.Marshal(RegisterOutputFileRequest{URL: "s3://bucket/out"})
		Expect(err).NotTo(HaveOccurred())

		resp, err := http.Post(server.URL+"/v1/output-files", "application/json", bytes.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		var envelope ErrorResponse
		Expect(json.NewDecoder(resp.Body).Decode(&envelope)).To(Succeed())
		Expect(envelope.Error).To(Equal("invalid_request"))
		Expect(envelope.Message).NotTo(BeEmpty())
	})

	It("should reject malformed request bodies", func() {
		req, err := http.NewRequest(http.MethodPost, server.URL+"/v1/input-files", bytes.NewReader([]byte("{not json")))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set(MetadataUserKey, "alice")

		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("should validate request fields before touching storage", func() {
		_, err := client.RegisterInputFile(ctx, "alice", &RegisterInputFileRequest{
			URL:  "s3://bucket/in",
			CMAC: "", // required
		})
		Expect(apperrors.IsType(err, apperrors.ErrorTypeInvalidRequest)).To(BeTrue())
	})

	It("should serve the full task flow through the typed client", func() {
		function, err := client.RegisterFunction(ctx, "bob", &RegisterFunctionRequest{
			FunctionSpec: types.FunctionSpec{
				Name:         "echo",
				Payload:      []byte("payload"),
				ExecutorType: types.ExecutorTypePython,
				Public:       true,
				Arguments:    []string{"arg"},
				Inputs:       []types.FunctionInput{{Name: "in"}},
				Outputs:      []types.FunctionOutput{{Name: "out"}},
			},
		})
		Expect(err).NotTo(HaveOccurred())

		input, err := client.RegisterInputFile(ctx, "alice", &RegisterInputFileRequest{
			URL:  "s3://bucket/in",
			CMAC: "00112233445566778899aabbccddeeff",
		})
		Expect(err).NotTo(HaveOccurred())
		output, err := client.RegisterOutputFile(ctx, "alice", &RegisterOutputFileRequest{
			URL: "s3://bucket/out",
		})
		Expect(err).NotTo(HaveOccurred())

		created, err := client.CreateTask(ctx, "alice", &CreateTaskRequest{
			FunctionID:        function.FunctionID,
			Executor:          types.ExecutorMesaPy,
			FunctionArguments: types.FunctionArguments{"arg": "v"},
			InputsOwnership:   map[string]types.OwnerList{"in": types.NewOwnerList("alice")},
			OutputsOwnership:  map[string]types.OwnerList{"out": types.NewOwnerList("alice")},
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = client.AssignData(ctx, "alice", created.TaskID, &AssignDataRequest{
			Inputs:  map[string]string{"in": input.DataID},
			Outputs: map[string]string{"out": output.DataID},
		})
		Expect(err).NotTo(HaveOccurred())

		view, err := client.GetTask(ctx, "alice", created.TaskID)
		Expect(err).NotTo(HaveOccurred())
		Expect(view.Status).To(Equal(types.TaskStatusApproved))

		_, err = client.InvokeTask(ctx, "alice", created.TaskID)
		Expect(err).NotTo(HaveOccurred())

		view, err = client.GetTask(ctx, "alice", created.TaskID)
		Expect(err).NotTo(HaveOccurred())
		Expect(view.Status).To(Equal(types.TaskStatusStaged))
	})

	It("should surface authorization failures with the safe envelope", func() {
		fusion, err := client.RegisterFusionOutput(ctx, "alice", &RegisterFusionOutputRequest{
			OwnerList: []types.UserID{"alice", "bob"},
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = client.GetOutputFile(ctx, "carol", fusion.DataID)
		Expect(err).To(HaveOccurred())

		var appErr *apperrors.AppError
		Expect(errors.As(err, &appErr)).To(BeTrue())
		Expect(appErr.Type).To(Equal(apperrors.ErrorTypePermissionDenied))
		Expect(appErr.StatusCode).To(Equal(http.StatusForbidden))
		Expect(appErr.Message).To(Equal(apperrors.ErrorMessages.PermissionDenied))
	})
})
