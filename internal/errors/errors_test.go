package errors

import (
	"errors"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Structured Errors", func() {
	Describe("AppError", func() {
		Context("basic error creation", func() {
			It("should create error with correct properties", func() {
				err := New(ErrorTypeInvalidRequest, "test message")

				Expect(err.Type).To(Equal(ErrorTypeInvalidRequest))
				Expect(err.Message).To(Equal("test message"))
				Expect(err.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(err.Details).To(BeEmpty())
				Expect(err.Cause).To(BeNil())
			})

			It("should implement error interface correctly", func() {
				err := New(ErrorTypeInvalidRequest, "test message")

				Expect(err.Error()).To(Equal("invalid_request: test message"))
			})

			It("should include details in error string when present", func() {
				err := New(ErrorTypeInvalidRequest, "test message").WithDetails("extra info")

				Expect(err.Error()).To(Equal("invalid_request: test message (extra info)"))
			})
		})

		Context("error wrapping", func() {
			It("should wrap underlying error", func() {
				originalErr := errors.New("original error")
				wrappedErr := Wrap(originalErr, ErrorTypeStorage, "operation failed")

				Expect(wrappedErr.Type).To(Equal(ErrorTypeStorage))
				Expect(wrappedErr.Message).To(Equal("operation failed"))
				Expect(wrappedErr.Cause).To(Equal(originalErr))
				Expect(wrappedErr.Unwrap()).To(Equal(originalErr))
			})

			It("should format wrapped error with arguments", func() {
				originalErr := errors.New("connection refused")
				wrappedErr := Wrapf(originalErr, ErrorTypeStorage, "failed to connect to %s:%d", "localhost", 6379)

				Expect(wrappedErr.Message).To(Equal("failed to connect to localhost:6379"))
				Expect(wrappedErr.Cause).To(Equal(originalErr))
			})
		})

		Context("adding details", func() {
			It("should add details to existing error", func() {
				err := New(ErrorTypePermissionDenied, "authorization failed")
				detailedErr := err.WithDetails("not an owner")

				Expect(detailedErr.Details).To(Equal("not an owner"))
				Expect(detailedErr).To(BeIdenticalTo(err)) // Should modify in place
			})

			It("should add formatted details", func() {
				err := New(ErrorTypePermissionDenied, "authorization failed")
				detailedErr := err.WithDetailsf("user %s, task %s", "alice", "task-1")

				Expect(detailedErr.Details).To(Equal("user alice, task task-1"))
			})
		})
	})

	Describe("HTTP Status Code Mapping", func() {
		It("should map error types to correct HTTP status codes", func() {
			testCases := []struct {
				errorType  ErrorType
				statusCode int
			}{
				{ErrorTypeInvalidRequest, http.StatusBadRequest},
				{ErrorTypePermissionDenied, http.StatusForbidden},
				{ErrorTypeData, http.StatusUnprocessableEntity},
				{ErrorTypeBadTask, http.StatusUnprocessableEntity},
				{ErrorTypeStorage, http.StatusInternalServerError},
				{ErrorTypeInternal, http.StatusInternalServerError},
			}

			for _, tc := range testCases {
				err := New(tc.errorType, "test message")
				Expect(err.StatusCode).To(Equal(tc.statusCode))
			}
		})
	})

	Describe("Predefined Error Constructors", func() {
		It("should create invalid request error", func() {
			err := NewInvalidRequestError("missing metadata")

			Expect(err.Type).To(Equal(ErrorTypeInvalidRequest))
			Expect(err.Message).To(Equal("missing metadata"))
		})

		It("should create storage error", func() {
			originalErr := errors.New("connection lost")
			err := NewStorageError("put", originalErr)

			Expect(err.Type).To(Equal(ErrorTypeStorage))
			Expect(err.Message).To(ContainSubstring("storage operation failed: put"))
			Expect(err.Cause).To(Equal(originalErr))
		})

		It("should create permission denied error", func() {
			err := NewPermissionDeniedError("not a participant")

			Expect(err.Type).To(Equal(ErrorTypePermissionDenied))
			Expect(err.Message).To(Equal("not a participant"))
		})

		It("should create bad task error", func() {
			err := NewBadTaskError("argument mismatch")

			Expect(err.Type).To(Equal(ErrorTypeBadTask))
			Expect(err.Message).To(Equal("argument mismatch"))
		})

		It("should create data error", func() {
			originalErr := errors.New("invalid url")
			err := NewDataError("fusion url", originalErr)

			Expect(err.Type).To(Equal(ErrorTypeData))
			Expect(err.Message).To(ContainSubstring("data operation failed: fusion url"))
			Expect(err.Cause).To(Equal(originalErr))
		})
	})

	Describe("Error Type Checking", func() {
		It("should correctly identify error types", func() {
			invalidErr := NewInvalidRequestError("test")
			deniedErr := NewPermissionDeniedError("test")

			Expect(IsType(invalidErr, ErrorTypeInvalidRequest)).To(BeTrue())
			Expect(IsType(invalidErr, ErrorTypePermissionDenied)).To(BeFalse())
			Expect(IsType(deniedErr, ErrorTypePermissionDenied)).To(BeTrue())
		})

		It("should handle non-AppError types", func() {
			regularErr := errors.New("regular error")

			Expect(IsType(regularErr, ErrorTypeInvalidRequest)).To(BeFalse())
			Expect(GetType(regularErr)).To(Equal(ErrorTypeInternal))
		})

		It("should get correct status codes", func() {
			invalidErr := NewInvalidRequestError("test")
			regularErr := errors.New("regular error")

			Expect(GetStatusCode(invalidErr)).To(Equal(http.StatusBadRequest))
			Expect(GetStatusCode(regularErr)).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("Safe Error Messages", func() {
		It("should return safe messages for different error types", func() {
			testCases := []struct {
				errorType    ErrorType
				expectedSafe string
			}{
				{ErrorTypeInvalidRequest, ""}, // Invalid request messages are passed through
				{ErrorTypePermissionDenied, ErrorMessages.PermissionDenied},
				{ErrorTypeData, ErrorMessages.DataError},
				{ErrorTypeBadTask, ErrorMessages.BadTask},
				{ErrorTypeStorage, ErrorMessages.StorageError},
				{ErrorTypeInternal, "An internal error occurred"},
			}

			for _, tc := range testCases {
				var err error
				switch tc.errorType {
				case ErrorTypeInvalidRequest:
					err = NewInvalidRequestError("specific validation message")
					Expect(SafeErrorMessage(err)).To(Equal("specific validation message"))
					continue
				default:
					err = New(tc.errorType, "internal details")
				}

				Expect(SafeErrorMessage(err)).To(Equal(tc.expectedSafe))
			}
		})

		It("should return generic message for regular errors", func() {
			regularErr := errors.New("internal panic")
			safeMsg := SafeErrorMessage(regularErr)

			Expect(safeMsg).To(Equal("An unexpected error occurred"))
		})
	})

	Describe("Logging Fields", func() {
		It("should generate structured logging fields", func() {
			originalErr := errors.New("connection failed")
			appErr := Wrapf(originalErr, ErrorTypeStorage, "get failed").
				WithDetails("key: task-1")

			fields := LogFields(appErr)

			Expect(fields).To(HaveKey("error"))
			Expect(fields).To(HaveKey("error_type"))
			Expect(fields).To(HaveKey("status_code"))
			Expect(fields).To(HaveKey("error_details"))
			Expect(fields).To(HaveKey("underlying_error"))

			Expect(fields["error_type"]).To(Equal("storage_error"))
			Expect(fields["status_code"]).To(Equal(http.StatusInternalServerError))
			Expect(fields["error_details"]).To(Equal("key: task-1"))
			Expect(fields["underlying_error"]).To(Equal("connection failed"))
		})
	})
})
