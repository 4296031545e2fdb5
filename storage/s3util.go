package storage

import (
	"errors"
	"strings"

	"github.com/aws/smithy-go"
)

// normalizeS3Prefix strips stray slashes and leaves exactly one trailing slash
func normalizeS3Prefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func applyS3Prefix(prefix, name string) string {
	if prefix == "" {
		return name
	}
	// Ensure there is exactly one slash between prefix and name
	if strings.HasSuffix(prefix, "/") {
		return prefix + name
	}
	return prefix + "/" + name
}

func s3ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func isS3NotFound(err error) bool {
	switch s3ErrorCode(err) {
	case "NoSuchKey", "NotFound", "404":
		return true
	}
	// Also check for HTTP status code 404 in the error message as fallback
	return err != nil && strings.Contains(err.Error(), "StatusCode: 404")
}

// isS3PreconditionFailed covers both a failed If-Match/If-None-Match and a
// concurrent conditional write racing ours
func isS3PreconditionFailed(err error) bool {
	switch s3ErrorCode(err) {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}
