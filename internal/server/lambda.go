package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"go.uber.org/zap"
)

// IsLambda reports whether the process runs inside AWS Lambda
func IsLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// LambdaHandler proxies API Gateway and Function URL events into the router
type LambdaHandler struct {
	v1     *ginadapter.GinLambda
	v2     *ginadapter.GinLambdaV2
	logger *zap.Logger
}

// NewLambdaHandler adapts the server's router for Lambda
func (s *HTTPServer) NewLambdaHandler() *LambdaHandler {
	return &LambdaHandler{
		v1:     ginadapter.New(s.router),
		v2:     ginadapter.NewV2(s.router),
		logger: s.logger,
	}
}

// StartLambda blocks serving Lambda invocations. There is no janitor here;
// expired pastes are removed on access and by DynamoDB TTL or a scheduled
// prune.
func (s *HTTPServer) StartLambda() {
	s.logger.Info("Starting in AWS Lambda mode", zap.String("storage", s.config.DBType))
	lambda.Start(s.NewLambdaHandler().Handle)
}

// Handle accepts both payload versions: HTTP API and Function URL events
// (v2) and REST API or ALB events (v1)
func (h *LambdaHandler) Handle(ctx context.Context, event json.RawMessage) (any, error) {
	var reqV2 events.APIGatewayV2HTTPRequest
	if err := json.Unmarshal(event, &reqV2); err == nil && reqV2.RequestContext.HTTP.Method != "" {
		h.logger.Debug("lambda v2 event",
			zap.String("method", reqV2.RequestContext.HTTP.Method),
			zap.String("path", reqV2.RawPath))
		return h.v2.ProxyWithContext(ctx, reqV2)
	}

	var reqV1 events.APIGatewayProxyRequest
	if err := json.Unmarshal(event, &reqV1); err == nil && reqV1.HTTPMethod != "" {
		h.logger.Debug("lambda v1 event",
			zap.String("method", reqV1.HTTPMethod),
			zap.String("path", reqV1.Path))
		return h.v1.ProxyWithContext(ctx, reqV1)
	}

	h.logger.Warn("unsupported lambda event", zap.Int("size", len(event)))
	return events.APIGatewayV2HTTPResponse{
		StatusCode: 400,
		Body:       `{"success":false,"message":"Unsupported event type","payload":null}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}, fmt.Errorf("unsupported lambda event")
}
