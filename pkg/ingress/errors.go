package ingress

import "github.com/emprops/job-gateway/pkg/gatewayerr"

var (
	errStreamingUnsupported = gatewayerr.New(gatewayerr.StoreFailure, "response writer does not support streaming")
	errAuthFailureStream    = gatewayerr.New(gatewayerr.AuthFailure, "invalid or missing token")
)
