package invoke

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vietddude/orchestrator/internal/core/domain"
)

// InvokeMethod is the full gRPC method name of the gateway.
const InvokeMethod = "/fabric.gateway.v1.Invoker/InvokeChaincode"

// GRPCInvoker invokes chaincode through a gRPC gateway. Requests and
// responses are google.protobuf.Struct messages.
type GRPCInvoker struct {
	endpoint string
	conn     grpc.ClientConnInterface
	closer   func() error
}

// NewGRPCInvoker creates a client for the gateway at endpoint.
func NewGRPCInvoker(endpoint string) (*GRPCInvoker, error) {
	target := endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(endpoint, "https://") || strings.HasPrefix(endpoint, "grpcs://") ||
		strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(strings.TrimPrefix(target, "https://"), "grpcs://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(strings.TrimPrefix(target, "http://"), "grpc://")
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}

	return &GRPCInvoker{endpoint: endpoint, conn: conn, closer: conn.Close}, nil
}

// NewGRPCInvokerWithConn uses an existing connection.
func NewGRPCInvokerWithConn(conn grpc.ClientConnInterface) *GRPCInvoker {
	return &GRPCInvoker{conn: conn, closer: func() error { return nil }}
}

// Invoke submits the request and returns the transaction id.
func (i *GRPCInvoker) Invoke(ctx context.Context, req domain.InvocationRequest) (string, error) {
	in, err := requestStruct(req)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	out := &structpb.Struct{}
	if err := i.conn.Invoke(ctx, InvokeMethod, in, out); err != nil {
		return "", describe(err)
	}

	id := out.GetFields()["transaction_id"].GetStringValue()
	if id == "" {
		return "", fmt.Errorf("response without transaction_id")
	}
	return id, nil
}

// Close releases the connection.
func (i *GRPCInvoker) Close() error {
	return i.closer()
}

func requestStruct(req domain.InvocationRequest) (*structpb.Struct, error) {
	peers := make([]any, len(req.Endpoints))
	for k, p := range req.Endpoints {
		peers[k] = p
	}
	args := make([]any, len(req.Args))
	for k, a := range req.Args {
		args[k] = a
	}
	return structpb.NewStruct(map[string]any{
		"peers":     peers,
		"channel":   req.ContractID,
		"chaincode": req.Function,
		"fcn":       req.Method,
		"args":      args,
		"username":  req.Identity,
		"orgname":   req.Org,
	})
}

// describe appends ErrorInfo reasons to the status error while keeping it
// unwrappable by status.FromError.
func describe(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetReason() != "" {
			return fmt.Errorf("%w (reason: %s, domain: %s)", err, info.GetReason(), info.GetDomain())
		}
	}
	return err
}
