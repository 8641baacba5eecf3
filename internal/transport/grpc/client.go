package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/milad/metermon/internal/domain"
)

// Client reads the state of a remote monitor. It satisfies the same
// StateReader contract as the monitor itself.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) State(ctx context.Context) (domain.Snapshot, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getStateMethod, &emptypb.Empty{}, out); err != nil {
		return domain.Snapshot{}, err
	}
	return fromProtoSnapshot(out)
}
