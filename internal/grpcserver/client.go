package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client talks to a SessionServer.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects without TLS unless opts say otherwise.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) RequestPayment(ctx context.Context, amount, txnID string, notifyMobile bool) (Snapshot, error) {
	in, err := structpb.NewStruct(map[string]any{
		"amount":        amount,
		"txn_id":        txnID,
		"notify_mobile": notifyMobile,
	})
	if err != nil {
		return Snapshot{}, err
	}
	return c.unary(ctx, "RequestPayment", in)
}

func (c *Client) GetSession(ctx context.Context) (Snapshot, error) {
	return c.unary(ctx, "GetSession", &structpb.Struct{})
}

func (c *Client) ResetSession(ctx context.Context) (Snapshot, error) {
	return c.unary(ctx, "ResetSession", &structpb.Struct{})
}

// Watch calls fn for every snapshot until the stream ends, fn returns an
// error or ctx is done. With untilTerminal the server ends the stream after
// the first terminal snapshot.
func (c *Client) Watch(ctx context.Context, untilTerminal bool, fn func(Snapshot) error) error {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/WatchSession")
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	in, err := structpb.NewStruct(map[string]any{"until_terminal": untilTerminal})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return fmt.Errorf("watch send: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("watch close send: %w", err)
	}

	for {
		out := new(structpb.Struct)
		if err := stream.RecvMsg(out); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		snap, err := DecodeSession(out)
		if err != nil {
			return err
		}
		if err := fn(snap); err != nil {
			return err
		}
	}
}

func (c *Client) unary(ctx context.Context, method string, in *structpb.Struct) (Snapshot, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return Snapshot{}, err
	}
	return DecodeSession(out)
}
