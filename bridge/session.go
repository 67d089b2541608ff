package bridge

import (
	"context"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"tagsim/config"
)

// Session is the slice of the OPC UA client the bridge needs. Tests
// substitute fakes; production uses the gopcua client.
type Session interface {
	Write(ctx context.Context, req *ua.WriteRequest) (*ua.WriteResponse, error)
	Close(ctx context.Context) error
}

// DialFunc opens a session to one server.
type DialFunc func(ctx context.Context, cfg config.OPCUAServer) (Session, error)

// dialOPCUA connects with the gopcua client.
func dialOPCUA(ctx context.Context, cfg config.OPCUAServer) (Session, error) {
	opts := []opcua.Option{
		opcua.SecurityMode(ua.MessageSecurityModeNone),
		opcua.SecurityPolicy(ua.SecurityPolicyURINone),
	}
	if cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(cfg.Username, cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	client, err := opcua.NewClient(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}
