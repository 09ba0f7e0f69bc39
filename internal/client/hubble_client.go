package client

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"conn-guard/internal/source"

	"github.com/cilium/cilium/api/v1/observer"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type HubbleGRPCClient struct {
	conn    *grpc.ClientConn
	server  string
	metrics *PrometheusMetrics
	logger  *logrus.Logger
}

func NewHubbleGRPCClient(server string, metrics *PrometheusMetrics, logger *logrus.Logger) (*HubbleGRPCClient, error) {
	conn, err := grpc.NewClient(server, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Hubble server: %v", err)
	}

	return &HubbleGRPCClient{
		conn:    conn,
		server:  server,
		metrics: metrics,
		logger:  logger,
	}, nil
}

func (c *HubbleGRPCClient) Close() error {
	return c.conn.Close()
}

func (c *HubbleGRPCClient) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c.conn.Connect()
	state := c.conn.GetState()
	if state.String() == "READY" {
		c.logger.Infof("Successfully connected to Hubble relay at %s", c.server)
		return nil
	}

	ready := c.conn.WaitForStateChange(ctx, state)
	if !ready {
		return fmt.Errorf("connection test failed: timeout waiting for connection")
	}

	finalState := c.conn.GetState()
	if finalState.String() == "READY" {
		c.logger.Infof("Successfully connected to Hubble relay at %s", c.server)
		return nil
	}

	return fmt.Errorf("connection test failed: connection state is %s", finalState.String())
}

// StreamConnections follows the Hubble flow stream and hands every connection
// attempt to fn as a traffic line. It returns when ctx is done or the stream
// fails.
func (c *HubbleGRPCClient) StreamConnections(ctx context.Context, namespaces []string, fn func(line string) bool) error {
	client := observer.NewObserverClient(c.conn)

	req := &observer.GetFlowsRequest{
		Follow: true,
	}

	if len(namespaces) > 0 {
		var filters []*observer.FlowFilter
		for _, ns := range namespaces {
			filters = append(filters,
				&observer.FlowFilter{
					SourceLabel: []string{"k8s:io.kubernetes.pod.namespace=" + ns},
				},
				&observer.FlowFilter{
					DestinationLabel: []string{"k8s:io.kubernetes.pod.namespace=" + ns},
				},
			)
		}
		req.Whitelist = filters
	}

	stream, err := client.GetFlows(ctx, req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordSourceError("stream_start_failed")
		}
		return fmt.Errorf("failed to start flow streaming: %v", err)
	}

	for {
		response, err := stream.Recv()
		if err == io.EOF {
			c.logger.Info("Hubble stream ended")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if c.metrics != nil {
				c.metrics.RecordSourceError("stream_receive_failed")
			}
			return fmt.Errorf("failed to receive flow: %v", err)
		}

		flow := response.GetFlow()
		if flow == nil {
			continue
		}
		if c.metrics != nil {
			c.metrics.HubbleFlows.WithLabelValues(flow.GetVerdict().String()).Inc()
		}

		line, ok := connectionLine(flow)
		if !ok {
			continue
		}
		if !fn(line) {
			return nil
		}
	}
}

// connectionLine keeps TCP SYNs and UDP flows, the flows that open a connection
func connectionLine(flow *observer.Flow) (string, bool) {
	ip := flow.GetIP()
	l4 := flow.GetL4()
	if ip == nil || l4 == nil {
		return "", false
	}

	if tcp := l4.GetTCP(); tcp != nil {
		flags := tcp.GetFlags()
		if flags == nil || !flags.GetSYN() || flags.GetACK() {
			return "", false
		}
		return source.FormatLine("tcp", ip.GetSource(), int(tcp.GetDestinationPort()), ip.GetDestination()), true
	}

	if udp := l4.GetUDP(); udp != nil {
		return source.FormatLine("udp", ip.GetSource(), int(udp.GetDestinationPort()), ip.GetDestination()), true
	}

	return "", false
}

// HubbleSource exposes the Hubble flow stream as a record source. The stream
// is started on the first Open and shared by all later windows.
type HubbleSource struct {
	client     *HubbleGRPCClient
	namespaces []string
	bufferSize int

	mu     sync.Mutex
	feed   *source.Feed
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHubbleSource(client *HubbleGRPCClient, namespaces []string, bufferSize int) *HubbleSource {
	return &HubbleSource{
		client:     client,
		namespaces: namespaces,
		bufferSize: bufferSize,
	}
}

func (s *HubbleSource) Name() string {
	return "hubble:" + s.client.server
}

func (s *HubbleSource) Open(ctx context.Context) (source.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.feed != nil {
		return s.feed, nil
	}

	if err := s.client.TestConnection(ctx); err != nil {
		return nil, &source.UnavailableError{Source: s.Name(), Err: err}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	feed := source.NewFeed(s.Name(), s.bufferSize)
	s.feed = feed
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		err := s.client.StreamConnections(runCtx, s.namespaces, func(line string) bool {
			return feed.Push(runCtx, line)
		})
		feed.End(err)
	}()

	return feed, nil
}

func (s *HubbleSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
	return s.client.Close()
}
